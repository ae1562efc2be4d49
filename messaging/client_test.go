// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smswire/smswire/lib/ref"
	"github.com/smswire/smswire/lib/secret"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func secretBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating secret buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Error("NewClient with empty HomeserverURL should fail")
	}
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var request LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding login request: %v", err)
		}
		if request.Type != "m.login.password" {
			t.Errorf("login type = %q", request.Type)
		}
		if request.Password != "hunter2" {
			t.Errorf("password = %q", request.Password)
		}
		json.NewEncoder(w).Encode(AuthResponse{
			UserID:      ref.MustParseUserID("@smswire:example.org"),
			AccessToken: "syt_token",
			DeviceID:    "DEVICE",
		})
	}))

	session, err := client.Login(context.Background(), "smswire", secretBuffer(t, "hunter2"))
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	defer session.Close()

	if got := session.UserID().String(); got != "@smswire:example.org" {
		t.Errorf("UserID = %q", got)
	}
	if session.AccessToken() != "syt_token" {
		t.Error("access token not preserved")
	}
	if session.DeviceID() != "DEVICE" {
		t.Errorf("DeviceID = %q", session.DeviceID())
	}
}

func TestRegisterUIAAFlow(t *testing.T) {
	var requests int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/register" {
			http.NotFound(w, r)
			return
		}
		requests++

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding register request: %v", err)
		}

		if requests == 1 {
			// First attempt: no auth block, return the UIAA challenge.
			if _, hasAuth := body["auth"]; hasAuth {
				t.Error("first register attempt should not carry auth")
			}
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"session": "uiaa-session-1",
				"flows":   []map[string]any{{"stages": []string{"m.login.registration_token"}}},
			})
			return
		}

		// Second attempt: must complete the token stage.
		auth, ok := body["auth"].(map[string]any)
		if !ok {
			t.Fatal("second register attempt missing auth block")
		}
		if auth["session"] != "uiaa-session-1" {
			t.Errorf("auth session = %v", auth["session"])
		}
		if auth["token"] != "regtoken" {
			t.Errorf("auth token = %v", auth["token"])
		}
		json.NewEncoder(w).Encode(AuthResponse{
			UserID:      ref.MustParseUserID("@_sms_15551234567:example.org"),
			AccessToken: "syt_ghost",
			DeviceID:    "GHOST",
		})
	}))

	session, err := client.Register(context.Background(), RegisterRequest{
		Username:          "_sms_15551234567",
		Password:          secretBuffer(t, "generated"),
		RegistrationToken: secretBuffer(t, "regtoken"),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	defer session.Close()

	if requests != 2 {
		t.Errorf("expected 2 register requests, got %d", requests)
	}
	if got := session.UserID().String(); got != "@_sms_15551234567:example.org" {
		t.Errorf("UserID = %q", got)
	}
}

func TestMatrixErrorMapping(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{
			"errcode": "M_FORBIDDEN",
			"error":   "Invalid password",
		})
	}))

	_, err := client.Login(context.Background(), "smswire", secretBuffer(t, "wrong"))
	if err == nil {
		t.Fatal("login against forbidden server should fail")
	}

	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) {
		t.Fatalf("error is not a MatrixError: %v", err)
	}
	if matrixErr.Code != ErrCodeForbidden {
		t.Errorf("Code = %q", matrixErr.Code)
	}
	if matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d", matrixErr.StatusCode)
	}
	if !IsMatrixError(err, ErrCodeForbidden) {
		t.Error("IsMatrixError(M_FORBIDDEN) = false")
	}
}

func TestServerVersions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/versions" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(ServerVersionsResponse{Versions: []string{"v1.11"}})
	}))

	response, err := client.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions failed: %v", err)
	}
	if len(response.Versions) != 1 || response.Versions[0] != "v1.11" {
		t.Errorf("Versions = %v", response.Versions)
	}
}
