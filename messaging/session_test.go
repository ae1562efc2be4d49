// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/smswire/smswire/lib/ref"
)

// newTestSession returns an authenticated session against a mock
// homeserver. The handler receives only requests carrying the expected
// bearer token; anything else fails the test.
func newTestSession(t *testing.T, handler http.HandlerFunc) *DirectSession {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer syt_test" {
			t.Errorf("missing or wrong Authorization header: %q", got)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"errcode": ErrCodeUnknownToken, "error": "bad token"})
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@smswire:example.org"), "syt_test")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestJoinedMembers(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/_matrix/client/v3/rooms/" + "!room1:example.org" + "/joined_members"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"joined": map[string]any{
				"@smswire:example.org": map[string]string{"display_name": "SMSWire Bridge"},
				"@alice:example.org":   map[string]string{"display_name": "Alice"},
			},
		})
	})

	members, err := session.JoinedMembers(context.Background(), ref.MustParseRoomID("!room1:example.org"))
	if err != nil {
		t.Fatalf("JoinedMembers failed: %v", err)
	}

	got := make([]string, len(members))
	for i, m := range members {
		got[i] = m.String()
	}
	sort.Strings(got)
	want := []string{"@alice:example.org", "@smswire:example.org"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("members = %v, want %v", got, want)
	}
}

func TestSendMessageUsesIdempotentPut(t *testing.T) {
	var seenTxn []string
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		parts := strings.Split(r.URL.Path, "/")
		seenTxn = append(seenTxn, parts[len(parts)-1])

		var content MessageContent
		if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
			t.Errorf("decoding message content: %v", err)
		}
		if content.MsgType != "m.notice" {
			t.Errorf("msgtype = %q", content.MsgType)
		}
		json.NewEncoder(w).Encode(SendEventResponse{EventID: ref.MustParseEventID("$event1")})
	})

	roomID := ref.MustParseRoomID("!room1:example.org")
	for range 2 {
		eventID, err := session.SendMessage(context.Background(), roomID, NewNoticeMessage("hello"))
		if err != nil {
			t.Fatalf("SendMessage failed: %v", err)
		}
		if eventID.String() != "$event1" {
			t.Errorf("event ID = %q", eventID)
		}
	}

	if len(seenTxn) != 2 || seenTxn[0] == seenTxn[1] {
		t.Errorf("transaction IDs must be unique per send: %v", seenTxn)
	}
}

func TestCreateRoom(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/createRoom" {
			http.NotFound(w, r)
			return
		}
		var request CreateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding createRoom request: %v", err)
		}
		if request.Preset != "trusted_private_chat" {
			t.Errorf("preset = %q", request.Preset)
		}
		if len(request.Invite) != 1 || request.Invite[0].String() != "@alice:example.org" {
			t.Errorf("invite = %v", request.Invite)
		}
		json.NewEncoder(w).Encode(CreateRoomResponse{RoomID: ref.MustParseRoomID("!new:example.org")})
	})

	response, err := session.CreateRoom(context.Background(), CreateRoomRequest{
		Name:     "SMSWire Admin",
		Preset:   "trusted_private_chat",
		IsDirect: true,
		Invite:   []ref.UserID{ref.MustParseUserID("@alice:example.org")},
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if response.RoomID.String() != "!new:example.org" {
		t.Errorf("RoomID = %q", response.RoomID)
	}
}

func TestAccountDataRoundTrip(t *testing.T) {
	stored := map[string]json.RawMessage{}
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		dataType := parts[len(parts)-1]
		switch r.Method {
		case http.MethodPut:
			var body json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decoding account data: %v", err)
			}
			stored[dataType] = body
			w.Write([]byte("{}"))
		case http.MethodGet:
			body, ok := stored[dataType]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]string{"errcode": ErrCodeNotFound, "error": "not set"})
				return
			}
			w.Write(body)
		}
	})

	ctx := context.Background()
	type directory struct {
		Rooms map[string]string `json:"rooms"`
	}

	var missing directory
	err := session.AccountData(ctx, "org.smswire.directory", &missing)
	if !IsMatrixError(err, ErrCodeNotFound) {
		t.Fatalf("expected M_NOT_FOUND for unset account data, got %v", err)
	}

	want := directory{Rooms: map[string]string{"!room1:example.org": "15551234567"}}
	if err := session.SetAccountData(ctx, "org.smswire.directory", want); err != nil {
		t.Fatalf("SetAccountData failed: %v", err)
	}

	var got directory
	if err := session.AccountData(ctx, "org.smswire.directory", &got); err != nil {
		t.Fatalf("AccountData failed: %v", err)
	}
	if got.Rooms["!room1:example.org"] != "15551234567" {
		t.Errorf("round-tripped directory = %+v", got)
	}
}

func TestSetDisplayName(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || !strings.HasSuffix(r.URL.Path, "/displayname") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var request DisplayNameRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding displayname request: %v", err)
		}
		if request.DisplayName != "+1 555 123 4567 (SMS)" {
			t.Errorf("displayname = %q", request.DisplayName)
		}
		w.Write([]byte("{}"))
	})

	if err := session.SetDisplayName(context.Background(), "+1 555 123 4567 (SMS)"); err != nil {
		t.Fatalf("SetDisplayName failed: %v", err)
	}
}

func TestSyncParsesRoomSections(t *testing.T) {
	session := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/sync" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{
			"next_batch": "s2",
			"rooms": {
				"join": {
					"!room1:example.org": {
						"timeline": {"events": [
							{"event_id": "$e1", "type": "m.room.message", "sender": "@alice:example.org",
							 "content": {"msgtype": "m.text", "body": "hi"}}
						]},
						"state": {"events": []}
					}
				},
				"invite": {
					"!room2:example.org": {
						"invite_state": {"events": [
							{"event_id": "$e2", "type": "m.room.member", "sender": "@bob:example.org",
							 "state_key": "@smswire:example.org", "content": {"membership": "invite"}}
						]}
					}
				}
			}
		}`))
	})

	response, err := session.Sync(context.Background(), SyncOptions{})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "s2" {
		t.Errorf("NextBatch = %q", response.NextBatch)
	}

	joined, ok := response.Rooms.Join[ref.MustParseRoomID("!room1:example.org")]
	if !ok {
		t.Fatal("joined room missing from sync response")
	}
	if len(joined.Timeline.Events) != 1 || joined.Timeline.Events[0].Sender.String() != "@alice:example.org" {
		t.Errorf("timeline = %+v", joined.Timeline.Events)
	}

	invited, ok := response.Rooms.Invite[ref.MustParseRoomID("!room2:example.org")]
	if !ok {
		t.Fatal("invited room missing from sync response")
	}
	event := invited.InviteState.Events[0]
	if event.StateKey == nil || *event.StateKey != "@smswire:example.org" {
		t.Errorf("invite state key = %v", event.StateKey)
	}
}
