// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, raw := range []string{
			"@alice:example.org",
			"@smswire:example.org",
			"@_sms_15551234567:example.org",
			"@bob:matrix.example.com:8448",
		} {
			userID, err := ParseUserID(raw)
			if err != nil {
				t.Errorf("ParseUserID(%q) failed: %v", raw, err)
				continue
			}
			if userID.String() != raw {
				t.Errorf("ParseUserID(%q).String() = %q", raw, userID.String())
			}
			if userID.IsZero() {
				t.Errorf("ParseUserID(%q) returned zero value", raw)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"alice:example.org",
			"@alice",
			"@:example.org",
			"@alice:",
			"!room:example.org",
		} {
			if _, err := ParseUserID(raw); err == nil {
				t.Errorf("ParseUserID(%q) should have failed", raw)
			}
		}
	})

	t.Run("localpart and server", func(t *testing.T) {
		userID := MustParseUserID("@_sms_15551234567:example.org")
		if userID.Localpart() != "_sms_15551234567" {
			t.Errorf("Localpart = %q", userID.Localpart())
		}
		if userID.Server() != "example.org" {
			t.Errorf("Server = %q", userID.Server())
		}
	})

	t.Run("zero value accessors panic", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Localpart on zero UserID should panic")
			}
		}()
		var zero UserID
		zero.Localpart()
	})
}

func TestParseRoomID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		roomID, err := ParseRoomID("!abc123:example.org")
		if err != nil {
			t.Fatalf("ParseRoomID failed: %v", err)
		}
		if roomID.String() != "!abc123:example.org" {
			t.Errorf("String = %q", roomID.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "abc:example.org", "!abc", "!:example.org", "!abc:"} {
			if _, err := ParseRoomID(raw); err == nil {
				t.Errorf("ParseRoomID(%q) should have failed", raw)
			}
		}
	})
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$abc123"); err != nil {
		t.Errorf("ParseEventID($abc123) failed: %v", err)
	}
	for _, raw := range []string{"", "$", "abc"} {
		if _, err := ParseEventID(raw); err == nil {
			t.Errorf("ParseEventID(%q) should have failed", raw)
		}
	}
}

func TestParseServerName(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, raw := range []string{"example.org", "matrix.example.com:8448", "localhost"} {
			if _, err := ParseServerName(raw); err != nil {
				t.Errorf("ParseServerName(%q) failed: %v", raw, err)
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "@example.org", "#example.org", "bad server"} {
			if _, err := ParseServerName(raw); err == nil {
				t.Errorf("ParseServerName(%q) should have failed", raw)
			}
		}
	})
}

func TestMatrixUserID(t *testing.T) {
	server := MustParseServerName("example.org")
	userID := MatrixUserID("_sms_15551234567", server)
	if userID.String() != "@_sms_15551234567:example.org" {
		t.Errorf("MatrixUserID = %q", userID.String())
	}
}

func TestServerFromUserID(t *testing.T) {
	server, err := ServerFromUserID("@smswire:example.org")
	if err != nil {
		t.Fatalf("ServerFromUserID failed: %v", err)
	}
	if server.String() != "example.org" {
		t.Errorf("server = %q", server.String())
	}

	if _, err := ServerFromUserID("not-a-user-id"); err == nil {
		t.Error("ServerFromUserID should fail on malformed input")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		User UserID `json:"user"`
		Room RoomID `json:"room"`
	}
	original := payload{
		User: MustParseUserID("@alice:example.org"),
		Room: MustParseRoomID("!abc:example.org"),
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded payload
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, original)
	}

	// Invalid identifiers are rejected at deserialization.
	if err := json.Unmarshal([]byte(`{"user":"bogus"}`), &decoded); err == nil {
		t.Error("unmarshal of invalid user ID should fail")
	}
}
