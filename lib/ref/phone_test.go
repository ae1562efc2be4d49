// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestParsePhoneNumber(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		for _, raw := range []string{"15551234567", "442071234567", "1", "123456789012345"} {
			number, err := ParsePhoneNumber(raw)
			if err != nil {
				t.Errorf("ParsePhoneNumber(%q) failed: %v", raw, err)
				continue
			}
			if number.String() != raw {
				t.Errorf("ParsePhoneNumber(%q).String() = %q", raw, number.String())
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{
			"",
			"+15551234567",
			"555 123 4567",
			"555-1234",
			"(555)1234567",
			"1234567890123456", // 16 digits
			"abc",
		} {
			if _, err := ParsePhoneNumber(raw); err == nil {
				t.Errorf("ParsePhoneNumber(%q) should have failed", raw)
			}
		}
	})

	t.Run("zero value", func(t *testing.T) {
		var zero PhoneNumber
		if !zero.IsZero() {
			t.Error("zero PhoneNumber should report IsZero")
		}
		if MustParsePhoneNumber("15551234567").IsZero() {
			t.Error("parsed PhoneNumber should not report IsZero")
		}
	})

	t.Run("text round trip", func(t *testing.T) {
		original := MustParsePhoneNumber("15551234567")
		data, err := original.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText failed: %v", err)
		}
		var decoded PhoneNumber
		if err := decoded.UnmarshalText(data); err != nil {
			t.Fatalf("UnmarshalText failed: %v", err)
		}
		if decoded != original {
			t.Errorf("round trip mismatch: %v != %v", decoded, original)
		}
	})
}
