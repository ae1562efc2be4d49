// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// maxPhoneNumberDigits is the E.164 limit: country code plus subscriber
// number never exceed 15 digits.
const maxPhoneNumberDigits = 15

// PhoneNumber is a canonical telephone number: a non-empty string of
// ASCII digits with no leading '+', spaces, or separators (E.164 form
// minus the plus sign, e.g. "15551234567"). Callers normalize display
// forms before parsing; this type rejects anything non-canonical rather
// than coercing it.
//
// PhoneNumber is an immutable value type. The zero value is not valid;
// use IsZero to check.
type PhoneNumber struct {
	digits string
}

// ParsePhoneNumber validates and wraps a canonical phone number string.
// Returns an error if the string is empty, longer than 15 digits, or
// contains anything other than ASCII digits.
func ParsePhoneNumber(raw string) (PhoneNumber, error) {
	if raw == "" {
		return PhoneNumber{}, fmt.Errorf("empty phone number")
	}
	if len(raw) > maxPhoneNumberDigits {
		return PhoneNumber{}, fmt.Errorf("phone number %q is %d digits, maximum is %d", raw, len(raw), maxPhoneNumberDigits)
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return PhoneNumber{}, fmt.Errorf("phone number %q: invalid character %q at position %d (digits only, no '+' or separators)", raw, raw[i], i)
		}
	}
	return PhoneNumber{digits: raw}, nil
}

// MustParsePhoneNumber is like ParsePhoneNumber but panics on error.
// Use in tests and static initialization where the input is known-valid.
func MustParsePhoneNumber(raw string) PhoneNumber {
	p, err := ParsePhoneNumber(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParsePhoneNumber(%q): %v", raw, err))
	}
	return p
}

// String returns the digit string (e.g., "15551234567").
func (p PhoneNumber) String() string { return p.digits }

// IsZero reports whether the PhoneNumber is the zero value (uninitialized).
func (p PhoneNumber) IsZero() bool { return p.digits == "" }

// MarshalText implements encoding.TextMarshaler for JSON and other
// text-based serialization formats.
func (p PhoneNumber) MarshalText() ([]byte, error) {
	if p.digits == "" {
		return []byte{}, nil
	}
	return []byte(p.digits), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON and other
// text-based serialization formats. Validates the phone number format.
// An empty input produces the zero value (unset phone number).
func (p *PhoneNumber) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*p = PhoneNumber{}
		return nil
	}
	parsed, err := ParsePhoneNumber(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
