package internal

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewOTPDigits(t *testing.T) {
	for _, digits := range []int{4, 6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d): %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-numeric code %q", code)
			}
		}
	}
	for _, digits := range []int{0, 3, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected NewOTP(%d) to fail", digits)
		}
	}
}

func TestOTPMatches(t *testing.T) {
	stored := HashOTP("123456")
	if !OTPMatches(stored, "123456") {
		t.Fatal("expected match")
	}
	if OTPMatches(stored, "123457") {
		t.Fatal("expected mismatch")
	}
	if OTPMatches("", "123456") {
		t.Fatal("empty digest must never match")
	}
}

func TestNewUserIDIsSortable(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := NewUserID(base)
	if err != nil {
		t.Fatalf("NewUserID: %v", err)
	}
	second, err := NewUserID(base.Add(time.Millisecond))
	if err != nil {
		t.Fatalf("NewUserID: %v", err)
	}
	if first >= second {
		t.Fatalf("expected %s < %s", first, second)
	}
	parsed, err := ulid.Parse(first)
	if err != nil {
		t.Fatalf("parse ulid: %v", err)
	}
	if ulid.Time(parsed.Time()).UnixMilli() != base.UnixMilli() {
		t.Fatalf("unexpected embedded time")
	}
}
