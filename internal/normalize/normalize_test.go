package normalize

import (
	"errors"
	"strings"
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		in, want string
		err      error
	}{
		{"alice@x.com", "alice@x.com", nil},
		{"  Alice@X.COM ", "alice@x.com", nil},
		{"bob@bücher.example", "bob@xn--bcher-kva.example", nil},
		{"no-at-sign", "", ErrInvalidEmail},
		{"Alice <alice@x.com>", "", ErrInvalidEmail},
		{"alice@localhost", "", ErrInvalidEmail},
		{"", "", ErrInvalidEmail},
	}
	for _, tc := range tests {
		got, err := Email(tc.in)
		if !errors.Is(err, tc.err) || got != tc.want {
			t.Fatalf("Email(%q) = %q, %v; want %q, %v", tc.in, got, err, tc.want, tc.err)
		}
	}
}

func TestPhone(t *testing.T) {
	good := map[string]string{
		"+15551234567":      "+15551234567",
		"+1 (555) 123-4567": "+15551234567",
		"+44.20.7946.0958":  "+442079460958",
	}
	for in, want := range good {
		got, err := Phone(in)
		if err != nil || got != want {
			t.Fatalf("Phone(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"15551234567", "+0123456789", "+1234", "+1555123456789012", "+1555abc4567", ""} {
		if _, err := Phone(in); !errors.Is(err, ErrInvalidPhone) {
			t.Fatalf("Phone(%q) should fail, got %v", in, err)
		}
	}
}

func TestUsername(t *testing.T) {
	got, err := Username("  Alice.Smith ")
	if err != nil || got != "alice.smith" {
		t.Fatalf("Username = %q, %v", got, err)
	}
	// fullwidth letters fold to ASCII under NFKC
	got, err = Username("ＢＯＢ_1")
	if err != nil || got != "bob_1" {
		t.Fatalf("Username fullwidth = %q, %v", got, err)
	}
	for _, in := range []string{"ab", "_alice", "al ice", strings.Repeat("a", 33), "al@ce"} {
		if _, err := Username(in); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("Username(%q) should fail, got %v", in, err)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := map[string]string{
		"Alice":                          "Alice",
		"  Tom   &  Jerry ":              "Tom & Jerry",
		"<script>alert(1)</script>Eve":   "Eve",
		"<b>Bold</b> Name":               "Bold Name",
		"line\nbreak\tname":              "line break name",
	}
	for in, want := range tests {
		if got := DisplayName(in); got != want {
			t.Fatalf("DisplayName(%q) = %q, want %q", in, got, want)
		}
	}
	if got := DisplayName(strings.Repeat("é", 150)); len([]rune(got)) != MaxDisplayName {
		t.Fatalf("expected truncation to %d runes, got %d", MaxDisplayName, len([]rune(got)))
	}
}
