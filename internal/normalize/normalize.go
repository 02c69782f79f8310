// Package normalize canonicalizes user-supplied identifiers so that lookups
// and uniqueness checks compare like with like.
package normalize

import (
	"errors"
	"html"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidPhone    = errors.New("invalid phone")
	ErrInvalidUsername = errors.New("invalid username")
)

// MaxDisplayName is the longest display name kept, in runes.
const MaxDisplayName = 100

var (
	phonePattern    = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,31}$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

	fold   = cases.Fold()
	strict = bluemonday.StrictPolicy()
)

// Email folds the local part and converts the domain to its ASCII form.
func Email(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], s[at+1:]
	if local == "" || domain == "" {
		return "", ErrInvalidEmail
	}
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil || !strings.Contains(ascii, ".") {
		return "", ErrInvalidEmail
	}
	return fold.String(norm.NFKC.String(local)) + "@" + strings.ToLower(ascii), nil
}

// Phone strips common separators and requires an e.164-like "+<digits>" form.
func Phone(s string) (string, error) {
	s = phoneSeparators.Replace(strings.TrimSpace(s))
	if !phonePattern.MatchString(s) {
		return "", ErrInvalidPhone
	}
	return s, nil
}

// Username folds case and compatibility forms, then checks the allowed alphabet.
func Username(s string) (string, error) {
	s = fold.String(norm.NFKC.String(strings.TrimSpace(s)))
	if !usernamePattern.MatchString(s) {
		return "", ErrInvalidUsername
	}
	return s, nil
}

// DisplayName strips markup and control characters and truncates to
// MaxDisplayName runes. The result may be empty.
func DisplayName(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > MaxDisplayName {
		s = string([]rune(s)[:MaxDisplayName])
	}
	return s
}
