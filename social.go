package goIdentity

import (
	"fmt"
	"strings"
)

// Provider names a credential type.
type Provider string

const (
	ProviderEmail     Provider = "email"
	ProviderPhone     Provider = "phone"
	ProviderUsername  Provider = "username"
	ProviderGoogle    Provider = "google"
	ProviderFacebook  Provider = "facebook"
	ProviderApple     Provider = "apple"
	ProviderMicrosoft Provider = "microsoft"
)

// IsSocial reports whether p is an external identity provider.
func (p Provider) IsSocial() bool {
	switch p {
	case ProviderGoogle, ProviderFacebook, ProviderApple, ProviderMicrosoft:
		return true
	}
	return false
}

// SocialIdentity is the closed set of external identities. The concrete types
// are GoogleIdentity, FacebookIdentity, AppleIdentity and MicrosoftIdentity.
type SocialIdentity interface {
	Provider() Provider
	ExternalID() string
	social()
}

type GoogleIdentity struct{ ID string }
type FacebookIdentity struct{ ID string }
type AppleIdentity struct{ ID string }
type MicrosoftIdentity struct{ ID string }

func (GoogleIdentity) Provider() Provider    { return ProviderGoogle }
func (FacebookIdentity) Provider() Provider  { return ProviderFacebook }
func (AppleIdentity) Provider() Provider     { return ProviderApple }
func (MicrosoftIdentity) Provider() Provider { return ProviderMicrosoft }

func (g GoogleIdentity) ExternalID() string    { return g.ID }
func (f FacebookIdentity) ExternalID() string  { return f.ID }
func (a AppleIdentity) ExternalID() string     { return a.ID }
func (m MicrosoftIdentity) ExternalID() string { return m.ID }

func (GoogleIdentity) social()    {}
func (FacebookIdentity) social()  {}
func (AppleIdentity) social()     {}
func (MicrosoftIdentity) social() {}

// NewSocialIdentity builds the identity for provider p. It is the only place a
// provider name is turned into a concrete type.
func NewSocialIdentity(p Provider, externalID string) (SocialIdentity, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: social identity requires an external id", ErrInvalidRequest)
	}
	switch p {
	case ProviderGoogle:
		return GoogleIdentity{ID: externalID}, nil
	case ProviderFacebook:
		return FacebookIdentity{ID: externalID}, nil
	case ProviderApple:
		return AppleIdentity{ID: externalID}, nil
	case ProviderMicrosoft:
		return MicrosoftIdentity{ID: externalID}, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a social provider", ErrInvalidRequest, p)
	}
}

// SocialLinks holds one external id per provider. Empty means unlinked.
type SocialLinks struct {
	GoogleID    string `json:"google_id,omitempty"`
	FacebookID  string `json:"facebook_id,omitempty"`
	AppleID     string `json:"apple_id,omitempty"`
	MicrosoftID string `json:"microsoft_id,omitempty"`
}

// Linked returns the id stored for the provider of id.
func (l SocialLinks) Linked(id SocialIdentity) string {
	switch id.(type) {
	case GoogleIdentity:
		return l.GoogleID
	case FacebookIdentity:
		return l.FacebookID
	case AppleIdentity:
		return l.AppleID
	case MicrosoftIdentity:
		return l.MicrosoftID
	default:
		return ""
	}
}

// Link stores the external id of id under its provider.
func (l *SocialLinks) Link(id SocialIdentity) {
	switch v := id.(type) {
	case GoogleIdentity:
		l.GoogleID = v.ID
	case FacebookIdentity:
		l.FacebookID = v.ID
	case AppleIdentity:
		l.AppleID = v.ID
	case MicrosoftIdentity:
		l.MicrosoftID = v.ID
	}
}

// Identities lists the linked providers.
func (l SocialLinks) Identities() []SocialIdentity {
	var out []SocialIdentity
	if l.GoogleID != "" {
		out = append(out, GoogleIdentity{ID: l.GoogleID})
	}
	if l.FacebookID != "" {
		out = append(out, FacebookIdentity{ID: l.FacebookID})
	}
	if l.AppleID != "" {
		out = append(out, AppleIdentity{ID: l.AppleID})
	}
	if l.MicrosoftID != "" {
		out = append(out, MicrosoftIdentity{ID: l.MicrosoftID})
	}
	return out
}
