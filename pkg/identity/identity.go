// Package identity exposes the signed-in user as a capability. Credential
// handling belongs to whatever provider backs it.
package identity

import (
	"context"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const AnonymousName = "Usuário"

// User is the profile reported by the identity provider. Every field may be empty.
type User struct {
	DisplayName string `json:"displayName,omitempty" yaml:"display_name,omitempty" mapstructure:"display-name"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email" validate:"omitempty,email"`
	PhotoURL    string `json:"photoURL,omitempty" yaml:"photo_url,omitempty" mapstructure:"photo-url" validate:"omitempty,url"`
}

func (u *User) IsZero() bool {
	return u == nil || (u.DisplayName == "" && u.Email == "" && u.PhotoURL == "")
}

// Provider is the identity capability the session consumes.
type Provider interface {
	// CurrentUser returns nil when nobody is signed in.
	CurrentUser(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error
}

// DisplayName picks the display name, then the local part of the email,
// then AnonymousName.
func DisplayName(u *User) string {
	if u == nil {
		return AnonymousName
	}
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(u.Email, "@"); local != "" {
		return local
	}
	return AnonymousName
}

// Initial is the upper-cased first letter of the display name.
func Initial(u *User) string {
	r, _ := utf8.DecodeRuneInString(DisplayName(u))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// SignOut signs out through p and only logs failures.
func SignOut(ctx context.Context, p Provider) {
	if p == nil {
		return
	}
	if err := p.SignOut(ctx); err != nil {
		log.Error().Err(err).Msg("failed to sign out")
	}
}

// Static is a Provider backed by a fixed profile, typically from settings.
type Static struct {
	mu   sync.RWMutex
	user *User
}

var _ Provider = &Static{}

// NewStatic returns a provider signed in as u. A zero user means signed out.
func NewStatic(u User) *Static {
	ret := &Static{}
	if !u.IsZero() {
		ret.user = &u
	}
	return ret
}

func (s *Static) CurrentUser(ctx context.Context) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}

func (s *Static) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return nil
}
