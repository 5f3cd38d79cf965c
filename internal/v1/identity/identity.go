package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the locally cached authenticated identity. Ownership of chat
// messages is decided by comparing sender email against this, never by a
// server-supplied flag.
type User struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Picture  string `json:"picture,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// Cell is a mutable single-slot holder for the current user. The signaling
// event handler is registered once per session but must always read the
// latest identity; the session owns the cell and writes it whenever the
// profile loads. Scoped to the session lifetime, not a package global.
type Cell struct {
	mu   sync.RWMutex
	user User
	set  bool
}

// Store replaces the current user.
func (c *Cell) Store(u User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
	c.set = true
}

// Load returns the current user and whether one has been stored.
func (c *Cell) Load() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user, c.set
}

// TokenClaims is the subset of bearer-token claims the client cares about.
// The token is parsed without verification: signature checks are the
// server's job, the client only needs display identity and expiry.
type TokenClaims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Picture  string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken decodes the bearer token's claims without verifying the
// signature. Returns an error for structurally invalid tokens.
func ParseToken(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse bearer token: %w", err)
	}
	return claims, nil
}

// ExpiresWithin reports whether the token expires within d. Tokens without
// an expiry claim never report as expiring.
func (c *TokenClaims) ExpiresWithin(d time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Until(c.ExpiresAt.Time) < d
}

// User converts the claims into a local User.
func (c *TokenClaims) User() User {
	return User{
		Email:    c.Email,
		FullName: c.FullName,
		Picture:  c.Picture,
	}
}
