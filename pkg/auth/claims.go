// Package auth mints and verifies the HS256 bearer tokens that guard the
// admin API. The operator identity travels in the subject claim and the
// admin role in a private "role" claim.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
)

var errNoSubject = errors.New("token subject is required")

// Grant is what an operator is given when a token is minted.
type Grant struct {
	Subject string
	Role    enums.AdminRole
	// ID is the jti; a uuid is generated when empty.
	ID string
}

func (g Grant) check() error {
	if strings.TrimSpace(g.Subject) == "" {
		return errNoSubject
	}
	if !g.Role.IsValid() {
		return fmt.Errorf("invalid admin role %q", g.Role)
	}
	return nil
}

// Claims is the decoded token.
type Claims struct {
	Role enums.AdminRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the parser's own time and issuer checks.
func (c Claims) Validate() error {
	return Grant{Subject: c.Subject, Role: c.Role}.check()
}

// Grant returns the operator the token speaks for.
func (c Claims) Grant() Grant {
	return Grant{Subject: strings.TrimSpace(c.Subject), Role: c.Role, ID: c.ID}
}

var _ jwt.ClaimsValidator = Claims{}
