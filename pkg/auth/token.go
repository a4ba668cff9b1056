package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/catalogsync-backend/pkg/config"
)

// Leeway absorbs clock skew between the console that mints tokens and the API.
const Leeway = 30 * time.Second

var method = jwt.SigningMethodHS256

// Signer holds the key material for one issuer.
type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case strings.TrimSpace(cfg.Issuer) == "":
		return nil, errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return nil, fmt.Errorf("jwt expiration must be positive, got %d minutes", cfg.ExpirationMinutes)
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(Leeway),
		),
	}, nil
}

// TTL is how long a freshly minted token stays valid.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Mint signs a token for g valid from now for the configured TTL.
func (s *Signer) Mint(now time.Time, g Grant) (string, error) {
	if err := g.check(); err != nil {
		return "", err
	}
	id := strings.TrimSpace(g.ID)
	if id == "" {
		id = uuid.NewString()
	}
	claims := Claims{
		Role: g.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strings.TrimSpace(g.Subject),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, issuer, expiry and role of raw.
func (s *Signer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

// Expired reports whether err came from an out-of-date token.
func Expired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
