package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrEmailInUse         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("session token expired")
	ErrTokenInvalid       = errors.New("session token invalid")
)

const minPasswordLength = 8

// Provider is the external account authority the gateway fronts.
// Credentials are forwarded, never stored here.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (uuid.UUID, error)
	Authenticate(ctx context.Context, email, password string) (uuid.UUID, error)
}

// Revoker remembers ended sessions until their token would have expired
// anyway.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Gateway issues and validates opaque, time-bounded session tokens.
// Every mutating API call revalidates its token here.
type Gateway struct {
	provider Provider
	revoker  Revoker
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewGateway(provider Provider, revoker Revoker, secret string, ttl time.Duration) *Gateway {
	return &Gateway{
		provider: provider,
		revoker:  revoker,
		secret:   []byte(secret),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (g *Gateway) Register(ctx context.Context, email, password string) (uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return uuid.Nil, ErrInvalidCredentials
	}
	if len(password) < minPasswordLength {
		return uuid.Nil, ErrWeakPassword
	}
	return g.provider.CreateAccount(ctx, email, password)
}

func (g *Gateway) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	userID, err := g.provider.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}

	now := g.now()
	claims := jwt.RegisteredClaims{
		Issuer:    "scheduling-ledger",
		Subject:   userID.String(),
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Validate checks signature, expiry and revocation, returning the user id
// the token was issued for.
func (g *Gateway) Validate(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := g.parse(token)
	if err != nil {
		return uuid.Nil, err
	}

	if g.revoker != nil {
		revoked, err := g.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return uuid.Nil, ErrTokenInvalid
		}
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return userID, nil
}

// Logout revokes the token for its remaining validity window. Expired or
// malformed tokens are already dead, so they log out cleanly.
func (g *Gateway) Logout(ctx context.Context, token string) error {
	claims, err := g.parse(token)
	if err != nil {
		return nil
	}
	if g.revoker == nil || claims.ExpiresAt == nil {
		return nil
	}

	remaining := claims.ExpiresAt.Time.Sub(g.now())
	if remaining <= 0 {
		return nil
	}
	if err := g.revoker.Revoke(ctx, claims.ID, remaining); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (g *Gateway) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return g.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at:], ".")
}
