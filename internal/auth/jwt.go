// Package auth verifies bearer tokens and turns them into caller identities.
package auth

import (
	"alcyxob/video-uploads/internal/domain"
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Verifier resolves a bearer token to the identity it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// jwtClaims defines the structure of the JWT payload.
type jwtClaims struct {
	UserID        string      `json:"uid"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. An empty issuer skips the iss check.
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*domain.Identity, error) {
	claims := &jwtClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, ErrInvalidToken
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	return &domain.Identity{
		UserID:        claims.UserID,
		Role:          role,
		EmailVerified: claims.EmailVerified,
	}, nil
}

// Issuer mints tokens the JWTVerifier accepts. The server never calls it;
// it serves the uploader CLI and tests.
type Issuer struct {
	secret     []byte
	issuer     string
	expiration time.Duration
	now        func() time.Time
}

func NewIssuer(secret, issuer string, expiration time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	if expiration <= 0 {
		expiration = time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, expiration: expiration, now: time.Now}, nil
}

// Issue signs a token for identity and returns it with its expiry.
func (i *Issuer) Issue(identity domain.Identity) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.expiration)
	claims := &jwtClaims{
		UserID:        identity.UserID,
		Role:          identity.Role,
		EmailVerified: identity.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
