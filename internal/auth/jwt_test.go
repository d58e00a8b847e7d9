package auth

import (
	"alcyxob/video-uploads/internal/domain"
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewIssuer("s3cret", "video-uploads", time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWTVerifier("s3cret", "video-uploads")
	require.NoError(t, err)

	token, _, err := issuer.Issue(domain.Identity{UserID: "alice", EmailVerified: true})
	require.NoError(t, err)

	id, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.UserID)
	assert.Equal(t, domain.RoleUser, id.Role)
	assert.True(t, id.EmailVerified)
}

func TestVerify_Rejections(t *testing.T) {
	verifier, err := NewJWTVerifier("s3cret", "video-uploads")
	require.NoError(t, err)

	expiredIssuer, _ := NewIssuer("s3cret", "video-uploads", time.Minute)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := expiredIssuer.Issue(domain.Identity{UserID: "alice"})
	require.NoError(t, err)

	otherSecret, _ := NewIssuer("other", "video-uploads", time.Hour)
	forged, _, _ := otherSecret.Issue(domain.Identity{UserID: "alice"})

	otherIssuer, _ := NewIssuer("s3cret", "someone-else", time.Hour)
	foreign, _, _ := otherIssuer.Issue(domain.Identity{UserID: "alice"})

	noSubject, _, _ := (&Issuer{secret: []byte("s3cret"), issuer: "video-uploads", expiration: time.Hour, now: time.Now}).
		Issue(domain.Identity{})

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", expired, ErrTokenExpired},
		{"wrong secret", forged, ErrInvalidToken},
		{"wrong issuer", foreign, ErrInvalidToken},
		{"missing uid", noSubject, ErrInvalidToken},
		{"alg none", none, ErrInvalidToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	_, err := NewJWTVerifier("", "")
	assert.Error(t, err)
}
