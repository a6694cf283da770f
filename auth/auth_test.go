package auth

import (
	"circles/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokenManager("test-secret", time.Hour)

	token, err := tokens.GenerateToken(42)
	req.NoError(err)

	claims, err := tokens.ValidateToken(token)
	req.NoError(err)
	req.Equal(int64(42), claims.UserID)
	req.Equal("42", claims.Subject)
}

func TestTokenManager_Rejections(t *testing.T) {
	tokens := NewTokenManager("test-secret", time.Hour)
	valid, err := tokens.GenerateToken(7)
	require.NoError(t, err)

	expired := NewTokenManager("test-secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.GenerateToken(7)
	require.NoError(t, err)

	other, err := NewTokenManager("another-secret", time.Hour).GenerateToken(7)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &CustomClaims{UserID: 7}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"expired", old},
		{"wrong secret", other},
		{"unsigned", none},
		{"tampered", valid + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}
