package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaqueVerifier(t *testing.T) {
	v := NewVerifier("")

	id, err := v.Verify("user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", id.UserID)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMintAndVerify(t *testing.T) {
	token, err := Mint("s3cret", "u1", "Ada", time.Hour)
	require.NoError(t, err)

	id, err := NewVerifier("s3cret").Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", UserName: "Ada"}, id)
}

func TestVerifyRejects(t *testing.T) {
	good, err := Mint("s3cret", "u1", "", time.Hour)
	require.NoError(t, err)
	expired, err := Mint("s3cret", "u1", "", -time.Hour)
	require.NoError(t, err)
	noUser, err := Mint("s3cret", "", "", time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", good + "x"},
		{"expired", expired},
		{"no user", noUser},
		{"alg none", unsigned},
	}
	v := NewVerifier("s3cret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	other, err := Mint("other", "u1", "", time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMintNeedsSecret(t *testing.T) {
	_, err := Mint("", "u1", "", time.Hour)
	assert.Error(t, err)
}
