package tokens

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var secret = []byte("unit-test-secret")

func TestAccessTokenRoundTrip(t *testing.T) {
	signed, exp, err := SignAccessToken(42, "admin", secret)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(AccessTTL), exp, 5*time.Second)

	claims, err := AccessClaimsFromToken(signed, secret)
	require.NoError(t, err)
	require.Equal(t, "admin", claims.Role)

	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, uint(42), id)
}

func TestAccessTokenWrongSecret(t *testing.T) {
	signed, _, err := SignAccessToken(1, "user", secret)
	require.NoError(t, err)

	_, err = AccessClaimsFromToken(signed, []byte("other-secret"))
	require.Error(t, err)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	signed, exp, err := SignRefreshToken(7, "user", secret)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(RefreshTTL), exp, 5*time.Second)

	claims, err := RefreshClaimsFromToken(signed, secret)
	require.NoError(t, err)
	require.Equal(t, "refresh", claims.Typ)
	require.NotEmpty(t, claims.ID)

	id, err := claims.UserID()
	require.NoError(t, err)
	require.Equal(t, uint(7), id)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	a, _, err := SignRefreshToken(7, "user", secret)
	require.NoError(t, err)
	b, _, err := SignRefreshToken(7, "user", secret)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestAccessTokenIsNotARefreshToken(t *testing.T) {
	signed, _, err := SignAccessToken(7, "user", secret)
	require.NoError(t, err)

	_, err = RefreshClaimsFromToken(signed, secret)
	require.Error(t, err)
}
