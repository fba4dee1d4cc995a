package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, "hunter2", hash)
	assert.True(t, CheckPassword(hash, "hunter2"))
	assert.False(t, CheckPassword(hash, "hunter3"))
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestJWT(t *testing.T) {
	tok, err := SignJWT(42, "01HSESSION", "secret", time.Hour)
	require.NoError(t, err)

	uid, sid, err := ParseJWT(tok, "secret")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), uid)
	assert.Equal(t, "01HSESSION", sid)

	_, _, err = ParseJWT(tok, "other-secret")
	assert.Error(t, err)
}

func TestJWT_Expired(t *testing.T) {
	tok, err := SignJWT(1, "sid", "secret", -time.Minute)
	require.NoError(t, err)

	_, _, err = ParseJWT(tok, "secret")
	assert.Error(t, err)
}
