package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePID_RoundTrip(t *testing.T) {
	pid, err := ParsePID("1111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "1111111111111111", pid.String())
}

func TestParsePID_CanonicalizesUppercase(t *testing.T) {
	pid, err := ParsePID("0123456789ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", pid.String())
}

func TestParsePID_RejectsWrongLength(t *testing.T) {
	_, err := ParsePID("short")
	assert.ErrorIs(t, err, ErrInvalidPID)

	_, err = ParsePID("11111111111111111111")
	assert.ErrorIs(t, err, ErrInvalidPID)
}

func TestParsePID_RejectsNonHex(t *testing.T) {
	_, err := ParsePID("zzzzzzzzzzzzzzzz")
	assert.ErrorIs(t, err, ErrInvalidPID)
}

func TestParsePID_Idempotent(t *testing.T) {
	pid, err := ParsePID("abcdefabcdef1234")
	require.NoError(t, err)

	again, err := ParsePID(pid.String())
	require.NoError(t, err)
	assert.Equal(t, pid, again)
}

func TestPIDFromBytes(t *testing.T) {
	pid, err := ParsePID("1111111111111111")
	require.NoError(t, err)

	rebuilt, err := PIDFromBytes(pid.Bytes())
	require.NoError(t, err)
	assert.Equal(t, pid, rebuilt)

	_, err = PIDFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
