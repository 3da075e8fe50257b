package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLower = "098f6bcd4621d373cade4e832627b4f6"

func TestFromHex_CaseInsensitive(t *testing.T) {
	lower, err := FromHex(sampleLower)
	require.NoError(t, err)

	upper, err := FromHex("098F6BCD4621D373CADE4E832627B4F6")
	require.NoError(t, err)

	mixed, err := FromHex("098F6bcd4621D373cade4e832627b4F6")
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
	assert.Equal(t, lower, mixed)
	assert.Equal(t, sampleLower, lower.Hex())
	assert.Equal(t, strings.ToUpper(sampleLower), lower.UppercaseHex())
}

func TestFromHex_WrongLength(t *testing.T) {
	_, err := FromHex("abcd")
	assert.Error(t, err)
}

func TestFromHex_NonHex(t *testing.T) {
	_, err := FromHex("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestSum(t *testing.T) {
	d := Sum([]byte("test"))
	assert.Equal(t, sampleLower, d.Hex())
}

func TestZero(t *testing.T) {
	z := Zero()
	assert.True(t, z.IsZero())

	d := Sum([]byte("hello"))
	assert.False(t, d.IsZero())
}

func TestFromBytes_WrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}
