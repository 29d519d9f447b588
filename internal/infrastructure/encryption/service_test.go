package encryption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)

	sealed, err := svc.Encrypt("shpat_secret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, sealedPrefix))
	assert.NotContains(t, sealed, "shpat_secret")

	again, err := svc.Encrypt("shpat_secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonces are random")

	plain, err := svc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret", plain)
}

func TestDecryptRejectsTampering(t *testing.T) {
	svc, err := NewService(testKey)
	require.NoError(t, err)
	other, err := NewService(strings.Repeat("ab", 32))
	require.NoError(t, err)

	sealed, err := svc.Encrypt("token")
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.Error(t, err)
	_, err = svc.Decrypt("plain-token")
	assert.ErrorIs(t, err, errMalformed)
}

func TestNewServiceKeyFormats(t *testing.T) {
	_, err := NewService("")
	assert.Error(t, err)
	_, err = NewService("short")
	assert.Error(t, err)
	_, err = NewService(strings.Repeat("ab", 32))
	assert.NoError(t, err)
}
