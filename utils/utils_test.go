package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@acme.test", NormalizeEmail("  Jane@ACME.Test "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "jane.doe+tag@acme.test"}
	for _, e := range valid {
		assert.True(t, IsValidEmail(e), e)
	}
	invalid := []string{"", "plain", "a@b", "a b@c.d", "@acme.test"}
	for _, e := range invalid {
		assert.False(t, IsValidEmail(e), e)
	}
}

func TestNormalizeOrgCode(t *testing.T) {
	assert.Equal(t, "ACME-01", NormalizeOrgCode("  acme-01 "))
	assert.Equal(t, "ECOLE", NormalizeOrgCode("école"))
}

func TestGenerateSecureToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		tok, err := GenerateSecureToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		assert.Len(t, raw, 32) // 256 bits

		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("secret123")
	require.NoError(t, err)
	require.NoError(t, CheckPassword(hash, "secret123"))
	require.Error(t, CheckPassword(hash, "wrong"))
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 7, ParseIntDefault("7", 3))
	assert.Equal(t, 3, ParseIntDefault("", 3))
	assert.Equal(t, 3, ParseIntDefault("x", 3))
}
