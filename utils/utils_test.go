package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Format(t *testing.T) {
	id := NewID()

	require.Len(t, id, 36)
	parts := strings.Split(id, "-")
	require.Len(t, parts, 5)
	assert.Equal(t, byte('4'), id[14], "version nibble")
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerateCredential(t *testing.T) {
	cred, err := GenerateCredential()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(cred, "TKT-"))

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(cred, "TKT-"))
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestGenerateCredential_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		cred, err := GenerateCredential()
		require.NoError(t, err)
		require.False(t, seen[cred])
		seen[cred] = true
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(8)
	require.NoError(t, err)

	assert.Len(t, code, 16)
	assert.Equal(t, strings.ToUpper(code), code)
}
