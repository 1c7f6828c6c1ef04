package paylink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHmac256_Deterministic(t *testing.T) {
	body := []byte(`{"billNumber":"p-1","txnAmount":"100"}`)
	key := []byte("shared-key")

	first := Hmac256(body, key)
	second := Hmac256(body, key)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"billNumber":"p-1"}`)
	key := []byte("shared-key")

	sig := Hmac256(body, key)
	assert.True(t, VerifySignature(body, key, sig))

	assert.False(t, VerifySignature(body, []byte("other-key"), sig))
	assert.False(t, VerifySignature([]byte(`{"billNumber":"p-2"}`), key, sig))
	assert.False(t, VerifySignature(body, key, "not-a-signature"))
}

func TestWebhookSecretHashing(t *testing.T) {
	hash, err := HashWebhookSecret("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	assert.True(t, CompareWebhookSecret(hash, "s3cret"))
	assert.False(t, CompareWebhookSecret(hash, "wrong"))
}

func TestRequestID(t *testing.T) {
	id, err := requestID()
	require.NoError(t, err)
	assert.Len(t, id, 18)
}
