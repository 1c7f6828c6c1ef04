package handlers

import (
	"testing"

	"ticket-marketplace/internal/gateway/paylink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookHandler_AuthorizeSecret(t *testing.T) {
	hash, err := paylink.HashWebhookSecret("hook-secret")
	require.NoError(t, err)

	h := &WebhookHandler{secretHash: hash}
	assert.True(t, h.authorizeSecret("hook-secret"))
	assert.False(t, h.authorizeSecret("wrong-secret"))
	assert.False(t, h.authorizeSecret(""))
}

func TestWebhookHandler_AuthorizeSecret_DisabledWithoutHash(t *testing.T) {
	h := &WebhookHandler{}
	assert.True(t, h.authorizeSecret(""))
	assert.True(t, h.authorizeSecret("anything"))
}
