package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ticket-marketplace/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAwait(t *testing.T, cfg *config.Config, purchaseID string) string {
	t.Helper()

	cmd := newAwaitCommand(cfg)
	cmd.SetArgs([]string{purchaseID})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestAwaitCommand_SettledPurchase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"completed"}`)
	}))
	defer srv.Close()

	out := runAwait(t, &config.Config{
		PublicURL:       srv.URL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 3,
	}, "p-1")

	assert.Contains(t, out, "settled as completed")
}

func TestAwaitCommand_DefersWhenBudgetExhausted(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"pending"}`)
	}))
	defer srv.Close()

	out := runAwait(t, &config.Config{
		PublicURL:       srv.URL,
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 4,
	}, "p-1")

	assert.Contains(t, out, "still pending after 4 attempts")
	assert.Equal(t, 4, polls, "the budget bounds the number of polls")
}
