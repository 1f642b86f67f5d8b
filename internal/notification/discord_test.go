package notification

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendDiscordSuccessNotification(t *testing.T) {
	var got DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	t.Setenv("DISCORD_SUCCESS_NOTIFICATION_URL", server.URL)

	require.NoError(t, SendDiscordSuccessNotification("seasonal maximum written"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "seasonal maximum written", got.Embeds[0].Description)
	assert.Equal(t, colorGreen, got.Embeds[0].Color)
}

func TestSendDiscordErrorNotificationStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	t.Setenv("DISCORD_ERROR_NOTIFICATION_URL", server.URL)

	err := SendDiscordErrorNotification("boom")
	assert.ErrorContains(t, err, "status code: 400")
}

func TestSendWithoutWebhookIsNoop(t *testing.T) {
	t.Setenv("DISCORD_WARN_NOTIFICATION_URL", "")
	assert.NoError(t, SendDiscordWarnNotification("nothing configured"))
}
