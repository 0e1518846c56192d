package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSlackClient simulates Slack webhook API
type MockSlackClient struct {
	shouldFail bool
	messages   []Message
}

func (m *MockSlackClient) SendMessage(ctx context.Context, msg Message) error {
	if m.shouldFail {
		return ErrSlackSendFailed
	}
	m.messages = append(m.messages, msg)
	return nil
}

func TestAnnouncementNotification(t *testing.T) {
	client := &MockSlackClient{}
	service := NewService(client)

	t.Run("Success - Send announcement", func(t *testing.T) {
		err := service.NotifyAnnouncement(context.Background(), "Admin", "Office closed", "Friday is a holiday")

		require.NoError(t, err)
		require.Len(t, client.messages, 1)
		assert.Contains(t, client.messages[0].Text, "Office closed")
		assert.Contains(t, client.messages[0].Text, "Friday is a holiday")
		assert.Contains(t, client.messages[0].Text, "Admin")
	})

	t.Run("Failure - Slack API error", func(t *testing.T) {
		failing := NewService(&MockSlackClient{shouldFail: true})

		err := failing.NotifyAnnouncement(context.Background(), "Admin", "T", "B")
		assert.ErrorIs(t, err, ErrSlackSendFailed)
	})
}

func TestImportAndDuplicateNotifications(t *testing.T) {
	client := &MockSlackClient{}
	service := NewService(client)

	require.NoError(t, service.NotifyImportComplete(context.Background(), "admin@example.com", 40, 2))
	require.NoError(t, service.NotifyDuplicates(context.Background(), 3, 1, 7))

	require.Len(t, client.messages, 2)
	assert.Contains(t, client.messages[0].Text, "Imported: 40")
	assert.Contains(t, client.messages[0].Text, "Skipped: 2")
	assert.Contains(t, client.messages[1].Text, "Similar names: 7")
}

func TestServiceDisabled(t *testing.T) {
	service := NewService(nil)
	assert.False(t, service.IsEnabled())
	assert.NoError(t, service.Notify(context.Background(), "ignored"))

	var nilService *Service
	assert.False(t, nilService.IsEnabled())
}

func TestWebhookClient(t *testing.T) {
	var got Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewWebhookClient(server.URL).SendMessage(context.Background(), Message{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Text)
}

func TestWebhookClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewWebhookClient(server.URL).SendMessage(context.Background(), Message{Text: "x"})
	assert.ErrorIs(t, err, ErrSlackSendFailed)

	err = NewWebhookClient("").SendMessage(context.Background(), Message{Text: "x"})
	assert.ErrorContains(t, err, "not configured")
}
