// Package slack posts back-office notifications to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrSlackSendFailed is returned when Slack API fails
	ErrSlackSendFailed = errors.New("failed to send Slack notification")
)

// Message represents a Slack message
type Message struct {
	Text string `json:"text"`
}

// SlackClient is an interface for sending Slack notifications
type SlackClient interface {
	SendMessage(ctx context.Context, msg Message) error
}

// WebhookClient implements SlackClient using Slack webhooks
type WebhookClient struct {
	webhookURL string
	http       *resty.Client
}

// NewWebhookClient creates a new Slack webhook client
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		http: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

// SendMessage sends a message to Slack via webhook. It is never retried.
func (c *WebhookClient) SendMessage(ctx context.Context, msg Message) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(msg).
		Post(c.webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSlackSendFailed, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrSlackSendFailed, resp.StatusCode())
	}
	return nil
}

// Service handles Slack notifications
type Service struct {
	client SlackClient
}

// NewService creates a new Slack service. A nil client disables notifications.
func NewService(client SlackClient) *Service {
	return &Service{
		client: client,
	}
}

// IsEnabled returns true if Slack notifications are enabled
func (s *Service) IsEnabled() bool {
	return s != nil && s.client != nil
}

// Notify posts plain text.
func (s *Service) Notify(ctx context.Context, text string) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.client.SendMessage(ctx, Message{Text: text})
}

// NotifyAnnouncement relays a team announcement.
func (s *Service) NotifyAnnouncement(ctx context.Context, author, title, body string) error {
	text := fmt.Sprintf("📣 *%s*\n%s\n_posted by %s_", title, body, author)
	return s.Notify(ctx, text)
}

// NotifyImportComplete summarizes a CSV import.
func (s *Service) NotifyImportComplete(ctx context.Context, userEmail string, imported, skipped int) error {
	text := fmt.Sprintf("📥 *Lead Import Complete*\n"+
		"• User: %s\n"+
		"• Imported: %d\n"+
		"• Skipped: %d",
		userEmail, imported, skipped)
	return s.Notify(ctx, text)
}

// NotifyDuplicates reports how many duplicate candidates a scan found.
func (s *Service) NotifyDuplicates(ctx context.Context, emailGroups, phoneGroups, namePairs int) error {
	text := fmt.Sprintf("🔁 *Possible Duplicate Leads*\n"+
		"• Email groups: %d\n"+
		"• Phone groups: %d\n"+
		"• Similar names: %d",
		emailGroups, phoneGroups, namePairs)
	return s.Notify(ctx, text)
}
