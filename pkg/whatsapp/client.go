// Package whatsapp sends text messages through the WhatsApp Business Cloud API.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrNotConfigured is returned when the token or phone number id is missing.
var ErrNotConfigured = errors.New("whatsapp is not configured")

// Config holds the Cloud API credentials.
type Config struct {
	APIURL        string
	Token         string
	PhoneNumberID string
}

// Configured reports whether every credential is set.
func (c Config) Configured() bool {
	return c.APIURL != "" && c.Token != "" && c.PhoneNumberID != ""
}

type textBody struct {
	Body string `json:"body"`
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Client talks to the Cloud API. Requests are never retried so a lead is
// not messaged twice.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient creates a new WhatsApp client
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
			SetTimeout(15*time.Second).
			SetAuthToken(cfg.Token).
			SetHeader("Content-Type", "application/json"),
	}
}

// Configured reports whether the client can send.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.Configured()
}

// SendText sends body to the E.164 number to and returns the message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	to = strings.TrimPrefix(strings.TrimSpace(to), "+")
	if to == "" {
		return "", errors.New("recipient phone number is empty")
	}

	var (
		out    sendResponse
		failed apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("phone_number_id", c.cfg.PhoneNumberID).
		SetBody(sendRequest{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               to,
			Type:             "text",
			Text:             textBody{Body: body},
		}).
		SetResult(&out).
		SetError(&failed).
		Post("/{phone_number_id}/messages")
	if err != nil {
		return "", fmt.Errorf("whatsapp request failed: %w", err)
	}
	if resp.IsError() {
		if failed.Error.Message != "" {
			return "", fmt.Errorf("whatsapp returned %d: %s", resp.StatusCode(), failed.Error.Message)
		}
		return "", fmt.Errorf("whatsapp returned %d", resp.StatusCode())
	}
	if len(out.Messages) == 0 {
		return "", errors.New("whatsapp response carried no message id")
	}
	return out.Messages[0].ID, nil
}
