// Package ultramsg provides a client for sending WhatsApp messages through
// the UltraMsg HTTP API.
//
// Text messages go to /{instance}/messages/chat, messages with a picture go to
// /{instance}/messages/image with the text as caption.
package ultramsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aliskhannn/shipping-reminder/pkg/phone"
)

// ErrNotSent is returned when UltraMsg answers 200 but reports the message as not sent.
var ErrNotSent = errors.New("ultramsg: message not sent")

// Client represents an UltraMsg client bound to one WhatsApp instance.
type Client struct {
	baseURL    string       // API root, e.g. https://api.ultramsg.com
	instanceID string       // UltraMsg instance id
	token      string       // instance token
	client     *http.Client // HTTP client used to make requests
}

// NewClient creates a new UltraMsg Client.
func NewClient(baseURL, instanceID, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		instanceID: instanceID,
		token:      token,
		client:     &http.Client{},
	}
}

// sendResponse is the subset of the UltraMsg reply we inspect.
type sendResponse struct {
	Sent    string `json:"sent"`
	Message string `json:"message"`
	Error   any    `json:"error"`
}

// Send delivers text to the phone number. When imageURL is set the image is
// sent with text as its caption.
//
// Cancellation and deadlines are taken from ctx.
func (c *Client) Send(ctx context.Context, to, text, imageURL string) error {
	number, err := phone.Normalize(to)
	if err != nil {
		return fmt.Errorf("ultramsg: %w: %q", err, to)
	}

	form := url.Values{}
	form.Set("token", c.token)
	form.Set("to", number)

	endpoint := "messages/chat"
	if imageURL != "" {
		endpoint = "messages/image"
		form.Set("image", imageURL)
		form.Set("caption", text)
	} else {
		form.Set("body", text)
	}

	u := fmt.Sprintf("%s/%s/%s", c.baseURL, url.PathEscape(c.instanceID), endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("ultramsg: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ultramsg: send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("ultramsg: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ultramsg API error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var r sendResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return fmt.Errorf("ultramsg: decode response: %w", err)
	}
	if r.Error != nil {
		return fmt.Errorf("%w: %v", ErrNotSent, r.Error)
	}
	if r.Sent != "true" {
		return fmt.Errorf("%w: %s", ErrNotSent, r.Message)
	}

	return nil
}
