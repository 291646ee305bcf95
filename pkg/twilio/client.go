// Package twilio sends WhatsApp messages through the Twilio Messaging API.
package twilio

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/aliskhannn/shipping-reminder/pkg/phone"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends WhatsApp messages from one Twilio sender number.
type Client struct {
	api  messageCreator
	from string
}

// NewClient creates a Client authenticated with the account SID and auth token.
// from is the WhatsApp-enabled sender number, with or without the "whatsapp:" prefix.
func NewClient(accountSID, authToken, from string) *Client {
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return newClient(rc.Api, from)
}

func newClient(api messageCreator, from string) *Client {
	return &Client{api: api, from: from}
}

// Send delivers text to the phone number over WhatsApp. When imageURL is set it
// is attached as media.
//
// The Twilio SDK is not context-aware, so Send returns when ctx is done even if
// the request is still in flight.
func (c *Client) Send(ctx context.Context, to, text, imageURL string) error {
	number, err := phone.Normalize(to)
	if err != nil {
		return fmt.Errorf("twilio: %w: %q", err, to)
	}
	from, err := phone.Normalize(c.from)
	if err != nil {
		return fmt.Errorf("twilio: sender: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + number)
	params.SetFrom("whatsapp:" + from)
	params.SetBody(text)
	if imageURL != "" {
		params.SetMediaUrl([]string{imageURL})
	}

	type result struct {
		msg *twilioApi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)

	go func() {
		msg, err := c.api.CreateMessage(params)
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("twilio: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("twilio: create message: %w", r.err)
		}
		if r.msg != nil && r.msg.ErrorCode != nil {
			return fmt.Errorf("twilio: message rejected with code %d", *r.msg.ErrorCode)
		}
		return nil
	}
}
