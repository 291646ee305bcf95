// Package email sends operator alerts over SMTP.
package email

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/mail.v2"
)

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// Client sends plain-text alert emails to a fixed list of recipients.
type Client struct {
	dialer  sender
	from    string
	to      []string
	subject string
}

// NewClient creates a Client. to is a comma-separated recipient list.
func NewClient(smtpHost string, smtpPort int, username, password, from, to string) *Client {
	return newClient(mail.NewDialer(smtpHost, smtpPort, username, password), from, to)
}

func newClient(d sender, from, to string) *Client {
	recipients := make([]string, 0)
	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			recipients = append(recipients, addr)
		}
	}

	return &Client{
		dialer:  d,
		from:    from,
		to:      recipients,
		subject: "Shipping reminder alert",
	}
}

// Alert emails text to every recipient in a single message.
func (c *Client) Alert(ctx context.Context, text string) error {
	if len(c.to) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	message := mail.NewMessage()

	message.SetHeader("From", c.from)
	message.SetHeader("To", c.to...)
	message.SetHeader("Subject", c.subject)

	message.SetBody("text/plain", text)

	if err := c.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	return nil
}
