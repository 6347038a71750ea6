// Package notifications contains transactional email providers used for order
// lifecycle messaging. Template rendering happens provider-side; this package
// only transports template aliases and their models.
package notifications

import (
	"context"
	"errors"
)

// Message is one templated notification to a single recipient.
type Message struct {
	To       string
	Template string
	Model    map[string]any
}

// Result reports the provider-assigned identifier for a sent message.
type Result struct {
	ID string
}

// Provider delivers templated notifications.
type Provider interface {
	Send(ctx context.Context, message Message) (Result, error)
}

// ErrMissingRecipient is returned when a message has no recipient address.
var ErrMissingRecipient = errors.New("notifications: recipient is required")

// ErrMissingTemplate is returned when a message has no template alias.
var ErrMissingTemplate = errors.New("notifications: template is required")

// NopProvider swallows messages; used for local development and tests.
type NopProvider struct{}

// Send implements Provider without delivering anything.
func (NopProvider) Send(_ context.Context, message Message) (Result, error) {
	if message.To == "" {
		return Result{}, ErrMissingRecipient
	}
	if message.Template == "" {
		return Result{}, ErrMissingTemplate
	}
	return Result{ID: "nop"}, nil
}
