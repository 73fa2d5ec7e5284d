// Package provider exposes the contract for the external messaging provider:
// sending messages, fetching delivery status and fetching replies.
package provider

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status is a delivery status as reported by the provider.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusSent           Status = "sent"
	StatusFailed         Status = "failed"
	StatusInvalidPayload Status = "invalid_payload"
	StatusUnknown        Status = "unknown"
)

var (
	// ErrInvalidPayload is returned when the provider rejects a request as malformed (HTTP 422).
	ErrInvalidPayload = errors.New("provider rejected malformed payload")
	// ErrUnknownMessage is returned when the provider does not know a message id (HTTP 404).
	ErrUnknownMessage = errors.New("provider does not know message id")
	// ErrUnexpectedResponse is returned for non-2xx answers or undecodable bodies.
	ErrUnexpectedResponse = errors.New("unexpected provider response")
)

// SendResponse is the typed outcome of one send. Transport and protocol failures
// are folded into Status/Error instead of being returned as errors.
type SendResponse struct {
	Status    Status
	MessageID string
	Error     string
}

// Accepted reports whether the provider took the message for delivery.
func (r SendResponse) Accepted() bool {
	return r.Status == StatusQueued || r.Status == StatusSent
}

// SendResult is one campaign send as handed to ingestion.
type SendResult struct {
	Name      string
	Phone     string
	Message   string
	Status    Status
	MessageID string
	Error     string
	Timestamp time.Time
}

// ReplyResponse carries the latest reply for a message, if any.
type ReplyResponse struct {
	Reply     string
	Timestamp string
}

// Client is the contract for a messaging provider implementation.
type Client interface {
	// Send delivers body to phone. The phone is normalized to a leading "+".
	Send(ctx context.Context, phone, body string) SendResponse

	// Status returns the provider's current status for a message.
	// On any failure it returns StatusUnknown and the cause.
	Status(ctx context.Context, messageID string) (Status, error)

	// Reply returns the recipient's reply for a message. An empty Reply means
	// the recipient has not answered.
	Reply(ctx context.Context, messageID string) (ReplyResponse, error)

	// Health checks whether the provider is reachable.
	Health(ctx context.Context) error
}

// NormalizePhone returns phone in canonical form with a leading "+".
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" || strings.HasPrefix(p, "+") {
		return p
	}
	return "+" + p
}
