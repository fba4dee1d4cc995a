package ai

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider sends one completion request and returns the reply text.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ErrMissingAPIKey is returned before any request is sent.
var ErrMissingAPIKey = errors.New("api key is required")

// ResponseError means the provider answered but the reply field was absent.
// Raw holds the response body as received.
type ResponseError struct {
	Provider string
	Status   int
	Raw      string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response (status %d): %s", e.Provider, e.Status, e.Raw)
}
