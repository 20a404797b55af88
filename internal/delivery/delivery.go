// Package delivery sends agent output to end users through the messaging
// backend or Telegram.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
)

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
)

// Valid reports whether m is a supported media type.
func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaDocument:
		return true
	}
	return false
}

type Media struct {
	URL     string
	Type    MediaType
	Caption string
}

// Sender is the outbound channel. Responses are the provider's JSON reply.
type Sender interface {
	Send(ctx context.Context, companyID, conversationID, content string) (json.RawMessage, error)
	SendMedia(ctx context.Context, companyID, conversationID string, media Media) (json.RawMessage, error)
	HumanHandoff(ctx context.Context, companyID, conversationID, reason string) (json.RawMessage, error)
}

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}
