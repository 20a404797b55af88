// Package llm talks to the chat model and condenses conversations into summaries.
package llm

import (
	"context"
	"errors"

	"github.com/xaenox/agent-worker/internal/models"
)

// ErrEmptyResponse is returned when the model answers without any choice.
var ErrEmptyResponse = errors.New("model returned no choices")

// Response is one model turn: text, tool calls, or both.
type Response struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Client performs one chat completion. tools may be empty.
type Client interface {
	Complete(ctx context.Context, messages []models.ConversationMessage, tools []models.ToolSpec) (Response, error)
}
