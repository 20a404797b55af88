package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/llm"
	"github.com/xaenox/agent-worker/internal/models"
)

type step struct {
	resp llm.Response
	err  error
}

// scriptedModel replays steps in order and repeats the last one.
type scriptedModel struct {
	mu    sync.Mutex
	steps []step
	calls [][]models.ConversationMessage
	tools [][]models.ToolSpec
}

func (m *scriptedModel) Complete(_ context.Context, messages []models.ConversationMessage, specs []models.ToolSpec) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]models.ConversationMessage(nil), messages...))
	m.tools = append(m.tools, specs)
	i := len(m.calls) - 1
	if i >= len(m.steps) {
		i = len(m.steps) - 1
	}
	return m.steps[i].resp, m.steps[i].err
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func answer(text string) step {
	return step{resp: llm.Response{Content: text}}
}

func callTools(calls ...models.ToolCall) step {
	return step{resp: llm.Response{ToolCalls: calls}}
}

func fail(msg string) step {
	return step{err: errors.New(msg)}
}

type sentMessage struct {
	companyID      string
	conversationID string
	content        string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) Send(_ context.Context, companyID, conversationID, content string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{companyID, conversationID, content})
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(`{"success":true}`), nil
}

func (s *recordingSender) SendMedia(context.Context, string, string, delivery.Media) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

func (s *recordingSender) HumanHandoff(context.Context, string, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

type recordingObserver struct {
	mu       sync.Mutex
	models   []bool
	loops    []string
	statuses []string
}

func (o *recordingObserver) ObserveModel(success bool, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.models = append(o.models, success)
}

func (o *recordingObserver) ObserveLoop(outcome string, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loops = append(o.loops, outcome)
}

func (o *recordingObserver) ObserveJob(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

type clientLookupFunc func(ctx context.Context, companyID, conversationID string) (string, error)

func (f clientLookupFunc) ClientID(ctx context.Context, companyID, conversationID string) (string, error) {
	return f(ctx, companyID, conversationID)
}
