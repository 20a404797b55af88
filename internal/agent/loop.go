// Package agent runs conversation turns: the tool-calling loop and the job
// pipeline around it.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/llm"
	"github.com/xaenox/agent-worker/internal/models"
	"github.com/xaenox/agent-worker/internal/tools"
)

const (
	// FatalErrorMessage is returned when the last allowed iteration fails.
	FatalErrorMessage = "Desculpe, ocorreu um erro ao processar sua solicitação. Por favor, tente novamente ou solicite ajuda humana."
	// IterationLimitMessage is returned when the model keeps calling tools.
	IterationLimitMessage = "Desculpe, não consegui processar sua solicitação completamente. Por favor, reformule sua pergunta ou solicite ajuda humana."
)

// Outcome is the terminal state of a loop run.
type Outcome string

const (
	OutcomeAnswered       Outcome = "answered"
	OutcomeIterationLimit Outcome = "iteration_limit"
	OutcomeFatalError     Outcome = "fatal_error"
)

// LoopResult is what a loop run produced.
type LoopResult struct {
	Outcome    Outcome
	Content    string
	Iterations int
	// Messages is the context as it stood when the loop ended.
	Messages []models.ConversationMessage
}

// Scope identifies the conversation a loop runs for.
type Scope struct {
	CompanyID      string
	ConversationID string
}

// ClientLookup resolves the end client bound to a conversation.
type ClientLookup interface {
	ClientID(ctx context.Context, companyID, conversationID string) (string, error)
}

// Loop alternates model calls and tool executions until the model answers
// without tools or the iteration ceiling is hit.
type Loop struct {
	model          llm.Client
	registry       *tools.Registry
	clients        ClientLookup
	defaultCeiling int
	observer       Observer
	logger         *zap.Logger
}

// NewLoop builds a loop. defaultCeiling applies to tenants without an
// override; zero means models.DefaultMaxToolIterations.
func NewLoop(model llm.Client, registry *tools.Registry, clients ClientLookup, defaultCeiling int, logger *zap.Logger) *Loop {
	return &Loop{
		model:          model,
		registry:       registry,
		clients:        clients,
		defaultCeiling: defaultCeiling,
		observer:       nopObserver{},
		logger:         logger,
	}
}

func (l *Loop) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	l.observer = o
}

// Run drives the loop over messages. Model faults are absorbed into the
// result; the only error returned is the cancellation of ctx.
func (l *Loop) Run(ctx context.Context, messages []models.ConversationMessage, scope Scope, features models.FeatureSet) (LoopResult, error) {
	ceiling := features.IterationCeiling(l.defaultCeiling)
	specs := l.registry.AvailableTools(features)
	logger := l.logger.With(
		zap.String("company_id", scope.CompanyID),
		zap.String("conversation_id", scope.ConversationID),
	)

	msgs := append([]models.ConversationMessage(nil), messages...)
	finish := func(outcome Outcome, content string, iterations int) LoopResult {
		l.observer.ObserveLoop(string(outcome), iterations)
		logger.Info("Tool loop finished",
			zap.String("outcome", string(outcome)),
			zap.Int("iteration", iterations))
		return LoopResult{Outcome: outcome, Content: content, Iterations: iterations, Messages: msgs}
	}

	for iteration := 1; iteration <= ceiling; iteration++ {
		if err := ctx.Err(); err != nil {
			return LoopResult{Iterations: iteration - 1, Messages: msgs}, err
		}

		start := time.Now()
		resp, err := l.model.Complete(ctx, msgs, specs)
		l.observer.ObserveModel(err == nil, time.Since(start))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return LoopResult{Iterations: iteration, Messages: msgs}, ctxErr
			}
			logger.Error("Model call failed",
				zap.Int("iteration", iteration),
				zap.Error(err))
			if iteration == ceiling {
				return finish(OutcomeFatalError, FatalErrorMessage, iteration), nil
			}
			continue
		}

		if len(resp.ToolCalls) == 0 {
			return finish(OutcomeAnswered, resp.Content, iteration), nil
		}

		results := make([]models.ConversationMessage, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			ectx := tools.ExecutionContext{
				CompanyID:      scope.CompanyID,
				ConversationID: scope.ConversationID,
				ClientID:       l.clientID(ctx, scope, logger),
			}
			res := l.registry.Execute(ctx, call.Name, call.Arguments, ectx, features)
			if res.IsError() {
				logger.Info("Tool call returned an error",
					zap.String("tool", call.Name),
					zap.String("error_type", res.Kind()),
					zap.Int("iteration", iteration))
			}
			results = append(results, models.ConversationMessage{
				Role:       models.RoleTool,
				Content:    res.JSON(),
				ToolCallID: call.ID,
			})
		}

		// The assistant turn has to precede the results that answer it.
		msgs = append(msgs, models.ConversationMessage{
			Role:      models.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		msgs = append(msgs, results...)
	}

	return finish(OutcomeIterationLimit, IterationLimitMessage, ceiling), nil
}

// clientID is looked up for every call so a binding made by an earlier
// tool in the same turn is visible to the next one.
func (l *Loop) clientID(ctx context.Context, scope Scope, logger *zap.Logger) string {
	if l.clients == nil {
		return ""
	}
	id, err := l.clients.ClientID(ctx, scope.CompanyID, scope.ConversationID)
	if err != nil {
		logger.Warn("Failed to resolve client id", zap.Error(err))
		return ""
	}
	return id
}
