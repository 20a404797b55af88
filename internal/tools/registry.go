package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/models"
)

// ExecutionContext is passed explicitly to every executor. Tenant scope
// always comes from here, never from model arguments.
type ExecutionContext struct {
	CompanyID      string
	ConversationID string
	ClientID       string
}

// Executor performs one tool call with validated arguments.
type Executor interface {
	Execute(ctx context.Context, args json.RawMessage, ectx ExecutionContext) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage, ectx ExecutionContext) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, args json.RawMessage, ectx ExecutionContext) (any, error) {
	return f(ctx, args, ectx)
}

// Definition describes a tool. Every RequiredFeatures entry must be
// enabled for the tenant before the tool is offered or run.
type Definition struct {
	Name             string
	Description      string
	Parameters       map[string]any
	RequiredFeatures []models.Feature
	Validator        Validator
	Executor         Executor
}

// Observer receives one call per Execute with its outcome kind.
type Observer interface {
	ObserveTool(name, outcome string, elapsed time.Duration)
}

// Registry is the catalog of callable tools. Build it once at startup and
// share it; Register is not meant to be called while jobs are running.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	tools    map[string]Definition
	logger   *zap.Logger
	observer Observer
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Definition),
		logger: logger,
	}
}

// SetObserver installs a metrics hook.
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// Register adds def or replaces the tool with the same name, keeping its
// original position. It panics on definitions that can never be valid.
func (r *Registry) Register(def Definition) {
	if def.Name == "" {
		panic("tools: definition without a name")
	}
	if def.Executor == nil {
		panic(fmt.Sprintf("tools: %s has no executor", def.Name))
	}
	for _, f := range def.RequiredFeatures {
		if !f.Known() {
			panic(fmt.Sprintf("tools: %s requires unknown feature %q", def.Name, f))
		}
	}
	if def.Parameters == nil {
		def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = def
	r.logger.Debug("Tool registered", zap.String("tool", def.Name))
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// AvailableTools returns the model-facing schemas of every tool whose
// required features are all enabled, in registration order.
func (r *Registry) AvailableTools(features models.FeatureSet) []models.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]models.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]
		if !available(def, features) {
			continue
		}
		specs = append(specs, models.ToolSpec{
			Type: "function",
			Function: models.FunctionSpec{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return specs
}

func available(def Definition, features models.FeatureSet) bool {
	for _, f := range def.RequiredFeatures {
		if !features.Enabled(f) {
			return false
		}
	}
	return true
}

// Execute runs a tool call end to end and never returns a raw fault:
// unknown tools, gated tools, bad arguments, executor errors and panics
// all come back as a classified Result.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string, ectx ExecutionContext, features models.FeatureSet) Result {
	start := time.Now()
	res := r.execute(ctx, name, rawArgs, ectx, features)

	r.mu.RLock()
	observer := r.observer
	r.mu.RUnlock()
	if observer != nil {
		observer.ObserveTool(name, res.Kind(), time.Since(start))
	}
	return res
}

func (r *Registry) execute(ctx context.Context, name, rawArgs string, ectx ExecutionContext, features models.FeatureSet) Result {
	logger := r.logger.With(
		zap.String("tool", name),
		zap.String("company_id", ectx.CompanyID),
		zap.String("conversation_id", ectx.ConversationID),
	)

	r.mu.RLock()
	def, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		logger.Warn("Unknown tool requested")
		return Err(&ToolError{
			Kind:       KindSystem,
			Message:    fmt.Sprintf("Tool '%s' não encontrada", name),
			Suggestion: "Verifique o nome da tool e tente novamente",
		})
	}

	if !available(def, features) {
		logger.Info("Tool blocked by tenant features")
		return Err(BusinessRuleError("Tool '%s' não está habilitada para esta empresa", name))
	}

	args := json.RawMessage(bytes.TrimSpace([]byte(rawArgs)))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) || args[0] != '{' {
		logger.Warn("Tool arguments are not a JSON object")
		return Err(&ToolError{
			Kind:       KindValidation,
			Message:    "Argumentos inválidos: esperado um objeto JSON",
			Suggestion: "Verifique os parâmetros fornecidos",
		})
	}

	if def.Validator != nil {
		validated, err := def.Validator.Validate(args)
		if err != nil {
			logger.Info("Tool arguments rejected", zap.Error(err))
			return Err(ValidationError("Parâmetros inválidos: %v", err))
		}
		args = validated
	}

	payload, err := r.invoke(ctx, def, args, ectx, logger)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return Err(te)
		}
		logger.Error("Tool execution failed", zap.Error(err))
		return Err(SystemError("Erro ao executar tool: %v", err))
	}

	if msg, failed := embeddedFailure(payload); failed {
		logger.Warn("Tool returned an embedded error", zap.String("error", msg))
		return Err(SystemError("%s", msg))
	}

	logger.Info("Tool executed")
	return Ok(payload)
}

func (r *Registry) invoke(ctx context.Context, def Definition, args json.RawMessage, ectx ExecutionContext, logger *zap.Logger) (payload any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Tool executor panicked", zap.Any("panic", p), zap.Stack("stack"))
			payload = nil
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return def.Executor.Execute(ctx, args, ectx)
}
