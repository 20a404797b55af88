package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/llm"
	"github.com/xaenox/agent-worker/internal/models"
	"github.com/xaenox/agent-worker/internal/policy"
	"github.com/xaenox/agent-worker/internal/prompt"
	"github.com/xaenox/agent-worker/internal/storage"
)

// Status is the final state of a processed job.
type Status string

const (
	StatusProcessed      Status = "processed"
	StatusDuplicate      Status = "duplicate"
	StatusInvalid        Status = "invalid"
	StatusFailed         Status = "failed"
	StatusDeliveryFailed Status = "delivery_failed"
)

// ErrDeliveryFailed wraps a reply that was persisted but not delivered.
var ErrDeliveryFailed = errors.New("delivery failed")

const (
	DefaultSummaryEvery   = 5
	DefaultSummaryTimeout = 45 * time.Second
)

// Dependencies are the collaborators a Runner needs.
type Dependencies struct {
	ShortTerm  storage.ShortTermStore
	LongTerm   storage.LongTermStore
	Policies   policy.Resolver
	Assembler  *prompt.Assembler
	Loop       *Loop
	Sender     delivery.Sender
	Summarizer llm.Summarizer
}

type RunnerOptions struct {
	HistoryLimit   int
	SummaryEvery   int
	SummaryTimeout time.Duration
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = prompt.DefaultHistoryLimit
	}
	if o.SummaryEvery <= 0 {
		o.SummaryEvery = DefaultSummaryEvery
	}
	if o.SummaryTimeout <= 0 {
		o.SummaryTimeout = DefaultSummaryTimeout
	}
	return o
}

// Runner processes one job end to end: idempotency, memory commit, the
// tool loop, delivery and summary upkeep.
type Runner struct {
	deps     Dependencies
	opts     RunnerOptions
	observer Observer
	logger   *zap.Logger

	summaries sync.WaitGroup
}

func NewRunner(deps Dependencies, opts RunnerOptions, logger *zap.Logger) *Runner {
	return &Runner{
		deps:     deps,
		opts:     opts.withDefaults(),
		observer: nopObserver{},
		logger:   logger,
	}
}

func (r *Runner) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	r.observer = o
}

// Wait blocks until background summary updates have finished.
func (r *Runner) Wait() {
	r.summaries.Wait()
}

// Process handles job. A job that was already processed is a silent no-op
// reported as StatusDuplicate with a nil error.
func (r *Runner) Process(ctx context.Context, job models.Job) (Status, error) {
	status, err := r.process(ctx, job)
	r.observer.ObserveJob(string(status))
	return status, err
}

func (r *Runner) process(ctx context.Context, job models.Job) (Status, error) {
	if err := job.Validate(); err != nil {
		return StatusInvalid, err
	}

	logger := r.logger.With(
		zap.String("job_id", job.JobID),
		zap.String("company_id", job.CompanyID),
		zap.String("conversation_id", job.ConversationID),
		zap.String("channel", job.Channel),
	)

	processed, err := r.deps.ShortTerm.IsJobProcessed(ctx, job.JobID)
	if err != nil {
		return StatusFailed, fmt.Errorf("error checking job marker: %w", err)
	}
	if processed {
		logger.Info("Job already processed, skipping")
		return StatusDuplicate, nil
	}

	inbound := models.ConversationMessage{Role: models.RoleUser, Content: job.Message}
	if err := r.commit(ctx, job, inbound); err != nil {
		return StatusFailed, fmt.Errorf("error recording inbound message: %w", err)
	}

	marked, err := r.deps.ShortTerm.MarkJobProcessed(ctx, job.JobID)
	if err != nil {
		return StatusFailed, fmt.Errorf("error marking job processed: %w", err)
	}
	if !marked {
		logger.Warn("Job marked by another worker, skipping")
		return StatusDuplicate, nil
	}
	committed := 1

	tenant, err := r.deps.Policies.Resolve(ctx, job.CompanyID)
	if err != nil {
		logger.Warn("Tenant policy partially loaded, using defaults for the rest", zap.Error(err))
		if tenant.CompanyID == "" {
			tenant = models.DefaultPolicy(job.CompanyID)
		}
	}

	input := r.loadContext(ctx, job, inbound, logger)
	input.Policy = tenant
	input.Features = tenant.Features

	scope := Scope{CompanyID: job.CompanyID, ConversationID: job.ConversationID}
	result, err := r.deps.Loop.Run(ctx, r.deps.Assembler.Assemble(input), scope, tenant.Features)
	if err != nil {
		return StatusFailed, fmt.Errorf("error running tool loop: %w", err)
	}

	if result.Content == "" {
		logger.Info("Model produced no reply", zap.String("outcome", string(result.Outcome)))
		r.maybeSummarize(ctx, job, committed, logger)
		return StatusProcessed, nil
	}

	reply := models.ConversationMessage{Role: models.RoleAssistant, Content: result.Content}
	commitErr := r.commit(ctx, job, reply)
	if commitErr != nil {
		logger.Error("Failed to record reply", zap.Error(commitErr))
	} else {
		committed++
	}
	r.maybeSummarize(ctx, job, committed, logger)

	if _, err := r.deps.Sender.Send(ctx, job.CompanyID, job.ConversationID, result.Content); err != nil {
		logger.Error("Failed to deliver reply", zap.Error(err))
		return StatusDeliveryFailed, fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(err, commitErr))
	}
	if commitErr != nil {
		return StatusFailed, fmt.Errorf("error recording reply: %w", commitErr)
	}

	logger.Info("Job processed",
		zap.String("outcome", string(result.Outcome)),
		zap.Int("iteration", result.Iterations))
	return StatusProcessed, nil
}

// commit appends msg to the short-term window and then the durable log.
func (r *Runner) commit(ctx context.Context, job models.Job, msg models.ConversationMessage) error {
	if err := r.deps.ShortTerm.Append(ctx, job.CompanyID, job.ConversationID, msg); err != nil {
		return fmt.Errorf("short-term append: %w", err)
	}
	if err := r.deps.LongTerm.SaveMessage(ctx, job.CompanyID, job.ConversationID, msg); err != nil {
		return fmt.Errorf("long-term save: %w", err)
	}
	return nil
}

// loadContext never fails: every read that errors degrades to an empty value.
func (r *Runner) loadContext(ctx context.Context, job models.Job, inbound models.ConversationMessage, logger *zap.Logger) prompt.Input {
	var in prompt.Input

	recent, err := r.deps.ShortTerm.Recent(ctx, job.CompanyID, job.ConversationID, r.opts.HistoryLimit)
	if err != nil {
		logger.Warn("Failed to load recent messages", zap.Error(err))
		recent = []models.ConversationMessage{inbound}
	}
	in.Recent = recent

	if in.Summary, err = r.deps.LongTerm.LoadSummary(ctx, job.CompanyID, job.ConversationID); err != nil {
		logger.Warn("Failed to load summary", zap.Error(err))
		in.Summary = ""
	}
	if in.Preferences, err = r.deps.LongTerm.LoadPreferences(ctx, job.CompanyID, job.ConversationID); err != nil {
		logger.Warn("Failed to load preferences", zap.Error(err))
		in.Preferences = models.Preferences{}
	}
	if in.Decisions, err = r.deps.LongTerm.LoadRelevantDecisions(ctx, job.CompanyID, job.ConversationID); err != nil {
		logger.Warn("Failed to load long-term decisions", zap.Error(err))
		in.Decisions = nil
	}
	return in
}

// maybeSummarize starts a background summary update when the durable
// message count crossed a multiple of SummaryEvery with this job's writes.
func (r *Runner) maybeSummarize(ctx context.Context, job models.Job, committed int, logger *zap.Logger) {
	if r.deps.Summarizer == nil || committed == 0 {
		return
	}
	count, err := r.deps.LongTerm.CountMessages(ctx, job.CompanyID, job.ConversationID)
	if err != nil {
		logger.Warn("Failed to count messages", zap.Error(err))
		return
	}
	if !crossedThreshold(count, committed, r.opts.SummaryEvery) {
		return
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.SummaryTimeout)
	r.summaries.Add(1)
	go func() {
		defer r.summaries.Done()
		defer cancel()
		r.updateSummary(bg, job, logger)
	}()
}

func crossedThreshold(count, added, every int) bool {
	if every <= 0 || count <= 0 {
		return false
	}
	before := count - added
	if before < 0 {
		before = 0
	}
	return count/every > before/every
}

func (r *Runner) updateSummary(ctx context.Context, job models.Job, logger *zap.Logger) {
	recent, err := r.deps.ShortTerm.Recent(ctx, job.CompanyID, job.ConversationID, r.opts.HistoryLimit)
	if err != nil {
		logger.Warn("Failed to load messages for summary", zap.Error(err))
		return
	}
	previous, err := r.deps.LongTerm.LoadSummary(ctx, job.CompanyID, job.ConversationID)
	if err != nil {
		logger.Warn("Failed to load previous summary", zap.Error(err))
		previous = ""
	}

	summary, err := r.deps.Summarizer.Summarize(ctx, previous, recent)
	if err != nil {
		logger.Warn("Failed to summarize conversation", zap.Error(err))
		return
	}
	if err := r.deps.LongTerm.UpdateSummary(ctx, job.CompanyID, job.ConversationID, summary); err != nil {
		logger.Error("Failed to update summary", zap.Error(err))
		return
	}
	logger.Info("Conversation summary updated")
}
