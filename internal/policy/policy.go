// Package policy resolves per-tenant agent configuration and feature flags.
package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/models"
)

// Resolver loads the policy of a tenant. Implementations return the
// defaults for tenants that have nothing configured. On error the returned
// policy is still usable: what loaded is kept, the rest is defaulted.
type Resolver interface {
	Resolve(ctx context.Context, companyID string) (models.TenantPolicy, error)
}

// PostgresResolver reads agent_configs and agent_features.
type PostgresResolver struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresResolver(db *sql.DB, logger *zap.Logger) *PostgresResolver {
	return &PostgresResolver{db: db, logger: logger}
}

func (r *PostgresResolver) Resolve(ctx context.Context, companyID string) (models.TenantPolicy, error) {
	policy := models.DefaultPolicy(companyID)

	configErr := r.loadConfig(ctx, &policy)
	if configErr != nil {
		policy = models.DefaultPolicy(companyID)
	}

	features, featuresErr := r.loadFeatures(ctx, companyID)
	policy.Features = features

	return policy, errors.Join(configErr, featuresErr)
}

func (r *PostgresResolver) loadConfig(ctx context.Context, policy *models.TenantPolicy) error {
	query := `
		SELECT tone, rules, policies
		FROM agent_configs
		WHERE empresa_id = $1`

	var (
		tone, rules sql.NullString
		policies    []byte
	)
	err := r.db.QueryRowContext(ctx, query, policy.CompanyID).Scan(&tone, &rules, &policies)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading agent config: %w", err)
	}

	if t := strings.TrimSpace(tone.String); t != "" {
		policy.Tone = t
	}
	policy.Rules = rules.String
	if len(policies) > 0 {
		if err := json.Unmarshal(policies, &policy.Policies); err != nil {
			r.logger.Warn("Ignoring malformed tenant policies",
				zap.String("company_id", policy.CompanyID),
				zap.Error(err))
			policy.Policies = nil
		}
	}
	return nil
}

func (r *PostgresResolver) loadFeatures(ctx context.Context, companyID string) (models.FeatureSet, error) {
	query := `
		SELECT ask_for_pix, require_deposit,
		       auto_confirmations_48h, auto_confirmations_24h, auto_confirmations_2h,
		       waitlist_enabled, marketing_campaigns, max_tool_iterations
		FROM agent_features
		WHERE empresa_id = $1`

	fs := models.DefaultFeatures()
	var maxIterations sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, companyID).Scan(
		&fs.AskForPix,
		&fs.RequireDeposit,
		&fs.AutoConfirmations48h,
		&fs.AutoConfirmations24h,
		&fs.AutoConfirmations2h,
		&fs.WaitlistEnabled,
		&fs.MarketingCampaigns,
		&maxIterations,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultFeatures(), nil
	}
	if err != nil {
		return models.DefaultFeatures(), fmt.Errorf("error loading agent features: %w", err)
	}

	if maxIterations.Valid && maxIterations.Int64 > 0 {
		fs.MaxToolIterations = int(maxIterations.Int64)
	}
	return fs, nil
}

// StaticResolver serves policies from memory. Unknown tenants get the defaults.
type StaticResolver struct {
	mu       sync.RWMutex
	policies map[string]models.TenantPolicy
}

func NewStaticResolver(policies ...models.TenantPolicy) *StaticResolver {
	r := &StaticResolver{policies: make(map[string]models.TenantPolicy)}
	for _, p := range policies {
		r.Set(p)
	}
	return r
}

// Set adds or replaces the policy of p.CompanyID.
func (r *StaticResolver) Set(p models.TenantPolicy) {
	if strings.TrimSpace(p.Tone) == "" {
		p.Tone = models.DefaultTone
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[p.CompanyID] = p
}

func (r *StaticResolver) Resolve(ctx context.Context, companyID string) (models.TenantPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.policies[companyID]; ok {
		return p, nil
	}
	return models.DefaultPolicy(companyID), nil
}
