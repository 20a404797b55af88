package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// Feature names a per-tenant boolean flag.
type Feature string

const (
	FeatureAskForPix            Feature = "ask_for_pix"
	FeatureRequireDeposit       Feature = "require_deposit"
	FeatureAutoConfirmations48h Feature = "auto_confirmations_48h"
	FeatureAutoConfirmations24h Feature = "auto_confirmations_24h"
	FeatureAutoConfirmations2h  Feature = "auto_confirmations_2h"
	FeatureWaitlist             Feature = "waitlist_enabled"
	FeatureMarketingCampaigns   Feature = "marketing_campaigns"
)

// AllFeatures lists every known flag in display order.
var AllFeatures = []Feature{
	FeatureAskForPix,
	FeatureRequireDeposit,
	FeatureAutoConfirmations48h,
	FeatureAutoConfirmations24h,
	FeatureAutoConfirmations2h,
	FeatureWaitlist,
	FeatureMarketingCampaigns,
}

// Known reports whether f is one of the enumerated flags.
func (f Feature) Known() bool {
	for _, known := range AllFeatures {
		if f == known {
			return true
		}
	}
	return false
}

// DefaultMaxToolIterations is the loop ceiling when a tenant has no override.
const DefaultMaxToolIterations = 5

// FeatureSet is the closed set of tenant flags.
//
// Defaults: every flag is off except the three automatic confirmation
// reminders, and MaxToolIterations is 0 (no override).
type FeatureSet struct {
	AskForPix            bool `json:"ask_for_pix"`
	RequireDeposit       bool `json:"require_deposit"`
	AutoConfirmations48h bool `json:"auto_confirmations_48h"`
	AutoConfirmations24h bool `json:"auto_confirmations_24h"`
	AutoConfirmations2h  bool `json:"auto_confirmations_2h"`
	WaitlistEnabled      bool `json:"waitlist_enabled"`
	MarketingCampaigns   bool `json:"marketing_campaigns"`
	// MaxToolIterations overrides the loop ceiling when positive.
	MaxToolIterations int `json:"max_tool_iterations,omitempty"`
}

// DefaultFeatures returns the flag values used for tenants without a row.
func DefaultFeatures() FeatureSet {
	return FeatureSet{
		AutoConfirmations48h: true,
		AutoConfirmations24h: true,
		AutoConfirmations2h:  true,
	}
}

// Enabled reports the state of a flag. Unknown flags are never enabled.
func (fs FeatureSet) Enabled(f Feature) bool {
	switch f {
	case FeatureAskForPix:
		return fs.AskForPix
	case FeatureRequireDeposit:
		return fs.RequireDeposit
	case FeatureAutoConfirmations48h:
		return fs.AutoConfirmations48h
	case FeatureAutoConfirmations24h:
		return fs.AutoConfirmations24h
	case FeatureAutoConfirmations2h:
		return fs.AutoConfirmations2h
	case FeatureWaitlist:
		return fs.WaitlistEnabled
	case FeatureMarketingCampaigns:
		return fs.MarketingCampaigns
	}
	return false
}

// IterationCeiling returns the tenant override when it is a positive
// integer and fallback otherwise.
func (fs FeatureSet) IterationCeiling(fallback int) int {
	if fs.MaxToolIterations > 0 {
		return fs.MaxToolIterations
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultMaxToolIterations
}

// UnmarshalJSON decodes flags on top of DefaultFeatures. A max_tool_iterations
// value that is not a positive integer is dropped instead of failing the decode.
func (fs *FeatureSet) UnmarshalJSON(data []byte) error {
	type plain FeatureSet
	decoded := plain(DefaultFeatures())
	aux := struct {
		*plain
		MaxToolIterations json.RawMessage `json:"max_tool_iterations"`
	}{plain: &decoded}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	decoded.MaxToolIterations = parseIterationOverride(aux.MaxToolIterations)
	*fs = FeatureSet(decoded)
	return nil
}

func parseIterationOverride(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || bytes.Equal(raw, []byte("null")) {
		return 0
	}
	// Only integer literals count; 3.0 and 3e0 are floats.
	if bytes.ContainsAny(raw, ".eE") {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	v, err := n.Int64()
	if err != nil || v <= 0 || v > math.MaxInt32 {
		return 0
	}
	return int(v)
}

// TenantPolicy is the per-tenant agent configuration.
type TenantPolicy struct {
	CompanyID string         `json:"company_id"`
	Tone      string         `json:"tone"`
	Rules     string         `json:"rules"`
	Policies  map[string]any `json:"policies,omitempty"`
	Features  FeatureSet     `json:"features"`
}

// DefaultTone is used when a tenant has not configured one.
const DefaultTone = "Amigável e profissional"

// DefaultPolicy returns the policy applied when nothing is configured.
func DefaultPolicy(companyID string) TenantPolicy {
	return TenantPolicy{
		CompanyID: companyID,
		Tone:      DefaultTone,
		Features:  DefaultFeatures(),
	}
}
