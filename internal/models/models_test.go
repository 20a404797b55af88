package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestJobUnmarshalCreatedAt(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "iso string",
			body: `{"job_id":"j1","created_at":"2025-03-10T14:00:00Z"}`,
			want: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		},
		{
			name: "iso string without zone",
			body: `{"job_id":"j1","created_at":"2025-03-10T14:00:00.123"}`,
			want: time.Date(2025, 3, 10, 14, 0, 0, 123000000, time.UTC),
		},
		{
			name: "unix seconds",
			body: `{"job_id":"j1","created_at":1700000000}`,
			want: time.Unix(1700000000, 0),
		},
		{
			name: "unix milliseconds",
			body: `{"job_id":"j1","created_at":1700000000123}`,
			want: time.UnixMilli(1700000000123),
		},
		{
			name: "missing",
			body: `{"job_id":"j1"}`,
			want: fixed,
		},
		{
			name: "null",
			body: `{"job_id":"j1","created_at":null}`,
			want: fixed,
		},
		{
			name: "garbage",
			body: `{"job_id":"j1","created_at":"yesterday-ish"}`,
			want: fixed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var job Job
			if err := json.Unmarshal([]byte(tt.body), &job); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !job.CreatedAt.Equal(tt.want) {
				t.Errorf("CreatedAt = %v, want %v", job.CreatedAt, tt.want)
			}
			if job.JobID != "j1" {
				t.Errorf("JobID = %q, want j1", job.JobID)
			}
		})
	}
}

func TestJobUnmarshalFields(t *testing.T) {
	body := `{"job_id":"j1","company_id":"c1","conversation_id":"conv1","message":"Quero agendar","channel":"whatsapp","metadata":{"from":"5511"}}`
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if job.CompanyID != "c1" || job.ConversationID != "conv1" || job.Message != "Quero agendar" || job.Channel != "whatsapp" {
		t.Errorf("unexpected job: %+v", job)
	}
	if job.Metadata["from"] != "5511" {
		t.Errorf("Metadata = %v", job.Metadata)
	}
}

func TestJobValidate(t *testing.T) {
	job := Job{JobID: "j1", CompanyID: " ", ConversationID: ""}
	err := job.Validate()
	if !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("Validate() error = %v, want ErrInvalidJob", err)
	}
	want := "invalid job: missing company_id, conversation_id"
	if err.Error() != want {
		t.Errorf("Validate() = %q, want %q", err.Error(), want)
	}

	ok := Job{JobID: "j1", CompanyID: "c1", ConversationID: "conv1"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if ok.CreatedAt.IsZero() {
		t.Error("Validate() should default CreatedAt")
	}
}

func TestFeatureSetUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantMax  int
		wantPix  bool
		want48h  bool
		wantFail bool
	}{
		{name: "empty keeps defaults", body: `{}`, want48h: true},
		{name: "integer override", body: `{"max_tool_iterations":3,"ask_for_pix":true}`, wantMax: 3, wantPix: true, want48h: true},
		{name: "integral float ignored", body: `{"max_tool_iterations":4.0}`, want48h: true},
		{name: "exponent ignored", body: `{"max_tool_iterations":3e0}`, want48h: true},
		{name: "upper exponent ignored", body: `{"max_tool_iterations":3E0}`, want48h: true},
		{name: "zero ignored", body: `{"max_tool_iterations":0}`, want48h: true},
		{name: "negative ignored", body: `{"max_tool_iterations":-2}`, want48h: true},
		{name: "fraction ignored", body: `{"max_tool_iterations":2.5}`, want48h: true},
		{name: "string ignored", body: `{"max_tool_iterations":"7"}`, want48h: true},
		{name: "flag turned off", body: `{"auto_confirmations_48h":false}`},
		{name: "bad flag type", body: `{"ask_for_pix":"yes"}`, wantFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fs FeatureSet
			err := json.Unmarshal([]byte(tt.body), &fs)
			if tt.wantFail {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if fs.MaxToolIterations != tt.wantMax {
				t.Errorf("MaxToolIterations = %d, want %d", fs.MaxToolIterations, tt.wantMax)
			}
			if fs.AskForPix != tt.wantPix {
				t.Errorf("AskForPix = %v, want %v", fs.AskForPix, tt.wantPix)
			}
			if fs.AutoConfirmations48h != tt.want48h {
				t.Errorf("AutoConfirmations48h = %v, want %v", fs.AutoConfirmations48h, tt.want48h)
			}
		})
	}
}

func TestFeatureSetIterationCeiling(t *testing.T) {
	if got := (FeatureSet{}).IterationCeiling(0); got != DefaultMaxToolIterations {
		t.Errorf("IterationCeiling(0) = %d, want %d", got, DefaultMaxToolIterations)
	}
	if got := (FeatureSet{}).IterationCeiling(8); got != 8 {
		t.Errorf("IterationCeiling(8) = %d, want 8", got)
	}
	if got := (FeatureSet{MaxToolIterations: 2}).IterationCeiling(8); got != 2 {
		t.Errorf("override IterationCeiling = %d, want 2", got)
	}
}

func TestFeatureEnabled(t *testing.T) {
	fs := FeatureSet{AskForPix: true}
	if !fs.Enabled(FeatureAskForPix) {
		t.Error("ask_for_pix should be enabled")
	}
	if fs.Enabled(FeatureRequireDeposit) {
		t.Error("require_deposit should be disabled")
	}
	if fs.Enabled(Feature("ask_for_pics")) {
		t.Error("unknown flags must never be enabled")
	}
	if Feature("ask_for_pics").Known() {
		t.Error("typo flag reported as known")
	}
}
