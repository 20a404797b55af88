package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/agent"
	"github.com/xaenox/agent-worker/internal/models"
)

type stubProcessor struct {
	status agent.Status
	err    error
	got    []models.Job
}

func (p *stubProcessor) Process(_ context.Context, job models.Job) (agent.Status, error) {
	p.got = append(p.got, job)
	if err := job.Validate(); err != nil {
		return agent.StatusInvalid, err
	}
	return p.status, p.err
}

type countingObserver struct {
	seen []string
}

func (o *countingObserver) ObserveHTTP(method, path string, code int) {
	o.seen = append(o.seen, fmt.Sprintf("%s %s %d", method, path, code))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProcess(t *testing.T) {
	const validJob = `{"job_id":"j1","company_id":"c1","conversation_id":"conv1","message":"Quero agendar","channel":"whatsapp"}`

	tests := []struct {
		name       string
		body       string
		status     agent.Status
		err        error
		wantCode   int
		wantBody   map[string]string
		wantDetail string
	}{
		{
			name:     "processed",
			body:     validJob,
			status:   agent.StatusProcessed,
			wantCode: http.StatusOK,
			wantBody: map[string]string{"status": "ok", "job_id": "j1"},
		},
		{
			name:     "duplicate is ok",
			body:     validJob,
			status:   agent.StatusDuplicate,
			wantCode: http.StatusOK,
			wantBody: map[string]string{"status": "ok", "job_id": "j1"},
		},
		{
			name:       "delivery failure",
			body:       validJob,
			status:     agent.StatusDeliveryFailed,
			err:        fmt.Errorf("%w: HTTP 502", agent.ErrDeliveryFailed),
			wantCode:   http.StatusInternalServerError,
			wantDetail: "delivery failed: HTTP 502",
		},
		{
			name:       "malformed body",
			body:       `{"job_id":`,
			wantCode:   http.StatusBadRequest,
			wantDetail: "invalid job payload",
		},
		{
			name:       "missing identifiers",
			body:       `{"job_id":"j1","message":"oi"}`,
			wantCode:   http.StatusUnprocessableEntity,
			wantDetail: "company_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProcessor{status: tt.status, err: tt.err}
			s := New(Config{}, p, nil, nil, zap.NewNop())

			rec := do(t, s.Handler(), http.MethodPost, "/process", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			for k, v := range tt.wantBody {
				if body[k] != v {
					t.Errorf("body[%s] = %q, want %q", k, body[k], v)
				}
			}
			if tt.wantDetail != "" && !strings.Contains(body["detail"], tt.wantDetail) {
				t.Errorf("detail = %q, want it to contain %q", body["detail"], tt.wantDetail)
			}
		})
	}
}

func TestProcessDecodesCreatedAt(t *testing.T) {
	p := &stubProcessor{status: agent.StatusProcessed}
	s := New(Config{}, p, nil, nil, zap.NewNop())

	rec := do(t, s.Handler(), http.MethodPost, "/process", `{"job_id":"j1","company_id":"c1","conversation_id":"conv1","created_at":1700000000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if len(p.got) != 1 || p.got[0].CreatedAt.Unix() != 1700000000 {
		t.Errorf("jobs = %+v", p.got)
	}
}

func TestHealth(t *testing.T) {
	obs := &countingObserver{}
	s := New(Config{}, &stubProcessor{}, nil, obs, zap.NewNop())

	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if len(obs.seen) != 1 || obs.seen[0] != "GET /health 200" {
		t.Errorf("observed = %v", obs.seen)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "agent_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	s := New(Config{}, &stubProcessor{}, reg, nil, zap.NewNop())
	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "agent_test_total 1") {
		t.Errorf("metrics = %d %s", rec.Code, rec.Body.String())
	}

	without := New(Config{}, &stubProcessor{}, nil, nil, zap.NewNop())
	if rec := do(t, without.Handler(), http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics without gatherer = %d", rec.Code)
	}
}

func TestProcessorErrorIsNotLeakedAsPanic(t *testing.T) {
	p := &stubProcessor{status: agent.StatusFailed, err: errors.New("redis: connection refused")}
	s := New(Config{}, p, nil, nil, zap.NewNop())
	rec := do(t, s.Handler(), http.MethodPost, "/process", `{"job_id":"j1","company_id":"c1","conversation_id":"conv1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d", rec.Code)
	}
}
