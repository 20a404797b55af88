package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/models"
)

type backendCall struct {
	method string
	id     string
	query  url.Values
	body   map[string]any
}

type fakeBackend struct {
	mu       sync.Mutex
	calls    []backendCall
	response json.RawMessage
	err      error
}

func (b *fakeBackend) record(method, id string, q url.Values, body map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, backendCall{method: method, id: id, query: q, body: body})
	if b.err != nil {
		return nil, b.err
	}
	if b.response == nil {
		return json.RawMessage(`{"success":true}`), nil
	}
	return b.response, nil
}

func (b *fakeBackend) last(t *testing.T) backendCall {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.calls) == 0 {
		t.Fatal("backend was not called")
	}
	return b.calls[len(b.calls)-1]
}

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) AvailableSlots(_ context.Context, q url.Values) (json.RawMessage, error) {
	return b.record("AvailableSlots", "", q, nil)
}

func (b *fakeBackend) CreateAppointment(_ context.Context, body map[string]any) (json.RawMessage, error) {
	return b.record("CreateAppointment", "", nil, body)
}

func (b *fakeBackend) RescheduleAppointment(_ context.Context, id string, body map[string]any) (json.RawMessage, error) {
	return b.record("RescheduleAppointment", id, nil, body)
}

func (b *fakeBackend) CancelAppointment(_ context.Context, id string, q url.Values) (json.RawMessage, error) {
	return b.record("CancelAppointment", id, q, nil)
}

func (b *fakeBackend) ListAppointments(_ context.Context, q url.Values) (json.RawMessage, error) {
	return b.record("ListAppointments", "", q, nil)
}

func (b *fakeBackend) ListStaff(_ context.Context, q url.Values) (json.RawMessage, error) {
	return b.record("ListStaff", "", q, nil)
}

func (b *fakeBackend) ListServices(_ context.Context, q url.Values) (json.RawMessage, error) {
	return b.record("ListServices", "", q, nil)
}

func (b *fakeBackend) CreatePaymentLink(_ context.Context, body map[string]any) (json.RawMessage, error) {
	return b.record("CreatePaymentLink", "", nil, body)
}

func (b *fakeBackend) PaymentStatus(_ context.Context, id string, q url.Values) (json.RawMessage, error) {
	return b.record("PaymentStatus", id, q, nil)
}

type fakeSender struct {
	mu      sync.Mutex
	media   []delivery.Media
	reasons []string
}

func (s *fakeSender) Send(context.Context, string, string, string) (json.RawMessage, error) {
	return json.RawMessage(`{"success":true}`), nil
}

func (s *fakeSender) SendMedia(_ context.Context, _, _ string, m delivery.Media) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = append(s.media, m)
	return json.RawMessage(`{"success":true}`), nil
}

func (s *fakeSender) HumanHandoff(_ context.Context, _, _ string, reason string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	return json.RawMessage(`{"success":true}`), nil
}

func newBuiltinRegistry() (*Registry, *fakeBackend, *fakeSender) {
	backend := &fakeBackend{}
	sender := &fakeSender{}
	r := NewRegistry(zap.NewNop())
	RegisterBuiltins(r, backend, sender)
	return r, backend, sender
}

func TestBuiltinCatalog(t *testing.T) {
	r, _, _ := newBuiltinRegistry()

	want := []string{
		"check_available_slots", "create_appointment", "reschedule_appointment", "cancel_appointment",
		"list_staff", "list_services", "list_appointments", "list_prices",
		"check_payment_status", "create_payment_link",
		"request_human_handoff", "send_media",
	}
	if got := strings.Join(r.Names(), ","); got != strings.Join(want, ",") {
		t.Fatalf("Names() = %s", got)
	}

	without := r.AvailableTools(models.DefaultFeatures())
	if len(without) != len(want)-1 {
		t.Errorf("AvailableTools without pix = %d tools, want %d", len(without), len(want)-1)
	}
	for _, spec := range without {
		if spec.Function.Name == "create_payment_link" {
			t.Error("create_payment_link offered without ask_for_pix")
		}
		if spec.Function.Description == "" {
			t.Errorf("%s has no description", spec.Function.Name)
		}
		if spec.Function.Parameters["type"] != "object" {
			t.Errorf("%s parameters = %v", spec.Function.Name, spec.Function.Parameters)
		}
	}

	with := r.AvailableTools(models.FeatureSet{AskForPix: true})
	if len(with) != len(want) {
		t.Errorf("AvailableTools with pix = %d tools, want %d", len(with), len(want))
	}
}

func TestCreateAppointmentSchema(t *testing.T) {
	params := SchemaFor[CreateAppointmentArgs]()
	required, _ := params["required"].([]any)
	got := map[string]bool{}
	for _, r := range required {
		got[r.(string)] = true
	}
	for _, field := range []string{"client_id", "service_id", "start_time", "end_time"} {
		if !got[field] {
			t.Errorf("%s should be required, got %v", field, required)
		}
	}
	if got["notes"] || got["staff_id"] {
		t.Errorf("optional fields marked required: %v", required)
	}
}

func TestBuiltinValidation(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		args    string
		wantMsg string
	}{
		{"slots bad date", "check_available_slots", `{"start_date":"amanhã","end_date":"2024-01-16"}`, "start_date"},
		{"slots end before start", "check_available_slots", `{"start_date":"2024-01-16","end_date":"2024-01-15"}`, "end_date deve ser posterior"},
		{"create blank client", "create_appointment", `{"client_id":"  ","service_id":"s1","start_time":"2024-01-15T10:00:00Z","end_time":"2024-01-15T11:00:00Z"}`, "client_id não pode ser vazio"},
		{"create equal times", "create_appointment", `{"client_id":"c","service_id":"s1","start_time":"2024-01-15T10:00:00Z","end_time":"2024-01-15T10:00:00Z"}`, "end_time deve ser posterior"},
		{"create missing field", "create_appointment", `{"client_id":"c","service_id":"s1","start_time":"2024-01-15T10:00:00Z"}`, "end_time"},
		{"reschedule reversed", "reschedule_appointment", `{"appointment_id":"a1","start_time":"2024-01-15T11:00:00Z","end_time":"2024-01-15T10:00:00Z"}`, "end_time"},
		{"cancel blank", "cancel_appointment", `{"appointment_id":""}`, "appointment_id"},
		{"list bad date", "list_appointments", `{"start_date":"ontem"}`, "start_date"},
		{"payment status blank", "check_payment_status", `{"payment_id":" "}`, "payment_id"},
		{"media bad scheme", "send_media", `{"url":"ftp://x.test/a.png"}`, "URL inválida"},
		{"media bad type", "send_media", `{"url":"https://x.test/a.png","media_type":"audio"}`, "media_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, backend, _ := newBuiltinRegistry()
			res := r.Execute(context.Background(), tt.tool, tt.args, testCtx, models.DefaultFeatures())
			if res.Kind() != string(KindValidation) {
				t.Fatalf("Kind() = %s, want validation_error (%s)", res.Kind(), res.JSON())
			}
			if !strings.Contains(res.Error().Message, tt.wantMsg) {
				t.Errorf("Message = %q, want it to contain %q", res.Error().Message, tt.wantMsg)
			}
			if backend.count() != 0 {
				t.Errorf("backend called %d times after validation failure", backend.count())
			}
		})
	}
}

func TestCreatePaymentLinkValidation(t *testing.T) {
	r, backend, _ := newBuiltinRegistry()
	pix := models.FeatureSet{AskForPix: true}

	res := r.Execute(context.Background(), "create_payment_link", `{"appointment_id":"a1","amount":0}`, testCtx, pix)
	if res.Kind() != string(KindValidation) || !strings.Contains(res.Error().Message, "amount") {
		t.Fatalf("zero amount result = %s", res.JSON())
	}

	res = r.Execute(context.Background(), "create_payment_link", `{"appointment_id":"a1","amount":50}`, testCtx, models.DefaultFeatures())
	if res.Kind() != string(KindBusinessRule) {
		t.Fatalf("pix disabled result = %s", res.JSON())
	}
	if backend.count() != 0 {
		t.Fatalf("backend called %d times", backend.count())
	}

	res = r.Execute(context.Background(), "create_payment_link", `{"appointment_id":"a1","amount":50.5}`, testCtx, pix)
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.JSON())
	}
	call := backend.last(t)
	if call.method != "CreatePaymentLink" || call.body["amount"] != 50.5 || call.body["empresa_id"] != "c1" {
		t.Errorf("call = %+v", call)
	}
}

func TestBuiltinBackendCalls(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		args  string
		check func(t *testing.T, call backendCall)
	}{
		{
			name: "available slots",
			tool: "check_available_slots",
			args: `{"start_date":"2024-01-15","end_date":"2024-01-15","service_id":"s1"}`,
			check: func(t *testing.T, call backendCall) {
				if call.method != "AvailableSlots" || call.query.Get("start_date") != "2024-01-15" || call.query.Get("service_id") != "s1" {
					t.Errorf("call = %+v", call)
				}
			},
		},
		{
			name: "create appointment trims ids",
			tool: "create_appointment",
			args: `{"client_id":" c7 ","service_id":"s1","start_time":"2024-01-15T10:00:00Z","end_time":"2024-01-15T11:00:00Z","notes":"  franja  "}`,
			check: func(t *testing.T, call backendCall) {
				if call.body["client_id"] != "c7" || call.body["notes"] != "franja" {
					t.Errorf("body = %v", call.body)
				}
				if _, ok := call.body["staff_id"]; ok {
					t.Errorf("empty staff_id sent: %v", call.body)
				}
			},
		},
		{
			name: "reschedule",
			tool: "reschedule_appointment",
			args: `{"appointment_id":"a1","start_time":"2024-01-15T10:00:00Z","end_time":"2024-01-15T11:00:00Z"}`,
			check: func(t *testing.T, call backendCall) {
				if call.id != "a1" || call.body["start_time"] != "2024-01-15T10:00:00Z" {
					t.Errorf("call = %+v", call)
				}
			},
		},
		{
			name: "cancel",
			tool: "cancel_appointment",
			args: `{"appointment_id":"a1"}`,
			check: func(t *testing.T, call backendCall) {
				if call.method != "CancelAppointment" || call.id != "a1" {
					t.Errorf("call = %+v", call)
				}
			},
		},
		{
			name: "list appointments defaults to conversation client",
			tool: "list_appointments",
			args: `{"status":"scheduled"}`,
			check: func(t *testing.T, call backendCall) {
				if call.query.Get("client_id") != "client-9" || call.query.Get("status") != "scheduled" {
					t.Errorf("query = %v", call.query)
				}
			},
		},
		{
			name: "list appointments explicit client",
			tool: "list_appointments",
			args: `{"client_id":"other"}`,
			check: func(t *testing.T, call backendCall) {
				if call.query.Get("client_id") != "other" {
					t.Errorf("query = %v", call.query)
				}
			},
		},
		{
			name: "list services active flag",
			tool: "list_services",
			args: `{"active_only":false}`,
			check: func(t *testing.T, call backendCall) {
				if call.query.Get("active_only") != "false" {
					t.Errorf("query = %v", call.query)
				}
			},
		},
		{
			name: "list staff",
			tool: "list_staff",
			args: `{}`,
			check: func(t *testing.T, call backendCall) {
				if call.method != "ListStaff" {
					t.Errorf("call = %+v", call)
				}
			},
		},
		{
			name: "payment status",
			tool: "check_payment_status",
			args: `{"payment_id":"p1"}`,
			check: func(t *testing.T, call backendCall) {
				if call.id != "p1" {
					t.Errorf("call = %+v", call)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, backend, _ := newBuiltinRegistry()
			res := r.Execute(context.Background(), tt.tool, tt.args, testCtx, models.DefaultFeatures())
			if res.IsError() {
				t.Fatalf("unexpected error: %s", res.JSON())
			}
			call := backend.last(t)
			tenant := call.query.Get("empresa_id")
			if call.body != nil {
				tenant, _ = call.body["empresa_id"].(string)
			}
			if tenant != "c1" {
				t.Errorf("empresa_id = %q, want c1", tenant)
			}
			tt.check(t, call)
		})
	}
}

func TestBuiltinBackendFailure(t *testing.T) {
	r, backend, _ := newBuiltinRegistry()
	backend.err = errors.New("dial tcp: connection refused")

	res := r.Execute(context.Background(), "list_staff", `{}`, testCtx, models.DefaultFeatures())
	if res.Kind() != string(KindSystem) || !strings.Contains(res.Error().Message, "connection refused") {
		t.Fatalf("result = %s", res.JSON())
	}
}

func TestListPrices(t *testing.T) {
	r, backend, _ := newBuiltinRegistry()
	backend.response = json.RawMessage(`{"services":[
		{"service_id":"s1","nome":"Corte","preco":50,"duracao_minutos":30,"descricao":"Corte simples"},
		{"service_id":"s2","nome":"Escova","preco":70.5,"duracao_minutos":45}
	]}`)

	res := r.Execute(context.Background(), "list_prices", ``, testCtx, models.DefaultFeatures())
	if res.IsError() {
		t.Fatalf("unexpected error: %s", res.JSON())
	}
	want := `{"prices":[{"service_id":"s1","nome":"Corte","preco":50,"duracao_minutos":30},{"service_id":"s2","nome":"Escova","preco":70.5,"duracao_minutos":45}]}`
	if got := res.JSON(); got != want {
		t.Errorf("JSON() = %s\nwant      %s", got, want)
	}

	backend.response = json.RawMessage(`{"error":"empresa inválida"}`)
	res = r.Execute(context.Background(), "list_prices", `{}`, testCtx, models.DefaultFeatures())
	if res.Kind() != string(KindSystem) || res.Error().Message != "empresa inválida" {
		t.Errorf("embedded failure result = %s", res.JSON())
	}
}

func TestMessagingTools(t *testing.T) {
	r, _, sender := newBuiltinRegistry()

	res := r.Execute(context.Background(), "send_media", `{"url":" https://cdn.test/promo.jpg ","caption":"Promoção"}`, testCtx, models.DefaultFeatures())
	if res.IsError() {
		t.Fatalf("send_media error: %s", res.JSON())
	}
	res = r.Execute(context.Background(), "send_media", `{"url":"https://cdn.test/tabela.pdf","media_type":"document"}`, testCtx, models.DefaultFeatures())
	if res.IsError() {
		t.Fatalf("send_media error: %s", res.JSON())
	}
	if len(sender.media) != 2 {
		t.Fatalf("media sent = %d", len(sender.media))
	}
	if m := sender.media[0]; m.URL != "https://cdn.test/promo.jpg" || m.Type != delivery.MediaImage || m.Caption != "Promoção" {
		t.Errorf("first media = %+v", m)
	}
	if sender.media[1].Type != delivery.MediaDocument {
		t.Errorf("second media type = %s", sender.media[1].Type)
	}

	res = r.Execute(context.Background(), "request_human_handoff", `{"reason":" cliente pediu "}`, testCtx, models.DefaultFeatures())
	if res.IsError() {
		t.Fatalf("handoff error: %s", res.JSON())
	}
	if len(sender.reasons) != 1 || sender.reasons[0] != "cliente pediu" {
		t.Errorf("handoff reasons = %q", sender.reasons)
	}
}
