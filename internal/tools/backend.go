package tools

import (
	"context"
	"encoding/json"
	"net/url"
)

// Backend is the business API the scheduling, info and payment tools call.
type Backend interface {
	AvailableSlots(ctx context.Context, query url.Values) (json.RawMessage, error)
	CreateAppointment(ctx context.Context, body map[string]any) (json.RawMessage, error)
	RescheduleAppointment(ctx context.Context, appointmentID string, body map[string]any) (json.RawMessage, error)
	CancelAppointment(ctx context.Context, appointmentID string, query url.Values) (json.RawMessage, error)
	ListAppointments(ctx context.Context, query url.Values) (json.RawMessage, error)
	ListStaff(ctx context.Context, query url.Values) (json.RawMessage, error)
	ListServices(ctx context.Context, query url.Values) (json.RawMessage, error)
	CreatePaymentLink(ctx context.Context, body map[string]any) (json.RawMessage, error)
	PaymentStatus(ctx context.Context, paymentID string, query url.Values) (json.RawMessage, error)
}

func tenantQuery(ectx ExecutionContext) url.Values {
	return url.Values{"empresa_id": {ectx.CompanyID}}
}

// setIf adds key to q when v is not empty.
func setIf(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}
