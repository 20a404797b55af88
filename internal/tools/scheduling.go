package tools

import (
	"context"
	"encoding/json"
	"strings"
)

type CheckAvailableSlotsArgs struct {
	StartDate string `json:"start_date" jsonschema_description:"Data de início no formato ISO 8601 (YYYY-MM-DD). Exemplo: 2024-01-15"`
	EndDate   string `json:"end_date" jsonschema_description:"Data de fim no formato ISO 8601 (YYYY-MM-DD). Não pode ser anterior a start_date"`
	ServiceID string `json:"service_id,omitempty" jsonschema_description:"ID do serviço para filtrar disponibilidade (opcional)"`
}

func (a *CheckAvailableSlotsArgs) Check() error {
	return checkRange("start_date", a.StartDate, "end_date", a.EndDate, false)
}

type checkAvailableSlots struct{ backend Backend }

func (t checkAvailableSlots) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[CheckAvailableSlotsArgs](raw)
	if err != nil {
		return nil, err
	}
	q := tenantQuery(ectx)
	q.Set("start_date", args.StartDate)
	q.Set("end_date", args.EndDate)
	setIf(q, "service_id", args.ServiceID)
	return t.backend.AvailableSlots(ctx, q)
}

type CreateAppointmentArgs struct {
	ClientID   string `json:"client_id" jsonschema_description:"ID do cliente"`
	ServiceID  string `json:"service_id" jsonschema_description:"ID do serviço"`
	StartTime  string `json:"start_time" jsonschema_description:"Data/hora de início no formato ISO 8601. Exemplo: 2024-01-15T10:00:00Z"`
	EndTime    string `json:"end_time" jsonschema_description:"Data/hora de fim no formato ISO 8601. Deve ser posterior a start_time"`
	StaffID    string `json:"staff_id,omitempty" jsonschema_description:"ID do profissional (opcional)"`
	ResourceID string `json:"resource_id,omitempty" jsonschema_description:"ID do recurso (opcional)"`
	Notes      string `json:"notes,omitempty" jsonschema_description:"Observações sobre o agendamento (opcional)"`
}

func (a *CreateAppointmentArgs) Check() error {
	if err := requireID("client_id", &a.ClientID); err != nil {
		return err
	}
	if err := requireID("service_id", &a.ServiceID); err != nil {
		return err
	}
	return checkRange("start_time", a.StartTime, "end_time", a.EndTime, true)
}

type createAppointment struct{ backend Backend }

func (t createAppointment) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[CreateAppointmentArgs](raw)
	if err != nil {
		return nil, err
	}
	body := map[string]any{
		"empresa_id": ectx.CompanyID,
		"client_id":  args.ClientID,
		"service_id": args.ServiceID,
		"start_time": args.StartTime,
		"end_time":   args.EndTime,
	}
	if args.StaffID != "" {
		body["staff_id"] = args.StaffID
	}
	if args.ResourceID != "" {
		body["resource_id"] = args.ResourceID
	}
	if notes := strings.TrimSpace(args.Notes); notes != "" {
		body["notes"] = notes
	}
	return t.backend.CreateAppointment(ctx, body)
}

type RescheduleAppointmentArgs struct {
	AppointmentID string `json:"appointment_id" jsonschema_description:"ID do agendamento a ser reagendado"`
	StartTime     string `json:"start_time" jsonschema_description:"Nova data/hora de início no formato ISO 8601"`
	EndTime       string `json:"end_time" jsonschema_description:"Nova data/hora de fim no formato ISO 8601. Deve ser posterior a start_time"`
}

func (a *RescheduleAppointmentArgs) Check() error {
	if err := requireID("appointment_id", &a.AppointmentID); err != nil {
		return err
	}
	return checkRange("start_time", a.StartTime, "end_time", a.EndTime, true)
}

type rescheduleAppointment struct{ backend Backend }

func (t rescheduleAppointment) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[RescheduleAppointmentArgs](raw)
	if err != nil {
		return nil, err
	}
	return t.backend.RescheduleAppointment(ctx, args.AppointmentID, map[string]any{
		"empresa_id": ectx.CompanyID,
		"start_time": args.StartTime,
		"end_time":   args.EndTime,
	})
}

type CancelAppointmentArgs struct {
	AppointmentID string `json:"appointment_id" jsonschema_description:"ID do agendamento a ser cancelado"`
}

func (a *CancelAppointmentArgs) Check() error {
	return requireID("appointment_id", &a.AppointmentID)
}

type cancelAppointment struct{ backend Backend }

func (t cancelAppointment) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[CancelAppointmentArgs](raw)
	if err != nil {
		return nil, err
	}
	return t.backend.CancelAppointment(ctx, args.AppointmentID, tenantQuery(ectx))
}
