package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

type ListStaffArgs struct{}

type listStaff struct{ backend Backend }

func (t listStaff) Execute(ctx context.Context, _ json.RawMessage, ectx ExecutionContext) (any, error) {
	return t.backend.ListStaff(ctx, tenantQuery(ectx))
}

type ListServicesArgs struct {
	ActiveOnly *bool `json:"active_only,omitempty" jsonschema_description:"Listar apenas serviços ativos (padrão: true)"`
}

type listServices struct{ backend Backend }

func (t listServices) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[ListServicesArgs](raw)
	if err != nil {
		return nil, err
	}
	q := tenantQuery(ectx)
	if args.ActiveOnly != nil {
		q.Set("active_only", strconv.FormatBool(*args.ActiveOnly))
	}
	return t.backend.ListServices(ctx, q)
}

type ListAppointmentsArgs struct {
	ClientID  string `json:"client_id,omitempty" jsonschema_description:"ID do cliente (opcional, usa o cliente da conversa se não fornecido)"`
	Status    string `json:"status,omitempty" jsonschema_description:"Status do agendamento para filtrar (opcional). Ex: scheduled, confirmed, cancelled"`
	StartDate string `json:"start_date,omitempty" jsonschema_description:"Data de início para filtro no formato ISO 8601 (opcional)"`
	EndDate   string `json:"end_date,omitempty" jsonschema_description:"Data de fim para filtro no formato ISO 8601 (opcional)"`
}

func (a *ListAppointmentsArgs) Check() error {
	if err := checkOptionalDate("start_date", a.StartDate); err != nil {
		return err
	}
	return checkOptionalDate("end_date", a.EndDate)
}

type listAppointments struct{ backend Backend }

func (t listAppointments) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[ListAppointmentsArgs](raw)
	if err != nil {
		return nil, err
	}
	q := tenantQuery(ectx)
	clientID := args.ClientID
	if clientID == "" {
		clientID = ectx.ClientID
	}
	setIf(q, "client_id", clientID)
	setIf(q, "status", args.Status)
	setIf(q, "start_date", args.StartDate)
	setIf(q, "end_date", args.EndDate)
	return t.backend.ListAppointments(ctx, q)
}

type ListPricesArgs struct{}

// Price is the reduced view of a service returned by list_prices.
type Price struct {
	ServiceID       any `json:"service_id"`
	Name            any `json:"nome"`
	Price           any `json:"preco"`
	DurationMinutes any `json:"duracao_minutos"`
}

type listPrices struct{ backend Backend }

func (t listPrices) Execute(ctx context.Context, _ json.RawMessage, ectx ExecutionContext) (any, error) {
	raw, err := t.backend.ListServices(ctx, tenantQuery(ectx))
	if err != nil {
		return nil, err
	}
	if msg, failed := embeddedFailure(raw); failed {
		return nil, SystemError("%s", msg)
	}

	var resp struct {
		Services []map[string]any `json:"services"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}

	prices := make([]Price, 0, len(resp.Services))
	for _, s := range resp.Services {
		prices = append(prices, Price{
			ServiceID:       s["service_id"],
			Name:            s["nome"],
			Price:           s["preco"],
			DurationMinutes: s["duracao_minutos"],
		})
	}
	return map[string]any{"prices": prices}, nil
}
