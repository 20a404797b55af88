package tools

import (
	"context"
	"encoding/json"
	"errors"
)

type CheckPaymentStatusArgs struct {
	PaymentID string `json:"payment_id" jsonschema_description:"ID do pagamento ou appointment_id para verificar status"`
}

func (a *CheckPaymentStatusArgs) Check() error {
	return requireID("payment_id", &a.PaymentID)
}

type checkPaymentStatus struct{ backend Backend }

func (t checkPaymentStatus) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[CheckPaymentStatusArgs](raw)
	if err != nil {
		return nil, err
	}
	return t.backend.PaymentStatus(ctx, args.PaymentID, tenantQuery(ectx))
}

type CreatePaymentLinkArgs struct {
	AppointmentID string  `json:"appointment_id" jsonschema_description:"ID do agendamento"`
	Amount        float64 `json:"amount" jsonschema_description:"Valor do pagamento (deve ser maior que zero)"`
}

func (a *CreatePaymentLinkArgs) Check() error {
	if err := requireID("appointment_id", &a.AppointmentID); err != nil {
		return err
	}
	if a.Amount <= 0 {
		return errors.New("amount deve ser maior que zero")
	}
	return nil
}

type createPaymentLink struct{ backend Backend }

func (t createPaymentLink) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[CreatePaymentLinkArgs](raw)
	if err != nil {
		return nil, err
	}
	return t.backend.CreatePaymentLink(ctx, map[string]any{
		"empresa_id":     ectx.CompanyID,
		"appointment_id": args.AppointmentID,
		"amount":         args.Amount,
	})
}
