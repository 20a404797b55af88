package tools

import (
	"github.com/xaenox/agent-worker/internal/delivery"
	"github.com/xaenox/agent-worker/internal/models"
)

// RegisterBuiltins adds the business tools in the order the model sees them.
func RegisterBuiltins(r *Registry, backend Backend, sender delivery.Sender) {
	// Scheduling
	r.Register(Definition{
		Name:        "check_available_slots",
		Description: "Buscar horários disponíveis para agendamento. Retorna slots livres, horários bloqueados e agendamentos existentes no período especificado.",
		Parameters:  SchemaFor[CheckAvailableSlotsArgs](),
		Validator:   NewSchemaValidator[CheckAvailableSlotsArgs]("check_available_slots"),
		Executor:    checkAvailableSlots{backend: backend},
	})
	r.Register(Definition{
		Name:        "create_appointment",
		Description: "Criar um novo agendamento. Verifica conflitos automaticamente e cria o agendamento se o horário estiver disponível.",
		Parameters:  SchemaFor[CreateAppointmentArgs](),
		Validator:   NewSchemaValidator[CreateAppointmentArgs]("create_appointment"),
		Executor:    createAppointment{backend: backend},
	})
	r.Register(Definition{
		Name:        "reschedule_appointment",
		Description: "Reagendar um agendamento existente. Atualiza a data/hora do agendamento para novos horários.",
		Parameters:  SchemaFor[RescheduleAppointmentArgs](),
		Validator:   NewSchemaValidator[RescheduleAppointmentArgs]("reschedule_appointment"),
		Executor:    rescheduleAppointment{backend: backend},
	})
	r.Register(Definition{
		Name:        "cancel_appointment",
		Description: "Cancelar um agendamento existente. Verifica políticas de cancelamento antes de cancelar.",
		Parameters:  SchemaFor[CancelAppointmentArgs](),
		Validator:   NewSchemaValidator[CancelAppointmentArgs]("cancel_appointment"),
		Executor:    cancelAppointment{backend: backend},
	})

	// Information
	r.Register(Definition{
		Name:        "list_staff",
		Description: "Listar profissionais disponíveis na empresa. Retorna nomes, IDs e disponibilidade.",
		Parameters:  SchemaFor[ListStaffArgs](),
		Validator:   NewSchemaValidator[ListStaffArgs]("list_staff"),
		Executor:    listStaff{backend: backend},
	})
	r.Register(Definition{
		Name:        "list_services",
		Description: "Listar serviços disponíveis na empresa. Retorna nomes, preços, duração e descrições.",
		Parameters:  SchemaFor[ListServicesArgs](),
		Validator:   NewSchemaValidator[ListServicesArgs]("list_services"),
		Executor:    listServices{backend: backend},
	})
	r.Register(Definition{
		Name:        "list_appointments",
		Description: "Listar agendamentos do cliente. Permite filtrar por status, data e cliente específico.",
		Parameters:  SchemaFor[ListAppointmentsArgs](),
		Validator:   NewSchemaValidator[ListAppointmentsArgs]("list_appointments"),
		Executor:    listAppointments{backend: backend},
	})
	r.Register(Definition{
		Name:        "list_prices",
		Description: "Listar preços dos serviços. Retorna apenas informações de preço.",
		Parameters:  SchemaFor[ListPricesArgs](),
		Validator:   NewSchemaValidator[ListPricesArgs]("list_prices"),
		Executor:    listPrices{backend: backend},
	})

	// Payments
	r.Register(Definition{
		Name:        "check_payment_status",
		Description: "Verificar status de pagamento PIX. Retorna o status atual e o link se ainda estiver pendente.",
		Parameters:  SchemaFor[CheckPaymentStatusArgs](),
		Validator:   NewSchemaValidator[CheckPaymentStatusArgs]("check_payment_status"),
		Executor:    checkPaymentStatus{backend: backend},
	})
	r.Register(Definition{
		Name:             "create_payment_link",
		Description:      "Criar link de pagamento PIX para um agendamento. Só funciona se ask_for_pix estiver habilitado para a empresa.",
		Parameters:       SchemaFor[CreatePaymentLinkArgs](),
		RequiredFeatures: []models.Feature{models.FeatureAskForPix},
		Validator:        NewSchemaValidator[CreatePaymentLinkArgs]("create_payment_link"),
		Executor:         createPaymentLink{backend: backend},
	})

	// Conversation
	r.Register(Definition{
		Name:        "request_human_handoff",
		Description: "Escalar conversa para atendente humano. Marca a conversa como necessitando intervenção humana e notifica a equipe.",
		Parameters:  SchemaFor[RequestHumanHandoffArgs](),
		Validator:   NewSchemaValidator[RequestHumanHandoffArgs]("request_human_handoff"),
		Executor:    requestHumanHandoff{sender: sender},
	})
	r.Register(Definition{
		Name:        "send_media",
		Description: "Enviar mídia (fotos, vídeos, documentos) ao cliente.",
		Parameters:  SchemaFor[SendMediaArgs](),
		Validator:   NewSchemaValidator[SendMediaArgs]("send_media"),
		Executor:    sendMedia{sender: sender},
	})
}
