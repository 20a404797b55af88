package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/agent-worker/internal/delivery"
)

type RequestHumanHandoffArgs struct {
	Reason string `json:"reason,omitempty" jsonschema_description:"Motivo da escalação (opcional). Ex: cliente solicitou, problema técnico"`
}

type requestHumanHandoff struct{ sender delivery.Sender }

func (t requestHumanHandoff) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[RequestHumanHandoffArgs](raw)
	if err != nil {
		return nil, err
	}
	return t.sender.HumanHandoff(ctx, ectx.CompanyID, ectx.ConversationID, strings.TrimSpace(args.Reason))
}

type SendMediaArgs struct {
	URL       string `json:"url" jsonschema_description:"URL da mídia a ser enviada. Deve ser uma URL válida e acessível"`
	MediaType string `json:"media_type,omitempty" jsonschema:"enum=image,enum=video,enum=document" jsonschema_description:"Tipo de mídia (padrão: image)"`
	Caption   string `json:"caption,omitempty" jsonschema_description:"Legenda da mídia (opcional)"`
}

func (a *SendMediaArgs) Check() error {
	a.URL = strings.TrimSpace(a.URL)
	if a.URL == "" {
		return fmt.Errorf("URL não pode ser vazia")
	}
	if err := checkURL(a.URL); err != nil {
		return err
	}
	if a.MediaType == "" {
		a.MediaType = string(delivery.MediaImage)
	}
	if !delivery.MediaType(a.MediaType).Valid() {
		return fmt.Errorf("media_type deve ser um de: image, video, document")
	}
	return nil
}

type sendMedia struct{ sender delivery.Sender }

func (t sendMedia) Execute(ctx context.Context, raw json.RawMessage, ectx ExecutionContext) (any, error) {
	args, err := decodeArgs[SendMediaArgs](raw)
	if err != nil {
		return nil, err
	}
	mediaType := delivery.MediaType(args.MediaType)
	if mediaType == "" {
		mediaType = delivery.MediaImage
	}
	return t.sender.SendMedia(ctx, ectx.CompanyID, ectx.ConversationID, delivery.Media{
		URL:     args.URL,
		Type:    mediaType,
		Caption: args.Caption,
	})
}
