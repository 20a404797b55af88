package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/agent-worker/internal/models"
)

// maxSummaryRunes bounds the locally condensed summary.
const maxSummaryRunes = 1200

// Summarizer folds recent messages into an existing conversation summary.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, recent []models.ConversationMessage) (string, error)
}

// ModelSummarizer asks the model for a new summary and falls back to
// LocalSummary when the call fails or comes back empty.
type ModelSummarizer struct {
	client Client
	logger *zap.Logger
}

func NewModelSummarizer(client Client, logger *zap.Logger) *ModelSummarizer {
	return &ModelSummarizer{client: client, logger: logger}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, previous string, recent []models.ConversationMessage) (string, error) {
	if len(recent) == 0 {
		return previous, nil
	}

	prompt := fmt.Sprintf(`Atualize o resumo de uma conversa entre um cliente e o assistente de um salão de beleza.
Mantenha fatos úteis para atendimentos futuros: serviços de interesse, agendamentos feitos ou cancelados, preferências e pendências.
Responda apenas com o novo resumo, em no máximo 5 frases.

Resumo atual: %s

Mensagens recentes:
%s`, orNone(previous), transcript(recent))

	resp, err := s.client.Complete(ctx, []models.ConversationMessage{
		{Role: models.RoleUser, Content: prompt},
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.Error("Failed to get summary from model", zap.Error(err))
		return LocalSummary(previous, recent), nil
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		s.logger.Warn("Model returned an empty summary")
		return LocalSummary(previous, recent), nil
	}
	return summary, nil
}

// LocalSummary condenses messages without the model: the previous summary
// followed by the latest user and assistant lines, trimmed from the front
// to a fixed size.
func LocalSummary(previous string, recent []models.ConversationMessage) string {
	parts := make([]string, 0, 2)
	if p := strings.TrimSpace(previous); p != "" {
		parts = append(parts, p)
	}
	if t := transcript(recent); t != "" {
		parts = append(parts, strings.ReplaceAll(t, "\n", " | "))
	}
	summary := strings.Join(parts, " | ")

	runes := []rune(summary)
	if len(runes) > maxSummaryRunes {
		summary = "…" + string(runes[len(runes)-maxSummaryRunes+1:])
	}
	return summary
}

func transcript(messages []models.ConversationMessage) string {
	var lines []string
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		switch m.Role {
		case models.RoleUser:
			lines = append(lines, "Cliente: "+content)
		case models.RoleAssistant:
			lines = append(lines, "Assistente: "+content)
		}
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Nenhum"
	}
	return s
}
