// Package prompt turns tenant policy and conversation memory into the
// message sequence sent to the model. It performs no I/O.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xaenox/agent-worker/internal/models"
)

const (
	DefaultPersona      = "Você é um assistente de IA para um salão de beleza."
	DefaultHistoryLimit = 20

	noSummary   = "Nenhum"
	noDecisions = "Nenhuma memória relevante encontrada."
)

// Input is everything the assembler may draw on for one turn.
type Input struct {
	Policy      models.TenantPolicy
	Features    models.FeatureSet
	Recent      []models.ConversationMessage
	Summary     string
	Preferences models.Preferences
	Decisions   []string
}

type Assembler struct {
	persona      string
	historyLimit int
}

// NewAssembler falls back to DefaultPersona and DefaultHistoryLimit for zero values.
func NewAssembler(persona string, historyLimit int) *Assembler {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Assembler{persona: persona, historyLimit: historyLimit}
}

// Assemble returns one system message followed by the recent history in
// arrival order. Messages with an unrecognized role or empty content are
// dropped, and only the newest historyLimit survivors are kept.
func (a *Assembler) Assemble(in Input) []models.ConversationMessage {
	history := make([]models.ConversationMessage, 0, len(in.Recent))
	for _, msg := range in.Recent {
		if !includable(msg) {
			continue
		}
		history = append(history, msg)
	}
	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}

	out := make([]models.ConversationMessage, 0, len(history)+1)
	out = append(out, models.ConversationMessage{
		Role:    models.RoleSystem,
		Content: a.SystemPrompt(in),
	})
	return append(out, history...)
}

func includable(msg models.ConversationMessage) bool {
	switch msg.Role {
	case models.RoleUser, models.RoleAssistant, models.RoleTool:
		return msg.Content != ""
	}
	return false
}

// SystemPrompt renders the preamble: persona, tenant tone and rules, flag
// state, summary, preferences, long-term notes and guardrails.
func (a *Assembler) SystemPrompt(in Input) string {
	var b strings.Builder

	b.WriteString(a.persona)
	b.WriteString("\n\n")

	tone := strings.TrimSpace(in.Policy.Tone)
	if tone == "" {
		tone = models.DefaultTone
	}
	fmt.Fprintf(&b, "Tom de voz: %s\n", tone)
	fmt.Fprintf(&b, "Regras do salão: %s\n", strings.TrimSpace(in.Policy.Rules))
	if len(in.Policy.Policies) > 0 {
		fmt.Fprintf(&b, "Políticas do salão:\n%s\n", indentJSON(in.Policy.Policies))
	}

	b.WriteString("\nFeatures habilitadas:\n")
	for _, f := range models.AllFeatures {
		fmt.Fprintf(&b, "- %s: %t\n", f, in.Features.Enabled(f))
	}

	summary := strings.TrimSpace(in.Summary)
	if summary == "" {
		summary = noSummary
	}
	fmt.Fprintf(&b, "\nResumo da conversa: %s\n", summary)

	if len(in.Preferences) > 0 {
		fmt.Fprintf(&b, "\nPreferências do cliente:\n%s\n", indentJSON(in.Preferences))
	}

	b.WriteString("\nMemória de longo prazo:\n")
	if len(in.Decisions) == 0 {
		b.WriteString(noDecisions + "\n")
	}
	for _, d := range in.Decisions {
		fmt.Fprintf(&b, "- %s\n", d)
	}

	b.WriteString("\nDiretrizes:\n")
	b.WriteString("- Use o contexto fornecido para personalizar a resposta.\n")
	b.WriteString("- Seja direto e conciso.\n")
	b.WriteString("- Se precisar de informações extras, pergunte.\n")
	b.WriteString("- Nunca invente horários, preços ou profissionais: consulte as ferramentas.\n")

	if !in.Features.AskForPix {
		b.WriteString("\nIMPORTANTE: ask_for_pix está desabilitado. NUNCA chame create_payment_link. Apenas confirme o agendamento sem cobrança.\n")
	}
	if in.Features.RequireDeposit && in.Features.AskForPix {
		b.WriteString("\nIMPORTANTE: o salão exige sinal. Após criar um agendamento, gere o link de pagamento com create_payment_link.\n")
	}

	return b.String()
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
