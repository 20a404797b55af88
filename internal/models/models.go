package models

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool, RoleSystem:
		return true
	}
	return false
}

// ConversationMessage is a single turn of a conversation.
type ConversationMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCallID links a tool-role message back to the invocation it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolCalls records which tools an assistant turn requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec is the model-facing description of a callable tool.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Preferences holds facts extracted about the client of a conversation.
type Preferences map[string]any
