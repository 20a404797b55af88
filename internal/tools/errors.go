// Package tools provides the tool registry, its error taxonomy and the
// built-in business tools offered to the model.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ErrorKind classifies a failed tool call for the model.
type ErrorKind string

const (
	// KindValidation means the arguments were malformed; the model may retry with fixes.
	KindValidation ErrorKind = "validation_error"
	// KindBusinessRule means tenant policy or current state forbids the action.
	KindBusinessRule ErrorKind = "business_rule"
	// KindSystem covers unknown tools, network failures and executor faults.
	KindSystem ErrorKind = "system_error"
)

const (
	suggestionValidation = "Verifique os parâmetros fornecidos e tente novamente"
	suggestionBusiness   = "Esta funcionalidade não está disponível no momento"
	suggestionSystem     = "Tente novamente ou solicite ajuda humana"
)

// ToolError is the structured failure returned to the model.
type ToolError struct {
	Kind       ErrorKind `json:"error_type"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func ValidationError(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindValidation, Message: fmt.Sprintf(format, args...), Suggestion: suggestionValidation}
}

func BusinessRuleError(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindBusinessRule, Message: fmt.Sprintf(format, args...), Suggestion: suggestionBusiness}
}

func SystemError(format string, args ...any) *ToolError {
	return &ToolError{Kind: KindSystem, Message: fmt.Sprintf(format, args...), Suggestion: suggestionSystem}
}

// Result is either a payload or a *ToolError, never both.
type Result struct {
	payload any
	err     *ToolError
}

func Ok(payload any) Result {
	return Result{payload: payload}
}

func Err(err *ToolError) Result {
	if err == nil {
		err = SystemError("erro desconhecido")
	}
	return Result{err: err}
}

func (r Result) IsError() bool { return r.err != nil }

// Error returns the failure, or nil for a successful result.
func (r Result) Error() *ToolError { return r.err }

func (r Result) Payload() any { return r.payload }

// Kind returns the error kind, or "ok".
func (r Result) Kind() string {
	if r.err != nil {
		return string(r.err.Kind)
	}
	return "ok"
}

// JSON renders the result as the tool message content.
func (r Result) JSON() string {
	if r.err != nil {
		data, _ := encodeJSON(r.err)
		return string(data)
	}
	data, err := encodeJSON(r.payload)
	if err != nil {
		data, _ = encodeJSON(SystemError("resultado da ferramenta não serializável: %v", err))
	}
	return string(data)
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// embeddedFailure reports whether a payload is an object carrying a
// non-empty "error" field, which backend responses use to signal failure.
func embeddedFailure(payload any) (string, bool) {
	var fields map[string]any
	switch p := payload.(type) {
	case map[string]any:
		fields = p
	case json.RawMessage:
		trimmed := bytes.TrimSpace(p)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return "", false
		}
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return "", false
		}
	default:
		return "", false
	}

	v, ok := fields["error"]
	if !ok || v == nil || v == false || v == "" {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
