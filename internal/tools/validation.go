package tools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks raw model arguments and returns the normalized form
// the executor receives.
type Validator interface {
	Validate(args json.RawMessage) (json.RawMessage, error)
}

// checker is implemented by argument structs with rules a schema cannot express.
type checker interface {
	Check() error
}

// SchemaValidator validates arguments against the JSON schema reflected
// from T, decodes them into T and runs T's Check method when present.
type SchemaValidator[T any] struct {
	name   string
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the schema of T. It panics on a schema that
// does not compile, which is a programming error caught at startup.
func NewSchemaValidator[T any](name string) *SchemaValidator[T] {
	raw, err := json.Marshal(SchemaFor[T]())
	if err != nil {
		panic(fmt.Sprintf("tools: encode schema for %s: %v", name, err))
	}
	compiled, err := compileSchema(name, string(raw))
	if err != nil {
		panic(fmt.Sprintf("tools: compile schema for %s: %v", name, err))
	}
	return &SchemaValidator[T]{name: name, schema: compiled}
}

func (v *SchemaValidator[T]) Validate(args json.RawMessage) (json.RawMessage, error) {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("argumentos inválidos: %w", err)
	}
	if err := v.schema.Validate(decoded); err != nil {
		return nil, errors.New(describeSchemaError(err))
	}

	var typed T
	if err := json.Unmarshal(args, &typed); err != nil {
		return nil, fmt.Errorf("argumentos inválidos: %w", err)
	}
	if c, ok := any(&typed).(checker); ok {
		if err := c.Check(); err != nil {
			return nil, err
		}
	}

	normalized, err := json.Marshal(typed)
	if err != nil {
		return nil, fmt.Errorf("argumentos inválidos: %w", err)
	}
	return normalized, nil
}

var (
	schemaCache sync.Map
	reflector   = &invopop.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
)

// SchemaFor reflects T into the parameter schema the model sees.
func SchemaFor[T any]() map[string]any {
	var zero T
	schema := reflector.ReflectFromType(reflect.TypeOf(zero))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: reflect schema: %v", err))
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("tools: decode schema: %v", err))
	}

	delete(out, "$schema")
	delete(out, "$id")
	out["type"] = "object"
	if _, ok := out["properties"]; !ok {
		out["properties"] = map[string]any{}
	}
	if _, ok := out["required"]; !ok {
		out["required"] = []any{}
	}
	return out
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	key := name + "\x00" + schema
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", schema)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

func describeSchemaError(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc == "" {
				msgs = append(msgs, e.Message)
			} else {
				msgs = append(msgs, loc+": "+e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}

// decodeArgs reads already validated arguments.
func decodeArgs[T any](args json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(args)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, ValidationError("argumentos inválidos: %v", err)
	}
	return v, nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func parseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("data inválida: %q. Use formato ISO 8601", s)
}

// checkRange requires end not to precede start, or to follow it strictly.
func checkRange(startField, start, endField, end string, strict bool) error {
	s, err := parseISO(start)
	if err != nil {
		return fmt.Errorf("%s: %w", startField, err)
	}
	e, err := parseISO(end)
	if err != nil {
		return fmt.Errorf("%s: %w", endField, err)
	}
	if e.Before(s) || (strict && !e.After(s)) {
		return fmt.Errorf("%s deve ser posterior a %s", endField, startField)
	}
	return nil
}

func checkOptionalDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := parseISO(v); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// requireID trims an identifier in place and rejects blanks.
func requireID(field string, v *string) error {
	*v = strings.TrimSpace(*v)
	if *v == "" {
		return fmt.Errorf("%s não pode ser vazio", field)
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("URL inválida: %s", raw)
	}
	return nil
}
