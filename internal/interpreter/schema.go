package interpreter

import (
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// taskSchema describes the fields accepted from the model. A reply only has
// to be an object; fields that break the schema are dropped and take their
// defaults in sanitize.
const taskSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "title":    {"type": ["string", "null"]},
    "client":   {"type": ["string", "null"]},
    "priority": {"type": ["string", "null"]},
    "dueDate":  {"type": ["string", "null"]},
    "remindMeInMinutes": {"type": ["number", "null"], "minimum": 0},
    "checklist": {
      "type": ["array", "null"],
      "items": {
        "anyOf": [
          {"type": "string"},
          {"type": "null"},
          {"type": "object", "properties": {"text": {"type": ["string", "null"]}}}
        ]
      }
    }
  }
}`

var compiledTaskSchema = jsonschema.MustCompileString("task.json", taskSchema)

// SchemaError is a model reply that is not a JSON object.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return "schema: " + e.Message }

// checkShape accepts any JSON object and removes the top-level fields that do
// not match taskSchema, returning their names. Bad checklist items are left
// for sanitizeChecklist to skip.
func checkShape(v any) (map[string]any, []string, error) {
	fields, ok := v.(map[string]any)
	if !ok {
		return nil, nil, &SchemaError{Message: fmt.Sprintf("expected an object, got %T", v)}
	}
	err := compiledTaskSchema.Validate(fields)
	if err == nil {
		return fields, nil, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, nil, &SchemaError{Message: err.Error()}
	}

	var dropped []string
	for _, leaf := range leaves(ve) {
		name := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if _, present := fields[name]; present {
			delete(fields, name)
			dropped = append(dropped, name)
		}
	}
	return fields, dropped, nil
}

// leaves collects the causes with no children, which carry the most specific
// messages.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
