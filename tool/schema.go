package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ReflectSchema derives a JSON Schema object from a struct type. Field
// descriptions come from `jsonschema_description` tags; optional fields use
// `json:"...,omitempty"` or pointer types.
//
// Example:
//
//	type AddArgs struct {
//		A float64 `json:"a" jsonschema_description:"First addend."`
//		B float64 `json:"b" jsonschema_description:"Second addend."`
//	}
//
//	schema := tool.ReflectSchema[AddArgs]()
func ReflectSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	reflected := reflector.Reflect(&v)

	// Round-trip through JSON to get the plain map shape the model adapters
	// and the validator both consume.
	raw, err := json.Marshal(reflected)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	return schema
}
