package dispatch

import "github.com/jonwraymond/toolwrap/spec"

// Schema derives the JSON Schema for a tool's parameters, in the object
// form the MCP SDK and the discovery index both accept.
func Schema(t *spec.Tool) map[string]any {
	properties := make(map[string]any, len(t.Parameters))
	var required []any

	for _, p := range t.Parameters {
		prop := map[string]any{}
		switch p.Type {
		case spec.TypeNumber:
			prop["type"] = "number"
		case spec.TypeBoolean:
			prop["type"] = "boolean"
		case spec.TypeEnum:
			prop["type"] = "string"
			values := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				values[i] = v
			}
			prop["enum"] = values
		default:
			prop["type"] = "string"
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
