package registry

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/apibridge/catalog"
)

// maxDescriptionRunes caps descriptor descriptions so huge upstream summaries
// do not bloat the selector prompt.
const maxDescriptionRunes = 300

// Descriptor is the externally exposed, self-describing invocation handle for
// one catalog operation. Name doubles as the dispatch key.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// paramSchema mirrors the JSON-Schema fragment the selector consumes.
type paramSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Properties  map[string]paramSchema `json:"properties,omitempty"`
	Required    []string               `json:"required,omitempty"`
}

// Materialize turns one catalog row into a descriptor. The description is
// "<METHOD> <pathTemplate> — <summary>"; the parameter shape covers path and
// query parameters plus a request_body object for body-bearing operations.
// Header parameters are declared upstream but not selectable.
func Materialize(op *catalog.Operation) (Descriptor, error) {
	summary := op.Summary
	if summary == "" {
		summary = "External API call"
	}
	description := fmt.Sprintf("%s %s — %s", op.Method, op.PathTemplate, summary)
	if runes := []rune(description); len(runes) > maxDescriptionRunes {
		description = string(runes[:maxDescriptionRunes-3]) + "..."
	}

	properties := make(map[string]paramSchema)
	var required []string

	for _, p := range op.Parameters {
		if p.In != "path" && p.In != "query" {
			continue
		}
		propType := p.Type
		if propType == "" {
			propType = "string"
		}
		properties[p.Name] = paramSchema{
			Type:        propType,
			Description: fmt.Sprintf("%s parameter", p.In),
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}

	if op.HasRequestBody() {
		properties["request_body"] = paramSchema{
			Type:        "object",
			Description: "JSON body for the request",
		}
	}

	params, err := json.Marshal(paramSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	})
	if err != nil {
		return Descriptor{}, fmt.Errorf("failed to marshal parameter schema for %q: %w", op.OperationID, err)
	}

	return Descriptor{
		Name:        op.OperationID,
		Description: description,
		Parameters:  params,
	}, nil
}
