// Package openapi provides a typed model for Swagger/OpenAPI documents and a
// loader that fetches them over HTTP. The model is deliberately shallow: it
// keeps what the catalog needs (paths, methods, parameters, body presence)
// and treats everything else as opaque.
package openapi

import (
	"net/url"
	"sort"
	"strings"
)

// Document represents a parsed OpenAPI description.
type Document struct {
	OpenAPI string              `json:"openapi,omitempty"`
	Swagger string              `json:"swagger,omitempty"`
	Info    Info                `json:"info"`
	Servers []Server            `json:"servers,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

// Info contains API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents an API server.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem represents the operations declared on one path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

// Operation represents one declared API operation.
type Operation struct {
	OperationID string       `json:"operationId,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	Description string       `json:"description,omitempty"`
	Parameters  []Parameter  `json:"parameters,omitempty"`
	RequestBody *RequestBody `json:"requestBody,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Parameter represents an operation parameter.
type Parameter struct {
	Name        string      `json:"name"`
	In          string      `json:"in"` // query, path, header, cookie
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Schema      *JSONSchema `json:"schema,omitempty"`
}

// RequestBody represents a declared request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type entry in a request body.
type MediaType struct {
	Schema *JSONSchema `json:"schema,omitempty"`
}

// JSONSchema represents a JSON Schema fragment.
type JSONSchema struct {
	Ref         string                `json:"$ref,omitempty"`
	Type        string                `json:"type,omitempty"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Enum        []any                 `json:"enum,omitempty"`
	Default     any                   `json:"default,omitempty"`
}

// MethodOperation pairs an HTTP method with its operation.
type MethodOperation struct {
	Method    string
	Operation *Operation
}

// Operations returns the declared operations in a stable method order.
func (p PathItem) Operations() []MethodOperation {
	ordered := []MethodOperation{
		{"GET", p.Get},
		{"POST", p.Post},
		{"PUT", p.Put},
		{"PATCH", p.Patch},
		{"DELETE", p.Delete},
	}
	out := make([]MethodOperation, 0, len(ordered))
	for _, mo := range ordered {
		if mo.Operation != nil {
			out = append(out, mo)
		}
	}
	return out
}

// BaseURL resolves the upstream base URL for the document. Resolution order:
// servers[0].url, then the explicit override, then scheme://host derived from
// the URL the document itself was fetched from. Returns "" when nothing
// resolves.
func (d *Document) BaseURL(override, specURL string) string {
	if len(d.Servers) > 0 {
		if u := strings.TrimRight(d.Servers[0].URL, "/"); u != "" {
			return u
		}
	}
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	if specURL != "" {
		if parsed, err := url.Parse(specURL); err == nil && parsed.Scheme != "" && parsed.Host != "" {
			return parsed.Scheme + "://" + parsed.Host
		}
	}
	return ""
}

// BodyRef reports whether the operation declares a JSON request body, and the
// leaf name of its schema $ref when one exists. A body without a $ref is
// reported as "(has body)". Nested schema resolution is out of scope.
//
// Media types are consulted in a fixed order: application/json first, then
// remaining JSON types sorted by name. Stored rows stay stable across
// re-syncs of an unchanged document.
func (o *Operation) BodyRef() (string, bool) {
	if o == nil || o.RequestBody == nil {
		return "", false
	}
	contentTypes := make([]string, 0, len(o.RequestBody.Content))
	for ct := range o.RequestBody.Content {
		if strings.Contains(ct, "json") {
			contentTypes = append(contentTypes, ct)
		}
	}
	if len(contentTypes) == 0 {
		return "", false
	}
	sort.Slice(contentTypes, func(i, j int) bool {
		if contentTypes[i] == "application/json" {
			return true
		}
		if contentTypes[j] == "application/json" {
			return false
		}
		return contentTypes[i] < contentTypes[j]
	})
	media := o.RequestBody.Content[contentTypes[0]]
	if media.Schema != nil && media.Schema.Ref != "" {
		parts := strings.Split(media.Schema.Ref, "/")
		return parts[len(parts)-1], true
	}
	return "(has body)", true
}

// DisplaySummary returns the operation summary, falling back to its
// description, truncated to max runes.
func (o *Operation) DisplaySummary(max int) string {
	s := o.Summary
	if s == "" {
		s = o.Description
	}
	runes := []rune(s)
	if max > 0 && len(runes) > max {
		return string(runes[:max])
	}
	return s
}

// Tag returns the first declared tag, or nil. Tags are display grouping only.
func (o *Operation) Tag() *string {
	if len(o.Tags) == 0 {
		return nil
	}
	t := o.Tags[0]
	return &t
}
