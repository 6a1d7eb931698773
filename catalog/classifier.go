package catalog

import "strings"

// Action is the normalized verb/shape of an operation.
type Action string

const (
	ActionList       Action = "list"
	ActionListScoped Action = "list_scoped"
	ActionGetByID    Action = "get_by_id"
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionOther      Action = "other"
)

// Classification is the derived selection metadata for one operation.
type Classification struct {
	Resource      *string
	Action        Action
	HasPathParams bool
}

// Classify derives (resource, action, hasPathParams) from an HTTP method and
// a path template. It is a pure function: no I/O, no store state, so it can
// be re-run offline against historical rows.
//
// The resource is the last non-placeholder path segment, lowercased; when the
// final segment is a placeholder the nearest preceding non-placeholder
// segment is used. Declared tags never participate here; upstream tagging is
// too inconsistent to select on.
func Classify(method, pathTemplate string) Classification {
	segments := splitSegments(pathTemplate)

	hasPathParams := false
	for _, seg := range segments {
		if isPlaceholder(seg) {
			hasPathParams = true
			break
		}
	}

	resource := resolveResource(segments)

	c := Classification{
		Resource:      resource,
		HasPathParams: hasPathParams,
		Action:        ActionOther,
	}

	if resource == nil {
		return c
	}

	switch strings.ToUpper(method) {
	case "GET":
		switch {
		case !hasPathParams:
			c.Action = ActionList
		case isPlaceholder(segments[len(segments)-1]):
			// The path identifies a single instance.
			c.Action = ActionGetByID
		default:
			// Path params scope a sub-collection, not one instance.
			c.Action = ActionListScoped
		}
	case "POST":
		c.Action = ActionCreate
	case "PUT", "PATCH":
		c.Action = ActionUpdate
	case "DELETE":
		c.Action = ActionDelete
	}

	return c
}

// splitSegments splits a path template into its non-empty segments. Trailing
// slashes and duplicate separators produce no segments.
func splitSegments(pathTemplate string) []string {
	parts := strings.Split(pathTemplate, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// isPlaceholder reports whether a path segment is a {name} placeholder.
func isPlaceholder(segment string) bool {
	return len(segment) > 2 && strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

// resolveResource walks backwards to the last non-placeholder segment.
func resolveResource(segments []string) *string {
	for i := len(segments) - 1; i >= 0; i-- {
		if !isPlaceholder(segments[i]) {
			r := strings.ToLower(segments[i])
			return &r
		}
	}
	return nil
}

// HasPlaceholder reports whether a path template contains any placeholder
// segment. The stored has_path_params column always equals this.
func HasPlaceholder(pathTemplate string) bool {
	for _, seg := range splitSegments(pathTemplate) {
		if isPlaceholder(seg) {
			return true
		}
	}
	return false
}
