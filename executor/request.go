package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/types"
)

// Call describes one invocation of a catalogued operation.
type Call struct {
	OperationID string            `json:"operation_id"`
	PathParams  map[string]string `json:"path_params,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

var placeholderPattern = regexp.MustCompile(`\{([^/{}]+)\}`)

// placeholders returns the template placeholder names in order of appearance.
func placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// methodAllowsBody reports whether a request body is sent for this method.
func methodAllowsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// BuildRequest resolves the operation's path template against the supplied
// parameters and assembles the final request. Every placeholder must have a
// value; values are percent-encoded into the path. Query parameters with
// empty values are dropped. The body is attached only for body-bearing
// operations on POST/PUT/PATCH.
func BuildRequest(ctx context.Context, op *catalog.Operation, baseURL string, call Call) (*http.Request, error) {
	path := op.PathTemplate
	for _, name := range placeholders(op.PathTemplate) {
		value, ok := call.PathParams[name]
		if !ok || value == "" {
			return nil, types.NewError(types.ErrMissingParameter,
				fmt.Sprintf("missing value for path parameter %q", name)).
				WithHTTPStatus(http.StatusBadRequest).
				WithOperation(op.Method, op.PathTemplate)
		}
		path = strings.Replace(path, "{"+name+"}", url.PathEscape(value), 1)
	}

	fullURL := strings.TrimRight(baseURL, "/") + path

	query := url.Values{}
	for name, value := range call.QueryParams {
		if value == "" {
			continue
		}
		query.Set(name, value)
	}
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	var body *bytes.Reader
	if op.HasRequestBody() && methodAllowsBody(op.Method) && len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, op.Method, fullURL, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, op.Method, fullURL, nil)
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "building request").
			WithCause(err).
			WithOperation(op.Method, op.PathTemplate)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
