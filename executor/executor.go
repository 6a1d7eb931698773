// Package executor dispatches catalogued operations against their upstream
// API as a specific tenant and returns the raw response body.
package executor

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/internal/metrics"
	"github.com/BaSui01/apibridge/types"
)

const defaultTimeout = 30 * time.Second

// Tenant is the credential binding for one session. It is immutable; rotating
// credentials means constructing a new Executor.
type Tenant struct {
	BaseURL     string
	BearerToken string
}

// Result carries the outcome of a single invocation. Body holds the raw
// upstream response bytes even when the upstream answered with an error
// status.
type Result struct {
	InvocationID uuid.UUID     `json:"invocation_id"`
	StatusCode   int           `json:"status_code"`
	Success      bool          `json:"success"`
	Body         []byte        `json:"body,omitempty"`
	Duration     time.Duration `json:"-"`
}

// Options configures an Executor.
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *zap.Logger
}

// Executor invokes operations of one source on behalf of one tenant.
type Executor struct {
	store      *catalog.Store
	sourceID   uint
	sourceName string
	tenant     Tenant
	client     *http.Client
	timeout    time.Duration
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New builds an Executor bound to one source and one tenant. When the tenant
// carries no base URL the source's recorded base URL is used.
func New(store *catalog.Store, source *catalog.Source, tenant Tenant, opts Options) *Executor {
	if tenant.BaseURL == "" {
		tenant.BaseURL = source.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		store:      store,
		sourceID:   source.ID,
		sourceName: source.Name,
		tenant:     tenant,
		client:     client,
		timeout:    timeout,
		metrics:    opts.Metrics,
		logger:     logger.With(zap.String("component", "executor"), zap.String("source", source.Name)),
	}
}

// Invoke looks up the operation, builds the upstream request, and executes
// it. A non-2xx upstream answer yields both a Result (with the raw body) and
// an UPSTREAM_ERROR so the caller can choose which to surface.
func (e *Executor) Invoke(ctx context.Context, call Call) (*Result, error) {
	op, err := e.store.GetOperation(ctx, e.sourceID, call.OperationID)
	if err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := BuildRequest(ctx, op, e.tenant.BaseURL, call)
	if err != nil {
		return nil, err
	}
	if e.tenant.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.tenant.BearerToken)
	}

	invocationID := uuid.New()
	logger := e.logger.With(
		zap.String("invocation_id", invocationID.String()),
		zap.String("operation_id", op.OperationID),
		zap.String("method", op.Method),
		zap.String("path", op.PathTemplate),
	)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		duration := time.Since(start)
		classified := classifyTransportError(err, op)
		e.recordInvocation(op.Method, string(classified.Code), duration)
		logger.Warn("invocation failed",
			zap.String("code", string(classified.Code)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return nil, classified
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		e.recordInvocation(op.Method, string(types.ErrConnection), duration)
		return nil, types.NewError(types.ErrConnection, "reading upstream response").
			WithCause(err).
			WithRetryable(true).
			WithOperation(op.Method, op.PathTemplate)
	}

	result := &Result{
		InvocationID: invocationID,
		StatusCode:   resp.StatusCode,
		Success:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Body:         body,
		Duration:     duration,
	}
	e.recordInvocation(op.Method, strconv.Itoa(resp.StatusCode), duration)

	if !result.Success {
		logger.Warn("upstream returned error status",
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", duration))
		return result, types.NewError(types.ErrUpstreamError,
			"upstream returned "+strconv.Itoa(resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500).
			WithOperation(op.Method, op.PathTemplate)
	}

	logger.Info("invocation completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))
	return result, nil
}

// Tenant returns the executor's credential binding.
func (e *Executor) Tenant() Tenant { return e.tenant }

// SourceName returns the name of the bound source.
func (e *Executor) SourceName() string { return e.sourceName }

func (e *Executor) recordInvocation(method, status string, duration time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordInvocation(e.sourceName, method, status, duration)
}

func classifyTransportError(err error, op *catalog.Operation) *types.Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewError(types.ErrTimeout, "upstream request timed out").
			WithCause(err).
			WithRetryable(true).
			WithOperation(op.Method, op.PathTemplate)
	}
	return types.NewError(types.ErrConnection, "upstream connection failed").
		WithCause(err).
		WithRetryable(true).
		WithOperation(op.Method, op.PathTemplate)
}
