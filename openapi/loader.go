package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/types"
)

// Loader fetches and parses OpenAPI documents.
type Loader struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// Fetched is a parsed document together with the raw bytes it came from. The
// raw bytes are persisted verbatim by the sync process.
type Fetched struct {
	Document *Document
	Raw      []byte
}

// LoaderConfig configures the loader.
type LoaderConfig struct {
	Timeout time.Duration
}

// NewLoader creates an OpenAPI document loader.
func NewLoader(config LoaderConfig, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "openapi_loader")),
	}
}

// Load fetches the document at the given URL and parses it. Every call
// re-fetches: syncs must observe upstream edits, so nothing is cached here.
// Failures are reported as FETCH_FAILURE with the underlying cause preserved.
func (l *Loader) Load(ctx context.Context, specURL string) (*Fetched, error) {
	if !strings.HasPrefix(specURL, "http://") && !strings.HasPrefix(specURL, "https://") {
		return nil, types.NewError(types.ErrFetchFailure, fmt.Sprintf("unsupported spec URL %q", specURL))
	}

	data, err := l.fetch(ctx, specURL)
	if err != nil {
		return nil, types.NewError(types.ErrFetchFailure, "failed to fetch OpenAPI document").WithCause(err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.NewError(types.ErrFetchFailure, "failed to parse OpenAPI document").WithCause(err)
	}

	f := &Fetched{Document: &doc, Raw: data}

	l.logger.Info("loaded OpenAPI document",
		zap.String("title", doc.Info.Title),
		zap.String("version", doc.Info.Version),
		zap.Int("paths", len(doc.Paths)),
	)

	return f, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
