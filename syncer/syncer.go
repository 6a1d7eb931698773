// Package syncer converges the catalog store with upstream OpenAPI
// descriptions. It is the only writer of catalog rows; the runtime reads the
// last-good state and never sees a sync in progress.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/internal/metrics"
	"github.com/BaSui01/apibridge/openapi"
)

// Job describes one sync run for one source.
type Job struct {
	SourceName string
	SpecURL    string
	// BaseURLOverride is used when the document declares no servers entry.
	BaseURLOverride string
	// Prune removes operations absent from the fetched document. Off by
	// default: stale rows are tolerated so previously-working tools stay
	// available.
	Prune bool
}

// Report summarizes one sync run.
type Report struct {
	SourceName string        `json:"source_name"`
	SourceID   uint          `json:"source_id"`
	Upserted   int           `json:"upserted"`
	Skipped    int           `json:"skipped"`
	Pruned     int64         `json:"pruned"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Syncer fetches API descriptions and reconciles the catalog store.
type Syncer struct {
	loader  *openapi.Loader
	store   *catalog.Store
	metrics *metrics.Collector
	logger  *zap.Logger
}

// New creates a Syncer. The metrics collector may be nil.
func New(loader *openapi.Loader, store *catalog.Store, collector *metrics.Collector, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		loader:  loader,
		store:   store,
		metrics: collector,
		logger:  logger.With(zap.String("component", "syncer")),
	}
}

// Run executes one sync. A fetch failure aborts the whole run and leaves the
// store untouched; a malformed individual operation is skipped with a warning
// and does not abort the batch. Running twice against an unchanged document
// leaves the operation set byte-identical except updated_at.
func (s *Syncer) Run(ctx context.Context, job Job) (*Report, error) {
	start := time.Now()
	report := &Report{SourceName: job.SourceName}

	fetched, err := s.loader.Load(ctx, job.SpecURL)
	if err != nil {
		s.recordRun(job.SourceName, "fetch_failure", time.Since(start))
		return nil, fmt.Errorf("sync of %q aborted: %w", job.SourceName, err)
	}
	doc := fetched.Document

	baseURL := doc.BaseURL(job.BaseURLOverride, job.SpecURL)
	if baseURL == "" {
		s.recordRun(job.SourceName, "fetch_failure", time.Since(start))
		return nil, fmt.Errorf("sync of %q aborted: could not determine base URL", job.SourceName)
	}

	rows, skipped := s.collectOperations(job.SourceName, doc)
	report.Skipped = skipped

	// One transaction per run: readers never observe the source row updated
	// while its operations lag behind, or vice versa.
	err = s.store.WithTx(ctx, func(tx *catalog.Store) error {
		src, err := tx.UpsertSource(ctx, &catalog.Source{
			Name:    job.SourceName,
			BaseURL: baseURL,
			SpecURL: job.SpecURL,
			RawSpec: string(fetched.Raw),
		})
		if err != nil {
			return err
		}
		report.SourceID = src.ID

		if err := tx.UpsertOperations(ctx, src.ID, rows); err != nil {
			return err
		}
		report.Upserted = len(rows)

		if job.Prune {
			seen := make([]string, len(rows))
			for i, r := range rows {
				seen[i] = r.OperationID
			}
			pruned, err := tx.PruneStale(ctx, src.ID, seen)
			if err != nil {
				return err
			}
			report.Pruned = pruned
		}
		return nil
	})
	if err != nil {
		s.recordRun(job.SourceName, "store_failure", time.Since(start))
		return nil, fmt.Errorf("sync of %q failed: %w", job.SourceName, err)
	}

	report.Duration = time.Since(start)
	s.recordRun(job.SourceName, "success", report.Duration)
	if s.metrics != nil {
		s.metrics.RecordSyncOperations(job.SourceName, "upserted", report.Upserted)
		s.metrics.RecordSyncOperations(job.SourceName, "skipped", report.Skipped)
		s.metrics.RecordSyncOperations(job.SourceName, "pruned", int(report.Pruned))
	}

	s.logger.Info("sync completed",
		zap.String("source", job.SourceName),
		zap.Int("upserted", report.Upserted),
		zap.Int("skipped", report.Skipped),
		zap.Int64("pruned", report.Pruned),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// collectOperations enumerates every declared path × method pair, classifies
// it, and builds catalog rows. Rows with a missing or duplicate operationId
// are skipped, not failed: one bad upstream operation must not take down the
// batch.
func (s *Syncer) collectOperations(sourceName string, doc *openapi.Document) ([]catalog.Operation, int) {
	var rows []catalog.Operation
	skipped := 0
	seen := make(map[string]bool)

	for pathTemplate, item := range doc.Paths {
		for _, mo := range item.Operations() {
			op := mo.Operation

			if op.OperationID == "" {
				skipped++
				s.logger.Warn("skipping operation without operationId",
					zap.String("source", sourceName),
					zap.String("method", mo.Method),
					zap.String("path", pathTemplate),
				)
				continue
			}
			if seen[op.OperationID] {
				skipped++
				s.logger.Warn("skipping operation with duplicate operationId",
					zap.String("source", sourceName),
					zap.String("operation_id", op.OperationID),
					zap.String("method", mo.Method),
					zap.String("path", pathTemplate),
				)
				continue
			}
			seen[op.OperationID] = true

			c := catalog.Classify(mo.Method, pathTemplate)

			row := catalog.Operation{
				OperationID:   op.OperationID,
				Method:        mo.Method,
				PathTemplate:  pathTemplate,
				Summary:       op.DisplaySummary(2048),
				Tag:           op.Tag(),
				Parameters:    parameterSpecs(op),
				Resource:      c.Resource,
				Action:        c.Action,
				HasPathParams: c.HasPathParams,
			}
			if ref, ok := op.BodyRef(); ok {
				row.RequestBodyRef = &ref
			}
			rows = append(rows, row)
		}
	}

	return rows, skipped
}

func parameterSpecs(op *openapi.Operation) catalog.ParameterSpecs {
	if len(op.Parameters) == 0 {
		return nil
	}
	specs := make(catalog.ParameterSpecs, 0, len(op.Parameters))
	for _, p := range op.Parameters {
		if p.Name == "" {
			continue
		}
		spec := catalog.ParameterSpec{
			Name:     p.Name,
			In:       p.In,
			Required: p.Required,
		}
		if p.Schema != nil {
			spec.Type = p.Schema.Type
		}
		specs = append(specs, spec)
	}
	return specs
}

// RunAll syncs several sources concurrently with bounded parallelism. One
// failed source does not cancel the others; failures are carried in the
// per-job reports.
func (s *Syncer) RunAll(ctx context.Context, jobs []Job, concurrency int) []*Report {
	if concurrency <= 0 {
		concurrency = 4
	}

	reports := make([]*Report, len(jobs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			report, err := s.Run(gctx, job)
			if err != nil {
				report = &Report{SourceName: job.SourceName, Err: err}
				s.logger.Error("sync failed", zap.String("source", job.SourceName), zap.Error(err))
			}
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return nil
		})
	}

	// Goroutines never return errors; Wait only waits.
	_ = g.Wait()
	return reports
}

func (s *Syncer) recordRun(source, status string, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordSyncRun(source, status, duration)
	}
}
