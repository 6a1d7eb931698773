package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/apibridge/internal/database"
	"github.com/BaSui01/apibridge/types"
)

// Store provides tenant-partitioned access to the catalog tables. The read
// path (List/Get) is safe for concurrent use; the write path is reserved for
// the sync process and is expected to run inside WithTx.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore creates a catalog store over an open gorm connection.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "catalog_store")),
	}
}

// AutoMigrate creates or updates the catalog tables. Production deployments
// use the versioned migrations in internal/migration instead; this covers
// sqlite-backed local mode and tests.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Source{}, &Operation{}); err != nil {
		return fmt.Errorf("failed to auto migrate catalog tables: %w", err)
	}
	return nil
}

// txMaxRetries bounds retries of transient transaction failures (deadlocks,
// serialization conflicts) during a sync.
const txMaxRetries = 3

// WithTx runs fn inside one transaction, with a Store bound to it. The sync
// process wraps the Source upsert and its Operation upserts in a single unit
// so concurrent readers never observe a half-updated source. Transient
// failures are retried with backoff; fn must be safe to re-run.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return database.WithTransactionRetry(ctx, s.db, s.logger, txMaxRetries, func(tx *gorm.DB) error {
		return fn(&Store{db: tx, logger: s.logger})
	})
}

// UpsertSource inserts or updates a Source keyed by its unique name and
// returns the stored row. updated_at marks the last successful sync.
func (s *Store) UpsertSource(ctx context.Context, src *Source) (*Source, error) {
	src.UpdatedAt = time.Now().UTC()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"base_url", "spec_url", "raw_spec", "updated_at"}),
	}).Create(src).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert source %q: %w", src.Name, err)
	}

	// Re-read so the caller holds the canonical row id even on conflict.
	var stored Source
	if err := s.db.WithContext(ctx).First(&stored, "name = ?", src.Name).Error; err != nil {
		return nil, fmt.Errorf("failed to read back source %q: %w", src.Name, err)
	}
	return &stored, nil
}

// UpsertOperations reconciles operation rows for one source, keyed by
// (source_id, operation_id). Update-in-place semantics: a re-sync after an
// upstream change rewrites the existing row instead of duplicating it.
// Rows previously present but absent from the batch are left untouched.
func (s *Store) UpsertOperations(ctx context.Context, sourceID uint, rows []Operation) error {
	for i := range rows {
		rows[i].SourceID = sourceID
		rows[i].UpdatedAt = time.Now().UTC()

		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source_id"}, {Name: "operation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"method", "path_template", "summary", "tag", "parameters",
				"request_body_ref", "resource", "action", "has_path_params", "updated_at",
			}),
		}).Create(&rows[i]).Error
		if err != nil {
			return fmt.Errorf("failed to upsert operation %q: %w", rows[i].OperationID, err)
		}
	}
	return nil
}

// PruneStale deletes operations of a source that are not in the seen set.
// This is the explicit reconciliation pass; ordinary syncs never remove rows,
// favoring availability of previously-working tools over strict mirroring.
func (s *Store) PruneStale(ctx context.Context, sourceID uint, seen []string) (int64, error) {
	q := s.db.WithContext(ctx).Where("source_id = ?", sourceID)
	if len(seen) > 0 {
		q = q.Where("operation_id NOT IN ?", seen)
	}
	res := q.Delete(&Operation{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune stale operations: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("pruned stale operations",
			zap.Uint("source_id", sourceID),
			zap.Int64("count", res.RowsAffected),
		)
	}
	return res.RowsAffected, nil
}

// GetSource returns a source by id.
func (s *Store) GetSource(ctx context.Context, id uint) (*Source, error) {
	var src Source
	if err := s.db.WithContext(ctx).First(&src, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("source %d not found", id))
		}
		return nil, fmt.Errorf("failed to load source %d: %w", id, err)
	}
	return &src, nil
}

// GetSourceByName returns a source by its unique name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	var src Source
	if err := s.db.WithContext(ctx).First(&src, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, fmt.Sprintf("source %q not found", name))
		}
		return nil, fmt.Errorf("failed to load source %q: %w", name, err)
	}
	return &src, nil
}

// ListSources returns every registered source.
func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	if err := s.db.WithContext(ctx).Order("name").Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// OperationQuery narrows ListOperations. Resource and Action are equality
// predicates; HasPathParams is a tri-state boolean. These are the only
// selection predicates the store supports; no free-text ranking here.
type OperationQuery struct {
	SourceID      uint
	SourceName    string
	Resource      string
	Action        Action
	HasPathParams *bool
}

// ListOperations returns the operations of one source, optionally filtered,
// in stable (tag, operation_id) order.
func (s *Store) ListOperations(ctx context.Context, q OperationQuery) ([]Operation, error) {
	db := s.db.WithContext(ctx).Model(&Operation{})

	switch {
	case q.SourceID != 0:
		db = db.Where("source_id = ?", q.SourceID)
	case q.SourceName != "":
		src, err := s.GetSourceByName(ctx, q.SourceName)
		if err != nil {
			return nil, err
		}
		db = db.Where("source_id = ?", src.ID)
	default:
		return nil, types.NewError(types.ErrInternalError, "operation query requires a source id or name")
	}

	if q.Resource != "" {
		db = db.Where("resource = ?", q.Resource)
	}
	if q.Action != "" {
		db = db.Where("action = ?", q.Action)
	}
	if q.HasPathParams != nil {
		db = db.Where("has_path_params = ?", *q.HasPathParams)
	}

	var ops []Operation
	if err := db.Order("tag, operation_id").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// GetOperation returns one operation of a source by its operation id. Absent
// rows yield NOT_FOUND so callers can distinguish a hallucinated name from a
// store failure.
func (s *Store) GetOperation(ctx context.Context, sourceID uint, operationID string) (*Operation, error) {
	var op Operation
	err := s.db.WithContext(ctx).
		First(&op, "source_id = ? AND operation_id = ?", sourceID, operationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound,
				fmt.Sprintf("operation %q not found for source %d", operationID, sourceID))
		}
		return nil, fmt.Errorf("failed to load operation %q: %w", operationID, err)
	}
	return &op, nil
}
