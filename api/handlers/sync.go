package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/registry"
	"github.com/BaSui01/apibridge/syncer"
)

// SyncHandler triggers a sync run for the bound source and refreshes the
// registry afterwards.
type SyncHandler struct {
	syncer   *syncer.Syncer
	registry *registry.Registry
	job      syncer.Job
	logger   *zap.Logger
}

// NewSyncHandler creates a sync trigger handler. job carries the bound
// source's name and spec URL; its Prune flag is overridden per request.
func NewSyncHandler(s *syncer.Syncer, reg *registry.Registry, job syncer.Job, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		syncer:   s,
		registry: reg,
		job:      job,
		logger:   logger.With(zap.String("component", "sync_handler")),
	}
}

// HandleSync answers POST /v1/sync. The optional prune query parameter
// removes operations that disappeared from the spec.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	job := h.job
	if raw := r.URL.Query().Get("prune"); raw != "" {
		prune, err := strconv.ParseBool(raw)
		if err == nil {
			job.Prune = prune
		}
	}

	report, err := h.syncer.Run(r.Context(), job)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	if h.registry != nil {
		if err := h.registry.Reload(r.Context()); err != nil {
			h.logger.Warn("registry reload after sync failed", zap.Error(err))
		}
	}

	WriteSuccess(w, report)
}
