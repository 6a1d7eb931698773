package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/apibridge/api/handlers"
	"github.com/BaSui01/apibridge/catalog"
	"github.com/BaSui01/apibridge/config"
	"github.com/BaSui01/apibridge/executor"
	"github.com/BaSui01/apibridge/internal/cache"
	"github.com/BaSui01/apibridge/internal/database"
	"github.com/BaSui01/apibridge/internal/metrics"
	"github.com/BaSui01/apibridge/internal/server"
	"github.com/BaSui01/apibridge/openapi"
	"github.com/BaSui01/apibridge/registry"
	"github.com/BaSui01/apibridge/syncer"
)

// Server wires the catalog stack together: database, cache, syncer,
// registry, executor, and the HTTP listener.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	pool        *database.PoolManager
	cacheMgr    *cache.Manager
	collector   *metrics.Collector
	store       *catalog.Store
	syncer      *syncer.Syncer
	registry    *registry.Registry
	executor    *executor.Executor
	httpManager *server.Manager

	stopPeriodicSync context.CancelFunc
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up and begins serving.
func (s *Server) Start() error {
	ctx := context.Background()

	s.collector = metrics.NewCollector("apibridge", s.logger)

	if err := s.initStorage(); err != nil {
		return err
	}
	s.initCache()

	loader := openapi.NewLoader(openapi.LoaderConfig{Timeout: s.cfg.Source.RequestTimeout}, s.logger)
	s.syncer = syncer.New(loader, s.store, s.collector, s.logger)

	job := s.syncJob()
	if _, err := s.syncer.Run(ctx, job); err != nil {
		// The catalog may already hold operations from an earlier run;
		// serving stale data beats not serving at all.
		s.logger.Warn("initial sync failed, serving existing catalog", zap.Error(err))
	}

	if err := s.initRegistryAndExecutor(ctx); err != nil {
		return err
	}

	if err := s.startHTTPServer(); err != nil {
		return err
	}

	s.startPeriodicSync(job)

	s.logger.Info("All components started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.String("source", s.cfg.Source.Name),
		zap.Bool("cache_enabled", s.cacheMgr != nil),
		zap.Duration("sync_interval", s.cfg.Source.SyncInterval),
	)

	return nil
}

func (s *Server) initStorage() error {
	db, err := database.Open(s.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

	s.pool, err = database.NewPoolManager(db, poolCfg, s.collector, s.logger)
	if err != nil {
		return fmt.Errorf("failed to init pool: %w", err)
	}

	s.store = catalog.NewStore(db, s.logger)
	if err := s.store.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return nil
}

func (s *Server) initCache() {
	if !s.cfg.Redis.Enabled {
		return
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = s.cfg.Redis.Addr
	cacheCfg.Password = s.cfg.Redis.Password
	cacheCfg.DB = s.cfg.Redis.DB
	cacheCfg.PoolSize = s.cfg.Redis.PoolSize
	cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns

	mgr, err := cache.NewManager(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn("cache unavailable, descriptor caching disabled", zap.Error(err))
		return
	}
	s.cacheMgr = mgr
}

func (s *Server) initRegistryAndExecutor(ctx context.Context) error {
	regOpts := registry.Options{
		Metrics: s.collector,
		Logger:  s.logger,
	}
	if s.cacheMgr != nil {
		regOpts.Cache = s.cacheMgr
		regOpts.CacheTTL = s.cfg.Redis.CacheTTL
	}

	s.registry = registry.New(s.store, s.cfg.Source.Name, regOpts)
	if err := s.registry.Load(ctx); err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	src, err := s.store.GetSourceByName(ctx, s.cfg.Source.Name)
	if err != nil {
		return fmt.Errorf("source %q not in catalog: %w", s.cfg.Source.Name, err)
	}

	s.executor = executor.New(s.store, src, executor.Tenant{
		BaseURL:     s.cfg.Source.BaseURL,
		BearerToken: s.cfg.Source.BearerToken,
	}, executor.Options{
		Timeout: s.cfg.Source.RequestTimeout,
		Metrics: s.collector,
		Logger:  s.logger,
	})
	return nil
}

func (s *Server) startHTTPServer() error {
	health := handlers.NewHealthHandler(s.logger)
	health.AddCheck("database", s.pool)
	if s.cacheMgr != nil {
		health.AddCheck("cache", s.cacheMgr)
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Tools:   handlers.NewToolsHandler(s.registry, s.logger),
		Invoke:  handlers.NewInvokeHandler(s.executor, s.logger),
		Sync:    handlers.NewSyncHandler(s.syncer, s.registry, s.syncJob(), s.logger),
		Health:  health,
		Metrics: s.collector,
	})

	serverCfg := server.DefaultConfig()
	serverCfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)
	serverCfg.ReadTimeout = s.cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = s.cfg.Server.WriteTimeout
	serverCfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout

	s.httpManager = server.NewManager(router, serverCfg, s.logger)
	return s.httpManager.Start()
}

// startPeriodicSync re-runs the sync job on the configured interval and
// reloads the registry after each pass.
func (s *Server) startPeriodicSync(job syncer.Job) {
	interval := s.cfg.Source.SyncInterval
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopPeriodicSync = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.syncer.Run(ctx, job); err != nil {
					s.logger.Warn("periodic sync failed", zap.Error(err))
					continue
				}
				if err := s.registry.Reload(ctx); err != nil {
					s.logger.Warn("registry reload failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Server) syncJob() syncer.Job {
	return syncer.Job{
		SourceName:      s.cfg.Source.Name,
		SpecURL:         s.cfg.Source.SpecURL,
		BaseURLOverride: s.cfg.Source.BaseURL,
	}
}

// WaitForShutdown blocks until a signal arrives, then stops every component.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	if s.stopPeriodicSync != nil {
		s.stopPeriodicSync()
	}
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Warn("cache close failed", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Warn("database close failed", zap.Error(err))
		}
	}
}
