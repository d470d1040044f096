// Package server exposes document upload and question answering over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/docqa/config"
	"github.com/mohammad-safakhou/docqa/internal/chunker"
	"github.com/mohammad-safakhou/docqa/internal/embedding"
	"github.com/mohammad-safakhou/docqa/internal/embedding/local"
	"github.com/mohammad-safakhou/docqa/internal/index"
	"github.com/mohammad-safakhou/docqa/internal/index/memory"
	"github.com/mohammad-safakhou/docqa/internal/index/pgvector"
	"github.com/mohammad-safakhou/docqa/internal/index/qdrant"
	"github.com/mohammad-safakhou/docqa/internal/pipeline"
	"github.com/mohammad-safakhou/docqa/internal/session"
	"github.com/mohammad-safakhou/docqa/internal/store"
	"github.com/mohammad-safakhou/docqa/internal/uploads"
	"github.com/mohammad-safakhou/docqa/provider"
)

// newEcho builds the echo instance with the shared middleware stack and the
// unified JSON error handler.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie"},
		AllowCredentials: true,
	}))
	return e
}

// Run wires the pipeline, stores and handlers and serves until the listener
// fails.
func Run(cfg *config.Config) error {
	e := newEcho()

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "API is live"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()

	// Postgres carries the chat log and document registry, and the pgvector
	// backend when selected. Without it those features are disabled.
	var st *store.Store
	if cfg.Storage.Postgres.URL != "" || cfg.Storage.Postgres.Host != "" {
		dsn := cfg.Storage.Postgres.DSN()
		if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate: %w", err)
		}
		var err error
		st, err = store.NewWithDSN(ctx, dsn)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}

	llm, err := provider.NewProvider(provider.Client(cfg.LLM.Provider), cfg.LLM)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg, llm)
	if err != nil {
		return err
	}
	idx, err := newIndex(cfg, st)
	if err != nil {
		return err
	}
	if err := idx.Load(ctx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	ch, err := chunker.New(chunker.Config{Size: cfg.Retrieval.ChunkSize, Overlap: cfg.Retrieval.ChunkOverlap})
	if err != nil {
		return err
	}
	var tracker pipeline.DocumentTracker
	if st != nil {
		tracker = st
	}
	pipe := pipeline.New(ch, embedder, idx, pipeline.NewSynthesizer(llm), tracker, pipeline.Config{
		TopK:                 cfg.Retrieval.TopK,
		CallTimeout:          cfg.General.DefaultTimeout,
		MaxConcurrentIngests: cfg.Retrieval.MaxConcurrentIngests,
	})

	uploadStorage, err := uploads.NewStorage(cfg.Uploads)
	if err != nil {
		return err
	}

	var sessions *session.Store
	if cfg.Storage.Redis.Host != "" {
		sessions = session.NewStore(cfg.Storage.Redis.Addr(), cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.SessionTTL)
	}

	uh := &UploadHandler{Uploads: uploadStorage, Store: st, Pipeline: pipe}
	uh.Register(e)
	ah := &AskHandler{Pipeline: pipe, Store: st, Sessions: sessions}
	ah.Register(e)
	hh := &HistoryHandler{Store: st}
	hh.Register(e)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8000"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

func newEmbedder(cfg *config.Config, llm provider.Provider) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "local":
		return local.New(cfg.Embedding.Dimensions)
	case "openai":
		return embedding.NewRemote(llm, cfg.Embedding.Model, cfg.Embedding.BatchSize), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Embedding.Provider)
	}
}

func newIndex(cfg *config.Config, st *store.Store) (index.Index, error) {
	switch cfg.Index.Backend {
	case "memory":
		return memory.NewStorage(cfg.Index.SnapshotPath), nil
	case "pgvector":
		if st == nil {
			return nil, fmt.Errorf("index backend pgvector requires storage.postgres")
		}
		return pgvector.NewStorage(st.DB, cfg.Index.Collection), nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Index.QdrantURL,
			APIKey:     cfg.Index.QdrantAPIKey,
			Collection: cfg.Index.Collection,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported index backend %q", cfg.Index.Backend)
	}
}
