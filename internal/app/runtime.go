// Package app wires the relay together: store, serializer, retriever,
// knowledge base, reasoning engine, gateway, orchestrator, scheduler, watcher
// and the HTTP surface, supervised under one errgroup.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sableworks/warelay/internal/config"
	"github.com/sableworks/warelay/internal/convlock"
	"github.com/sableworks/warelay/internal/corpus"
	"github.com/sableworks/warelay/internal/exclusions"
	"github.com/sableworks/warelay/internal/httpapi"
	"github.com/sableworks/warelay/internal/ingest"
	"github.com/sableworks/warelay/internal/knowledge"
	"github.com/sableworks/warelay/internal/livefeed"
	"github.com/sableworks/warelay/internal/orchestrator"
	"github.com/sableworks/warelay/internal/poker"
	"github.com/sableworks/warelay/internal/reasoning/xai"
	"github.com/sableworks/warelay/internal/store"
	"github.com/sableworks/warelay/internal/watcher"
	"github.com/sableworks/warelay/internal/wati"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	store      *store.Store
	retriever  *corpus.Retriever
	knowledge  *knowledge.Service
	excluded   *exclusions.Set
	hub        *livefeed.Hub
	orch       *orchestrator.Service
	poker      *poker.Service
	watcher    *watcher.Service
	httpServer *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := st.AutoMigrate(migrateCtx); err != nil {
		st.Close()
		return nil, err
	}

	retriever := corpus.NewRetriever(cfg.CorpusPath, logger)
	if err := retriever.Load(); err != nil {
		st.Close()
		return nil, err
	}

	excluded, err := exclusions.Load(cfg.ExcludedPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	kb := knowledge.New(cfg.KnowledgePath, logger)
	hub := livefeed.NewHub(logger)
	locks := convlock.NewTable()

	engine := xai.New(xai.Config{
		APIKey:  cfg.XAIAPIKey,
		BaseURL: cfg.XAIBaseURL,
		Model:   cfg.XAIModel,
		Timeout: time.Duration(cfg.XAITimeoutSec) * time.Second,
	}, logger)

	gateway := wati.New(wati.Config{
		BaseURL: cfg.WATIBaseURL,
		Token:   cfg.WATIToken,
		Timeout: time.Duration(cfg.WATITimeoutSec) * time.Second,
	}, logger)

	orch := orchestrator.New(
		orchestrator.Config{
			HistoryLimit:            cfg.HistoryLimit,
			ContextHistoryThreshold: cfg.ContextHistoryThreshold,
			ContextTopK:             cfg.ContextTopK,
			ContextMaxChars:         cfg.ContextMaxChars,
			AutoLearnEnabled:        cfg.AutoLearnEnabled,
		},
		st, engine, gateway, retriever, kb, excluded, hub, locks, logger,
	)

	pokeService, err := poker.New(
		poker.Config{
			Schedule:     cfg.PokeSchedule,
			InitialDelay: time.Duration(cfg.PokeInitialDelaySec) * time.Second,
			SendGap:      time.Duration(cfg.PokeSendGapMS) * time.Millisecond,
		},
		st, orch, engine, excluded, logger,
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	watchService, err := watcher.New(cfg.KnowledgePath, cfg.CorpusPath, logger, kb.Reload, retriever.Reload)
	if err != nil {
		st.Close()
		return nil, err
	}

	webhook := ingest.NewHandler(
		st, locks, orch,
		time.Duration(cfg.ProcessTimeoutSec)*time.Second,
		logger,
	)

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Store:      st,
		Sender:     orch,
		Sweeper:    pokeService,
		Exclusions: excluded,
		Knowledge:  kb,
		Corpus:     retriever,
		Hub:        hub,
		Webhook:    webhook,
		Logger:     logger,
	})

	return &Runtime{
		cfg:       cfg,
		logger:    logger.With("component", "runtime"),
		store:     st,
		retriever: retriever,
		knowledge: kb,
		excluded:  excluded,
		hub:       hub,
		orch:      orch,
		poker:     pokeService,
		watcher:   watchService,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("warelay starting", "addr", r.cfg.HTTPAddr, "db", r.cfg.DBPath)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.poker.Run(groupCtx)
	})
	group.Go(func() error {
		return r.watcher.Start(groupCtx)
	})
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
