package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/auth"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/billing"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/config"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/credentials"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/handler"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/hub"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/logging"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/middleware"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/pairing"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/prompt"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/server"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/store"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/store/sqlite"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/supervisor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log)
		},
	}
}

type stores struct {
	sessions  supervisor.SessionStore
	prompts   prompt.Store
	customers billing.Store
	closers   []io.Closer
}

func (s *stores) Close(log *zap.Logger) {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			log.Warn("close store failed", zap.Error(err))
		}
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return &stores{
			sessions:  store.NewSessionStore(),
			prompts:   store.NewPromptStore(),
			customers: store.NewCustomerStore(),
		}, nil
	}

	st := &stores{}
	open := func(path string) (*sqlite.Store, error) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			st.Close(zap.NewNop())
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			st.Close(zap.NewNop())
			return nil, err
		}
		st.closers = append(st.closers, db)
		return db, nil
	}

	sessions, err := open(cfg.SessionsDB)
	if err != nil {
		return nil, err
	}
	prompts, err := open(cfg.PromptsDB)
	if err != nil {
		return nil, err
	}
	customers, err := open(cfg.CustomersDB)
	if err != nil {
		return nil, err
	}
	st.sessions, st.prompts, st.customers = sessions, prompts, customers
	return st, nil
}

func pairingAdapter(cfg config.Config) pairing.Adapter {
	if cfg.PairingDriver == config.PairingBridge {
		return pairing.NewBridge(cfg.PairingBridgeURL)
	}
	sim := pairing.NewSimulator()
	sim.AutoCode = true
	return sim
}

func runServe(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	gin.SetMode(cfg.GinMode)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close(log)

	updates := hub.New()
	sup := supervisor.New(st.sessions, credentials.NewFileStore(cfg.CredentialsDir), pairingAdapter(cfg), supervisor.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		Renderer:       pairing.QRRenderer{},
		Notifier:       &handler.SessionFeed{Hub: updates, Log: log},
		Logger:         log,
	})
	defer sup.Close()

	resumed, err := sup.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume sessions: %w", err)
	}

	billingSvc := billing.NewService(st.customers, log)
	gw := gateway.New(sup, prompt.NewService(st.prompts, log), billingSvc, gateway.Options{
		Timeout: cfg.UpstreamTimeout,
		Logger:  log,
	})

	limiter := middleware.NewRateLimiter(cfg.SessionCreateLimit, time.Minute)
	defer limiter.Close()

	tokenCfg := auth.DefaultTokenConfig(cfg.MasterSecret)
	tokenCfg.Expiry = cfg.TokenExpiry()

	router := server.NewRouter(server.Deps{
		Gateway:              gw,
		Billing:              billingSvc,
		Hub:                  updates,
		TokenConfig:          tokenCfg,
		APIKey:               cfg.APIKey,
		SessionCreateLimiter: limiter,
		Logger:               log,
		Version:              Version,
		Storage:              cfg.StorageDriver,
	})

	log.Info("listening",
		zap.Int("port", cfg.Port),
		zap.String("storage", cfg.StorageDriver),
		zap.String("pairing", cfg.PairingDriver),
		zap.Int("resumedSessions", resumed),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg, router)
	})
	g.Go(func() error {
		<-gctx.Done()
		sup.Close()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shut down")
	return nil
}
