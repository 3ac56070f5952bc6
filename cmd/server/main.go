package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arena-gg/arena-backend/internal/config"
	"github.com/arena-gg/arena-backend/internal/httpapi"
	"github.com/arena-gg/arena-backend/internal/hub"
	"github.com/arena-gg/arena-backend/internal/identity"
	"github.com/arena-gg/arena-backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type storage interface {
	store.Recorder
	store.Reader
}

func main() {
	cfg := config.Load()

	log, err := buildLogger(cfg.DevMode)
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db storage
	if cfg.DatabaseURL != "" {
		pg, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		db = pg
		log.Info("using postgres store")
	} else {
		db = store.NewMemory()
		log.Warn("DATABASE_URL not set, results are not durable")
	}

	var provider identity.Provider = identity.NewJWT(cfg.JWTSecret)
	h := hub.New(db, log)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, provider, db, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Abandon live matches and let the hub persist them before the
		// listener closes under the connections.
		done := make(chan struct{})
		h.Inbox() <- hub.Shutdown{Done: done}
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			log.Warn("hub shutdown timed out")
		}

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("goodbye")
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
