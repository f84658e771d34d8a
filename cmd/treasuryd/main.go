package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/custodia-network/treasury/internal/app"
	"github.com/custodia-network/treasury/internal/app/domain/identity"
	"github.com/custodia-network/treasury/internal/app/events"
	"github.com/custodia-network/treasury/internal/app/metrics"
	"github.com/custodia-network/treasury/internal/app/storage/postgres"
	"github.com/custodia-network/treasury/internal/config"
	"github.com/custodia-network/treasury/pkg/logger"
)

func main() {
	envFile := flag.String("env", ".env", "Path to optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.NewDefault("treasuryd").WithError(err).Error("load configuration")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Component: "treasuryd",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stores app.Stores
	if cfg.Database == "postgres" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.WithError(err).Error("open postgres")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Error("ping postgres")
			os.Exit(1)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.WithError(err).Error("ensure schema")
			os.Exit(1)
		}
		store := postgres.New(db)
		stores = app.Stores{
			Admin:         store,
			PaymentConfig: store,
			UserAccounts:  store,
			Groups:        store,
			Pools:         store,
			Proposals:     store,
			Ledger:        store,
		}
	}

	application, err := app.New(stores, app.Options{
		Owner: identity.Identity(cfg.Owner),
		Bus:   events.NewRingBus(cfg.EventBufferSize),
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.MetricsAddr).Info("metrics server listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("metrics server")
			}
		}()
	}

	log.WithField("database", cfg.Database).Info("treasury engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics server shutdown")
		}
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("stop application")
		os.Exit(1)
	}
}
