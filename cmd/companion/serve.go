package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/companion/internal/api"
	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/health"
	"github.com/nadzzz/companion/internal/metrics"
	"github.com/nadzzz/companion/internal/transport"
	grpctransport "github.com/nadzzz/companion/internal/transport/grpc"
	httptransport "github.com/nadzzz/companion/internal/transport/http"
	mqtttransport "github.com/nadzzz/companion/internal/transport/mqtt"

	_ "github.com/nadzzz/companion/docs"
)

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the companion daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := loadApp(ctx, *configFile)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("companion starting", "version", version)

	janitor := auth.NewJanitor(a.pending, cfg.Auth.SweepInterval, slog.Default())
	go janitor.Run(ctx)

	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		apiHandler := api.New(a.flow, a.tokens, a.catalog, cfg.Auth.UserID, api.WithModel(a.backend, cfg.Persona))
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port, httptransport.WithRoutes(apiHandler.Mount)))
	}
	if cfg.Transports.MQTT.Enabled {
		transports = append(transports, mqtttransport.New(cfg.Transports.MQTT))
	}
	if len(transports) == 0 {
		return fmt.Errorf("no transports enabled, enable at least one in config")
	}

	healthServer := health.New(cfg.Server.HealthPort, metrics.Handler(a.registry))
	if a.db != nil {
		healthServer.AddCheck("storage", a.db.PingContext)
	}
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, a.router.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("companion ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"llm_backend", a.backend.Name(),
		"tts", a.synth != nil)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("companion stopped")
	return nil
}
