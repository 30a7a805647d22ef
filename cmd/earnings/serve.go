package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/earnings-engine/api"
	"github.com/warp/earnings-engine/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the earnings HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.http_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.HTTPAddr = serveAddr
	}
	log := logging.Component("server")

	a, err := newApp(cfg, logging.GetLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.svc, a.store)
	handler.Log = logging.Component("api")
	handler.ReasonCache = a.reasons
	handler.DefaultsCache = a.defaults
	handler.Ping = a.ping
	handler.ScenariosEnabled = cfg.Server.EnableScenarios

	opts := api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     a.metrics,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimiter = api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	router := api.NewRouter(handler, opts)

	scanner := api.NewDriftScanner(a.svc, logging.GetLogger())
	scanner.Enabled = cfg.Drift.Enabled
	scanner.Interval = cfg.Drift.Interval
	scanner.LookbackDays = cfg.Drift.LookbackDays
	scanner.Start()
	defer scanner.Stop()

	server := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "addr", cfg.Server.HTTPAddr, "env", cfg.App.Env,
			"db_driver", cfg.DB.Driver, "scenarios", cfg.Server.EnableScenarios)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Infow("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			log.Errorw("server failed", "error", err)
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
