// cmd/cncmon/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tamzrod/cnc-monitor/internal/api"
	"github.com/tamzrod/cnc-monitor/internal/command"
	"github.com/tamzrod/cnc-monitor/internal/config"
	"github.com/tamzrod/cnc-monitor/internal/history"
	"github.com/tamzrod/cnc-monitor/internal/logging"
	"github.com/tamzrod/cnc-monitor/internal/modbus"
	"github.com/tamzrod/cnc-monitor/internal/mqtt"
	"github.com/tamzrod/cnc-monitor/internal/poller"
	"github.com/tamzrod/cnc-monitor/internal/scan"
	"github.com/tamzrod/cnc-monitor/internal/state"
	"github.com/tamzrod/cnc-monitor/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validation failed")
	}
	config.Normalize(cfg)

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("logger setup failed")
	}
	log.Logger = logger

	metrics, err := telemetry.New(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal().Err(err).Msg("metrics registration failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --------------------
	// Core wiring
	// --------------------

	store := state.NewStore()

	mcfg := modbus.Config{
		Host:    cfg.Controller.Host,
		Port:    cfg.Controller.Port,
		UnitID:  cfg.Controller.UnitID,
		Timeout: time.Duration(cfg.Controller.TimeoutMs) * time.Millisecond,
	}

	var sinks []poller.Sink
	var recorder *history.Recorder

	if cfg.History.Enabled {
		recorder, err = history.Open(cfg.History.Path, time.Duration(cfg.History.SampleMs)*time.Millisecond)
		if err != nil {
			logger.Fatal().Err(err).Msg("history open failed")
		}
		defer recorder.Close()
		sinks = append(sinks, recorder)
	}

	if cfg.MQTT.Enabled {
		publisher, err := mqtt.New(cfg.MQTT)
		if err != nil {
			logger.Fatal().Err(err).Msg("mqtt connect failed")
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	p, err := poller.Build(cfg, store, logger.With().Str("component", "poller").Logger(), metrics, sinks...)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller build failed")
	}

	issuer, err := command.New(
		func() (command.Conn, error) { return modbus.Dial(mcfg) },
		logger.With().Str("component", "command").Logger(),
		metrics,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("command issuer build failed")
	}

	scanner, err := scan.New(
		func() (scan.Conn, error) { return modbus.Dial(mcfg) },
		logger.With().Str("component", "scan").Logger(),
		metrics,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("scanner build failed")
	}

	go p.Run(ctx)

	// --------------------
	// HTTP shim
	// --------------------

	srv := api.New(store, issuer, scanner, recorder, cfg.Controller.UnitID, logger.With().Str("component", "api").Logger())

	httpSrv := &http.Server{
		Addr:    cfg.Web.Listen,
		Handler: srv.Routes(promhttp.Handler()),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("listen", cfg.Web.Listen).
		Str("controller", mcfg.Endpoint()).
		Msg("cncmon started")

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server stopped")
	}
}
