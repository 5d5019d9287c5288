package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Together/internal/adapters/http"
	"github.com/dkeye/Together/internal/adapters/rtc"
	ws "github.com/dkeye/Together/internal/adapters/signal"
	"github.com/dkeye/Together/internal/app"
	"github.com/dkeye/Together/internal/app/orch"
	"github.com/dkeye/Together/internal/config"
	"github.com/dkeye/Together/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	policy, err := app.ParseBackpressurePolicy(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("bad backpressure policy")
	}
	joinPolicy, err := app.ParseJoinPolicy(cfg.JoinPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("bad join policy")
	}
	iceServers, err := rtc.ParseICEServers(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("bad ice servers")
	}

	o := &orch.Orchestrator{
		Registry:    app.NewRegistry(),
		Connections: app.NewConnections(),
		Policy:      policy,
		JoinPolicy:  joinPolicy,
		Metrics:     m,
	}

	ctl := ws.NewSignalWSController(o, ws.NewRoomRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval), m, ws.Settings{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	h := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:       o,
		Signal:     ctl,
		Gatherer:   reg,
		ICEServers: iceServers,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Bool("tls", cfg.TLSEnabled()).Msg("Together server started")
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", srv.Addr).Msg("listener failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	// Hijacked websockets are not tracked by Shutdown; ctx cancel tears them down.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := ctl.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("signaling sessions did not drain")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
