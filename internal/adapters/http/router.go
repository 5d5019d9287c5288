package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Together/internal/adapters/signal"
	"github.com/dkeye/Together/internal/app/orch"
	"github.com/dkeye/Together/internal/config"
	"github.com/dkeye/Together/internal/domain"
	"github.com/dkeye/Together/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Orch       *orch.Orchestrator
	Signal     *signal.SignalWSController
	Gatherer   prometheus.Gatherer
	ICEServers []webrtc.ICEServer
}

// SetupRouter wires the signaling socket, health probes, metrics and the
// read-only diagnostics API. ctx bounds every signaling session.
func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) http.Handler {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if ctx.Err() != nil {
			c.String(http.StatusServiceUnavailable, "shutting down")
			return
		}
		c.String(http.StatusOK, "ready")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler(d.Gatherer)))

	r.GET("/ws", func(c *gin.Context) {
		d.Signal.HandleSignal(ctx, c)
	})

	api := r.Group("/api")

	// GET /api/rooms — list live rooms
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": d.Orch.Registry.List()})
	})

	// GET /api/rooms/:code/members — member ids in join order
	api.GET("/rooms/:code/members", func(c *gin.Context) {
		code, err := domain.ParseRoomCode(c.Param("code"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		members := d.Orch.Registry.MembersOf(code)
		if members == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": code, "members": members})
	})

	// GET /api/ice-servers — RTCPeerConnection iceServers for browsers
	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": d.ICEServers})
	})

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowedOrigins).Str("static", cfg.StaticPath).Msg("router setup")

	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}
