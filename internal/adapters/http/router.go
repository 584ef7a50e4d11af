// Package http is the command gateway: it maps user commands onto sessions
// and routes replies. It knows nothing about state machines or queues beyond
// the session's public surface.
package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/variouspotatoes/discord-music-player/internal/app"
	"github.com/variouspotatoes/discord-music-player/internal/config"
	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
	"github.com/variouspotatoes/discord-music-player/internal/metrics"
)

// ClientTokenMiddleware tags every caller with a stable opaque token, used
// for rate limiting and as the requester identity on queued items.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type api struct {
	cfg      *config.Config
	registry *app.Registry
	resolver core.Resolver
	limiter  *CommandRateLimiter
}

func SetupRouter(cfg *config.Config, registry *app.Registry, resolver core.Resolver, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	a := &api{
		cfg:      cfg,
		registry: registry,
		resolver: resolver,
		limiter:  NewCommandRateLimiter(cfg.RateLimit, cfg.RateInterval),
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": registry.Len()})
	})
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	rooms := r.Group("/api/rooms/:room")
	rooms.POST("/play", a.rateLimited, a.handlePlay)
	rooms.POST("/skip", a.rateLimited, a.handleSkip)
	rooms.POST("/pause", a.rateLimited, a.handlePause)
	rooms.POST("/resume", a.rateLimited, a.handleResume)
	rooms.POST("/leave", a.rateLimited, a.handleLeave)
	rooms.GET("/queue", a.handleQueue)
	rooms.GET("/now", a.handleNowPlaying)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}

func (a *api) rateLimited(c *gin.Context) {
	if !a.limiter.Allow(c.GetString("client_token")) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
	}
}

type playRequest struct {
	Query   string `json:"query" binding:"required"`
	Channel string `json:"channel" binding:"required"`
}

// handlePlay is the full request path: ensure session, await readiness,
// resolve, enqueue. The item's lifecycle hooks carry the reply side effects.
func (a *api) handlePlay(c *gin.Context) {
	room := domain.RoomID(c.Param("room"))
	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query or channel"})
		return
	}

	sess := a.registry.GetOrCreate(room, domain.ChannelID(req.Channel))
	if err := sess.AwaitReady(c.Request.Context(), a.cfg.JoinTimeout); err != nil {
		var timeout *domain.JoinTimeoutError
		if errors.As(err, &timeout) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	track, err := a.resolver.Resolve(c.Request.Context(), req.Query)
	if err != nil {
		var res *domain.ResolutionError
		if errors.As(err, &res) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	requester := c.GetString("client_token")
	roomLog := log.With().Str("module", "adapters.http").Str("room", string(room)).Str("title", track.Title).Logger()
	item := domain.NewPlaybackItem(*track, requester, domain.ItemHooks{
		OnStart: func() {
			roomLog.Info().Msg("track started")
		},
		OnFinish: func() {
			roomLog.Info().Msg("track finished")
		},
		OnError: func(err error) {
			roomLog.Warn().Err(err).Msg("track failed")
		},
	})

	if err := sess.Enqueue(item); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"title":    track.Title,
		"position": sess.QueueLen(),
	})
}

func (a *api) withSession(c *gin.Context) (*app.Session, bool) {
	sess, ok := a.registry.Get(domain.RoomID(c.Param("room")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for room"})
		return nil, false
	}
	return sess, true
}

func (a *api) handleSkip(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	sess.Skip()
	c.Status(http.StatusNoContent)
}

func (a *api) handlePause(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	sess.Pause()
	c.Status(http.StatusNoContent)
}

func (a *api) handleResume(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	sess.Resume()
	c.Status(http.StatusNoContent)
}

func (a *api) handleLeave(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	sess.Leave()
	c.Status(http.StatusNoContent)
}

type queueEntry struct {
	Title       string `json:"title"`
	DurationSec int    `json:"duration_sec"`
}

func (a *api) handleQueue(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	n := a.cfg.QueuePreview
	if raw := c.Query("n"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			n = v
		}
	}
	items := sess.QueueSnapshot(n)
	out := make([]queueEntry, 0, len(items))
	for _, item := range items {
		out = append(out, queueEntry{Title: item.Title(), DurationSec: int(item.Duration().Seconds())})
	}
	c.JSON(http.StatusOK, gin.H{"total": sess.QueueLen(), "items": out})
}

func (a *api) handleNowPlaying(c *gin.Context) {
	sess, ok := a.withSession(c)
	if !ok {
		return
	}
	now, playing := sess.NowPlaying()
	if !playing {
		c.JSON(http.StatusOK, gin.H{"state": core.EngineIdle.String()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":        now.State.String(),
		"title":        now.Title,
		"position_sec": int(now.Position.Seconds()),
		"duration_sec": int(now.Duration.Seconds()),
	})
}
