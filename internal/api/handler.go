package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/monitor"
	"signal-core/internal/notify"
)

const onlineBanner = "✅ MEXC futures bot online!"

// Deps are the collaborators exposed over HTTP.
type Deps struct {
	Engine   engine.Service
	Notifier notify.Notifier
	Bus      *events.Bus
	Recorder *monitor.Recorder
	Metrics  *monitor.SystemMetrics
	Logger   zerolog.Logger
}

// Options configures auth and the Telegram webhook route.
type Options struct {
	JWTSecret string
	// BotToken mounts the Telegram webhook at POST /<BotToken>; empty
	// disables the route.
	BotToken       string
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// Server wires HTTP endpoints around the engine.
type Server struct {
	Router   *gin.Engine
	engine   engine.Service
	notifier notify.Notifier
	bus      *events.Bus
	recorder *monitor.Recorder
	metrics  *monitor.SystemMetrics
	opts     Options
	log      zerolog.Logger
	http     *http.Server
}

func NewServer(deps Deps, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}
	n := deps.Notifier
	if n == nil {
		n = notify.Nop{}
	}
	logger := deps.Logger.With().Str("component", "api").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(logger, deps.Metrics))
	r.Use(RateLimitMiddleware(newIPLimiters(opts.RateLimit, opts.RateBurst, 5*time.Minute), logger))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:   r,
		engine:   deps.Engine,
		notifier: n,
		bus:      deps.Bus,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		opts:     opts,
		log:      logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/", s.home)
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.recorder != nil {
		s.Router.GET("/metrics", gin.WrapH(s.recorder.Handler()))
	}
	if s.opts.BotToken != "" {
		// Bot tokens contain ':' so the path is matched in the handler.
		s.Router.POST("/:token", s.telegramWebhook)
	}

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.opts.JWTSecret))
		{
			protected.POST("/start", s.postStart)
		}
	}
}

func (s *Server) home(c *gin.Context) {
	c.String(http.StatusOK, onlineBanner)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.engine.IsRunning(),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	resp := gin.H{"engine": s.engine.Status()}
	if s.metrics != nil {
		resp["metrics"] = s.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) postStart(c *gin.Context) {
	started := s.engine.Start()
	operator := CurrentOperator(c)
	s.log.Info().Str("operator", operator).Bool("started", started).Msg("start requested over api")
	if started {
		s.notifier.Notify(startedReply)
	}
	c.JSON(http.StatusOK, gin.H{
		"started": started,
		"running": s.engine.IsRunning(),
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(shutdownCtx)
}
