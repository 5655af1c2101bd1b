// Package admin serves the operator HTTP surface: health, Prometheus
// metrics and the live session registry.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/jamwire/internal/auth"
	"github.com/danmuck/jamwire/internal/client"
	"github.com/danmuck/jamwire/internal/observability"
	"github.com/danmuck/jamwire/internal/protocol"
	"github.com/danmuck/jamwire/internal/registry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time
	Sessions *registry.Registry

	router    *gin.Engine
	validator auth.Validator
}

type chatRequest struct {
	Text string `json:"text"`
}

// New builds the admin router. Mutating routes require a token accepted by
// validator; a nil validator leaves them open.
func New(id, addr string, sessions *registry.Registry, corsOrigins []string, validator auth.Validator) *Server {
	observability.RegisterMetrics()
	if sessions == nil {
		sessions = registry.New()
	}
	if validator == nil {
		validator = auth.AllowAll{}
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestID())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:        id,
		Addr:      addr,
		Appeared:  time.Now(),
		Sessions:  sessions,
		router:    r,
		validator: validator,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.Appeared).String(),
			"service":  s.ID,
			"version":  version,
			"sessions": s.Sessions.Len(),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
	})

	s.router.GET("/sessions/:id", func(c *gin.Context) {
		id := c.Param("id")
		sess, ok := s.Sessions.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrNotFound.Error()})
			return
		}
		c.JSON(http.StatusOK, registry.Summary{ID: id, Status: sess.Status()})
	})

	s.router.DELETE("/sessions/:id", s.requireToken(), func(c *gin.Context) {
		id := c.Param("id")
		if err := s.Sessions.Close(id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("admin", s.ID).Str("session", id).Msg("admin closed session")
		c.JSON(http.StatusAccepted, gin.H{"status": "disconnecting", "id": id})
	})

	s.router.POST("/sessions/:id/chat", s.requireToken(), func(c *gin.Context) {
		id := c.Param("id")
		sess, ok := s.Sessions.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrNotFound.Error()})
			return
		}
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		if err := sess.Send(protocol.ChatText{Text: req.Text}); err != nil {
			c.JSON(sendStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "sent", "id": id})
	})
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := auth.BearerToken(c.GetHeader("Authorization"))
		if err := s.validator.Validate(token); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func sendStatus(err error) int {
	switch {
	case errors.Is(err, client.ErrNotConnected),
		errors.Is(err, client.ErrNotOpen),
		errors.Is(err, client.ErrDisconnecting),
		errors.Is(err, client.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// Serve runs the admin listener until ctx ends, then shuts it down.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	log.Info().Str("admin", s.ID).Str("addr", s.Addr).Msg("admin listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
