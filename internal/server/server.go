// Package server is the HTTP boundary: the webhook that feeds the event bus,
// the health probe, and the metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cadence/internal/async"
	"cadence/internal/domain"
	"cadence/internal/eventbus"
	"cadence/internal/logging"
	"cadence/internal/observability"
)

// EventSink accepts validated events. Satisfied by BusSink.
type EventSink interface {
	Emit(ctx context.Context, event domain.SystemEvent) (eventbus.EmitResult, error)
}

// BusSink adapts the event bus to the EventSink interface.
type BusSink struct {
	Bus *eventbus.Bus
}

// Emit forwards to the bus. The bus itself never fails; per-mapping problems
// surface as skip reasons in the result.
func (s BusSink) Emit(ctx context.Context, event domain.SystemEvent) (eventbus.EmitResult, error) {
	return s.Bus.Emit(ctx, event), nil
}

// Config holds the HTTP server knobs.
type Config struct {
	Addr  string
	Token string
}

// Server owns the gin engine and the webhook counters.
type Server struct {
	config  Config
	sink    EventSink
	metrics *observability.Metrics
	logger  *logging.Logger
	engine  *gin.Engine
	clock   func() time.Time

	startedAt time.Time
	received  atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64

	httpServer *http.Server
}

// New builds the Server and its routes.
func New(sink EventSink, metrics *observability.Metrics, config Config, logger *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		config:  config,
		sink:    sink,
		metrics: metrics,
		logger:  logging.OrNop(logger).WithModule("server"),
		clock:   time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})

	engine.POST("/webhook", s.handleWebhook)
	engine.GET("/health", s.handleHealth)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	s.engine = engine
	return s
}

// Handler exposes the router, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = s.clock()
	s.httpServer = &http.Server{Addr: s.config.Addr, Handler: s.engine}

	errCh := make(chan error, 1)
	async.Go(s.logger, "http-listen", func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	})
	s.logger.Info("webhook server listening", "addr", s.config.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown error", "error", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

// webhookPayload is the raw wire shape. Data uses RawMessage so a JSON array
// or scalar can be rejected explicitly instead of silently coerced.
type webhookPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

func (s *Server) handleWebhook(c *gin.Context) {
	s.received.Add(1)

	if s.config.Token != "" && c.GetHeader("Authorization") != "Bearer "+s.config.Token {
		s.reject(c, http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		s.reject(c, http.StatusBadRequest, gin.H{"error": "Bad Request", "message": "malformed JSON body"})
		return
	}
	event, err := payload.toEvent(s.clock())
	if err != nil {
		s.reject(c, http.StatusBadRequest, gin.H{"error": "Bad Request", "message": err.Error()})
		return
	}

	result, err := s.sink.Emit(c.Request.Context(), event)
	if err != nil {
		s.logger.Error("event routing failed", "event_id", event.ID, "error", err)
		s.reject(c, http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	s.accepted.Add(1)
	s.count(c.FullPath(), http.StatusOK)
	if s.metrics != nil {
		s.metrics.EventsEmitted.WithLabelValues(string(event.Type)).Inc()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             "accepted",
		"eventId":            result.EventID,
		"pipelinesTriggered": result.PipelinesTriggered,
		"pipelineIds":        emptyIfNil(result.PipelineIDs),
		"skippedReasons":     emptyIfNil(result.SkippedReasons),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	uptime := time.Duration(0)
	if !s.startedAt.IsZero() {
		uptime = s.clock().Sub(s.startedAt)
	}
	s.count(c.FullPath(), http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"uptime":            uptime.Round(time.Second).String(),
		"webhooksReceived":  s.received.Load(),
		"webhooksAccepted":  s.accepted.Load(),
		"webhooksRejected":  s.rejected.Load(),
	})
}

func (s *Server) reject(c *gin.Context, status int, body gin.H) {
	s.rejected.Add(1)
	s.count(c.FullPath(), status)
	c.JSON(status, body)
}

func (s *Server) count(path string, status int) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (p webhookPayload) toEvent(now time.Time) (domain.SystemEvent, error) {
	event := domain.SystemEvent{
		ID:     p.ID,
		Type:   domain.EventType(p.Type),
		Source: p.Source,
	}
	if err := event.Validate(); err != nil {
		return domain.SystemEvent{}, err
	}

	if p.Timestamp == "" {
		event.Timestamp = now.UTC()
	} else {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return domain.SystemEvent{}, errInvalid("timestamp must be RFC 3339")
		}
		event.Timestamp = ts.UTC()
	}

	if len(p.Data) == 0 || string(p.Data) == "null" {
		return domain.SystemEvent{}, errInvalid("data must be a JSON object")
	}
	var data map[string]any
	if err := json.Unmarshal(p.Data, &data); err != nil {
		return domain.SystemEvent{}, errInvalid("data must be a JSON object")
	}
	event.Data = data
	return event, nil
}

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
