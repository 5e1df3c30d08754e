// Package web exposes the RollCall service over a JSON HTTP API.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/config"
	appLog "rollcall/internal/log"
	"rollcall/internal/model"
	"rollcall/internal/rollcall"
)

// PosterRenderer renders the printable check-in poster of an event.
type PosterRenderer interface {
	Poster(ctx context.Context, slug string) ([]byte, error)
}

// Server provides the HTTP API.
type Server struct {
	cfg     *config.Config
	svc     *rollcall.Service
	posters PosterRenderer
	engine  *gin.Engine

	// The calendar listing fans out to relays and feeds; it is served from
	// memory and refreshed on a schedule.
	calendarMu    sync.RWMutex
	calendarCache *calendarCache
}

type calendarCache struct {
	entries   []model.CalendarImportRecord
	updatedAt time.Time
}

// NewServer builds the router. posters may be nil to disable poster
// rendering.
func NewServer(cfg *config.Config, svc *rollcall.Service, posters PosterRenderer) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		posters: posters,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), requestID(), accessLog(), s.corsMiddleware())
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	api := s.engine.Group("/api")
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		api.Use(gin.BasicAuthForRealm(gin.Accounts{
			s.cfg.BasicAuth.Username: s.cfg.BasicAuth.Password,
		}, "RollCall"))
	}

	api.GET("/events", s.handleListEvents)
	api.POST("/events", s.handleCreateEvent)
	api.GET("/events/:slug", s.handleGetEvent)
	api.GET("/events/:slug/checkins", s.handleEventCheckIns)
	api.POST("/events/:slug/checkins", s.handleCheckIn)
	api.GET("/events/:slug/analytics", s.handleAnalytics)
	api.GET("/events/:slug/attendance.csv", s.handleAttendanceCSV)
	api.GET("/events/:slug/calendar.ics", s.handleEventICS)
	api.GET("/events/:slug/poster.png", s.handlePoster)

	api.GET("/attendees/:pubkey/checkins", s.handleAttendeeHistory)

	api.GET("/calendar", s.handleCalendar)
	api.POST("/calendar/:id/import", s.handleImport)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = s.cfg.CORSOrigins
	}
	cc.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cc.ExposeHeaders = []string{"Content-Disposition", "X-Request-ID"}
	return cors.New(cc)
}

const requestIDHeader = "X-Request-ID"

// requestID propagates the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one line per request through the application logger.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []any{
			"id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"dur", time.Since(start).Round(time.Millisecond),
		}
		switch {
		case c.Request.URL.Path == "/health":
			appLog.Debug("http request", kv...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			appLog.Error("http request", errors.New(c.Errors.String()), kv...)
		default:
			appLog.Info("http request", kv...)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// RefreshCalendar reloads the calendar import listing into memory.
func (s *Server) RefreshCalendar(ctx context.Context) error {
	entries, err := s.svc.CalendarImports(ctx)
	if err != nil {
		return err
	}
	s.calendarMu.Lock()
	s.calendarCache = &calendarCache{entries: entries, updatedAt: s.svc.Now()}
	s.calendarMu.Unlock()
	appLog.Info("calendar listing refreshed", "entries", len(entries))
	return nil
}

func (s *Server) cachedCalendar(maxAge time.Duration) (*calendarCache, bool) {
	s.calendarMu.RLock()
	defer s.calendarMu.RUnlock()
	cc := s.calendarCache
	if cc == nil || s.svc.Now().Sub(cc.updatedAt) >= maxAge {
		return cc, false
	}
	return cc, true
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	var missing *rollcall.MissingFieldsError
	switch {
	case errors.Is(err, rollcall.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rollcall.ErrAlreadyCheckedIn):
		return http.StatusConflict
	case errors.Is(err, rollcall.ErrEventEnded), errors.As(err, &missing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rollcall.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, rollcall.ErrMissingAttendee), errors.Is(err, rollcall.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, err error) {
	status := errorStatus(err)
	body := gin.H{"error": err.Error()}
	var missing *rollcall.MissingFieldsError
	if errors.As(err, &missing) {
		body["fields"] = missing.Fields
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func trimmedQuery(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Query(key))
}
