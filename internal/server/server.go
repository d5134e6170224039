// Package server exposes the scrape service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	instagram "github.com/RavensCloud/reels-gofun"
	"github.com/RavensCloud/reels-gofun/internal/logging"
	"github.com/RavensCloud/reels-gofun/internal/reel"
	"github.com/RavensCloud/reels-gofun/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// Scraper produces records for post URLs.
type Scraper interface {
	Scrape(ctx context.Context, url string) (reel.Record, error)
	Compare(ctx context.Context, url1, url2 string) (reel.Comparison, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger
}

// Server is the HTTP front of the service.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router and the underlying http.Server.
func New(scraper Scraper, cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "server")

	router, err := NewRouter(scraper, cfg.AllowedOrigins, logger)
	if err != nil {
		return nil, err
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Run() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewRouter wires the routes and middleware.
func NewRouter(scraper Scraper, allowedOrigins []string, logger *slog.Logger) (*gin.Engine, error) {
	corsHandler, err := newCORS(allowedOrigins)
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(corsHandler)

	h := &handler{scraper: scraper, logger: logger}
	router.GET("/test", h.test)
	router.GET("/healthz", h.health)
	router.GET("/scrape", h.scrape)
	router.GET("/compare", h.compare)
	router.GET("/report", h.report)

	return router, nil
}

// newCORS applies the CORS policy to requests from allowed origins only.
// Other requests are served without CORS headers and left for the browser
// to block. Preflights echo the requested headers, since a literal "*" is
// not honoured on credentialed requests.
func newCORS(allowedOrigins []string) (gin.HandlerFunc, error) {
	cfg := cors.Config{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy := cors.New(cfg)

	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !(allowAll || allowed[origin]) {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodOptions {
			if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
				c.Header("Access-Control-Allow-Headers", requested)
			}
		}
		policy(c)
	}, nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(logging.ContextWithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logging.WithContext(c.Request.Context(), logger).Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", c.ClientIP(),
		)
	}
}

type handler struct {
	scraper Scraper
	logger  *slog.Logger
}

func (h *handler) test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "CORS works!"})
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) scrape(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url query parameter"})
		return
	}

	rec, err := h.scraper.Scrape(c.Request.Context(), url)
	if err != nil {
		h.fail(c, err, "url", url)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) compare(c *gin.Context) {
	url1, url2 := c.Query("url1"), c.Query("url2")
	if url1 == "" || url2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url1 or url2 query parameter"})
		return
	}

	cmp, err := h.scraper.Compare(c.Request.Context(), url1, url2)
	if err != nil {
		h.fail(c, err, "url1", url1, "url2", url2)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (h *handler) report(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url query parameter"})
		return
	}

	rec, err := h.scraper.Scrape(c.Request.Context(), url)
	if err != nil {
		h.fail(c, err, "url", url)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", reel.ReportFilename(rec)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(reel.Report(rec, time.Now())))
}

func (h *handler) fail(c *gin.Context, err error, attrs ...any) {
	status := statusFor(err)
	attrs = append(attrs, "path", c.Request.URL.Path, "status", status, "error", err)
	logging.WithContext(c.Request.Context(), h.logger).Error("scrape failed", attrs...)
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps a scrape error to the HTTP status returned to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, instagram.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, instagram.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, instagram.ErrAuthRequired),
		errors.Is(err, instagram.ErrBadCredentials),
		errors.Is(err, instagram.ErrTwoFactorRequired),
		errors.Is(err, instagram.ErrChallengeRequired):
		return http.StatusUnauthorized
	case errors.Is(err, instagram.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrCorruptSession):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
