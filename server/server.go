// Package server is the freight admin auth gateway: it issues and rotates tokens for the console
// and guards the admin API with them.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/freight-session/auth"
	"github.com/jrsteele09/freight-session/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	routes   []string
	config   config.Config
	auth     *auth.AuthorizationService
	limiter  *loginLimiter
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.With().Str("component", "gateway").Logger()
	}
}

// WithGatherer sets what /metrics exposes. Defaults to the global prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func New(cfg config.Config, authService *auth.AuthorizationService, options ...Option) *Server {
	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		config:   cfg,
		auth:     authService,
		gatherer: prometheus.DefaultGatherer,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	if cfg.GetEnableRateLimiting() {
		s.limiter = newLoginLimiter(cfg.GetLoginAttemptInterval(), cfg.GetLoginBurst())
	}

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msg(fmt.Sprintf("[%-19s] %s", colouredMethod(method), path))
}

func colouredMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
