package server

import "github.com/jrsteele09/freight-session/authapi"

// Route path constants
// All gateway routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes
	RouteAuthLogin   = authapi.RouteLogin
	RouteAuthRefresh = authapi.RouteRefresh
	RouteAuthLogout  = authapi.RouteLogout

	// API Routes
	RouteAPIMe       = authapi.RouteMe
	RouteAPIBaseFees = authapi.RouteBaseFees

	// Operational Routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
