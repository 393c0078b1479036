package config

import (
	"strings"

	"github.com/jrsteele09/freight-session/internal/utils"
)

type Cors struct {
	src *source
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	parts := strings.Split(c.src.get("CORS_ALLOWED_ORIGINS", "http://localhost:5173"), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return AllowedOrigins(utils.ToSet(parts))
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
