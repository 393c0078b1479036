package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config interface {
	EnvConfig
	CorsConfig
	TokenConfig
	SessionConfig
	StorageConfig
	SecurityConfig
	OIDCConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetAuthBaseURL() string
	GetAPIBaseURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Token
	Session
	Storage
	Security
	OIDC
}

// New builds a Config backed by environment variables only
func New() Config {
	return newMainConfig(&source{})
}

// Load builds a Config whose defaults come from a TOML file. Environment variables still win.
// Tables are flattened into upper-case env names: [session] refresh_margin -> SESSION_REFRESH_MARGIN.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return New(), nil
	}
	raw := map[string]any{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("[config Load] %s: %w", path, err)
	}
	src := &source{file: map[string]string{}}
	flatten("", raw, src.file)
	return newMainConfig(src), nil
}

func newMainConfig(src *source) mainConfig {
	return mainConfig{
		EnvVars:  EnvVars{src: src},
		Cors:     Cors{src: src},
		Token:    Token{src: src},
		Session:  Session{src: src},
		Storage:  Storage{src: src},
		Security: Security{src: src},
		OIDC:     OIDC{src: src},
	}
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		switch value := v.(type) {
		case map[string]any:
			flatten(key, value, out)
		case []any:
			parts := make([]string, 0, len(value))
			for _, p := range value {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(value)
		}
	}
}

// source resolves a setting: environment, then config file, then the default
type source struct {
	file map[string]string
}

func (s *source) get(envVar, defaultValue string) string {
	if value := os.Getenv(envVar); value != "" {
		return value
	}
	if s != nil {
		if value, ok := s.file[envVar]; ok && value != "" {
			return value
		}
	}
	return defaultValue
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
