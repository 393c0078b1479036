package config

import (
	"fmt"
	"strings"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	folderEnvVar      = "FOLDER"
	envVar            = "ENV"
	authBaseURLEnvVar = "AUTH_BASE_URL"
	apiBaseURLEnvVar  = "API_BASE_URL"
)

type EnvVars struct {
	src *source
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.src.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.src.get(appNameVar, "Freight Admin")
}

func (e EnvVars) GetDataFolder() string {
	return e.src.get(folderEnvVar, "./data")
}

func (e EnvVars) GetEnv() string {
	return e.src.get(envVar, "DEV")
}

// GetAuthBaseURL returns where the auth gateway answers /auth/login, /auth/refresh and /auth/logout
func (e EnvVars) GetAuthBaseURL() string {
	return strings.TrimRight(e.src.get(authBaseURLEnvVar, "http://localhost:8080"), "/")
}

// GetAPIBaseURL returns the base URL protected requests are sent to
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(e.src.get(apiBaseURLEnvVar, e.GetAuthBaseURL()), "/")
}
