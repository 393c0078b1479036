package config

import (
	"strconv"
	"time"
)

func getDuration(src *source, envVar string, defaultValue time.Duration) time.Duration {
	raw := src.get(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

func getInt(src *source, envVar string, defaultValue int) int {
	raw := src.get(envVar, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(src *source, envVar string, defaultValue bool) bool {
	raw := src.get(envVar, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
