package config

import (
	"os"
	"time"
)

type Config struct {
	APIBaseURL string
	WSURL      string
	AuthToken  string

	TypingTimeout   time.Duration
	RefreshDebounce time.Duration
	CallTimeout     time.Duration
}

func Load() *Config {
	return &Config{
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:3001"),
		WSURL:           getEnv("WS_URL", "ws://localhost:3001/ws"),
		AuthToken:       getEnv("AUTH_TOKEN", ""),
		TypingTimeout:   getDuration("TYPING_TIMEOUT", 3*time.Second),
		RefreshDebounce: getDuration("REFRESH_DEBOUNCE", time.Second),
		CallTimeout:     getDuration("CALL_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	val, exists := os.LookupEnv(key)

	if exists {
		return val
	}

	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}

	return d
}
