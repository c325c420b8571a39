package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration. Timeout fields are tuning
// parameters, not protocol invariants; the defaults match what the web
// client shipped with.
type Config struct {
	APIBaseURL     string
	AuthToken      string
	ConsultationID string

	JoinTimeout        time.Duration
	ChannelOpenTimeout time.Duration
	RemoteMediaTimeout time.Duration
	ScanTimeout        time.Duration

	// MediaRefreshAttempts bounds how many times the controller retries
	// binding remote media before offering an ICE restart.
	MediaRefreshAttempts int
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	token := os.Getenv("QBH_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("QBH_TOKEN environment variable is required")
	}

	apiURL := os.Getenv("QBH_API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("QBH_API_URL environment variable is required")
	}

	return &Config{
		APIBaseURL:           apiURL,
		AuthToken:            token,
		ConsultationID:       os.Getenv("QBH_CONSULTATION_ID"),
		JoinTimeout:          envDuration("QBH_JOIN_TIMEOUT", 10*time.Second),
		ChannelOpenTimeout:   envDuration("QBH_CHANNEL_OPEN_TIMEOUT", 15*time.Second),
		RemoteMediaTimeout:   envDuration("QBH_REMOTE_MEDIA_TIMEOUT", 30*time.Second),
		ScanTimeout:          envDuration("QBH_SCAN_TIMEOUT", 120*time.Second),
		MediaRefreshAttempts: envInt("QBH_MEDIA_REFRESH_ATTEMPTS", 3),
	}, nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
