package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// CacheMode controls whether fetched submissions are written to the on-disk
// cache tier or kept in memory only.
type CacheMode string

const (
	// CacheModeMemory populates only the in-memory tier on a network fetch.
	CacheModeMemory CacheMode = "memory"
	// CacheModeWrite additionally writes fetched submissions to CACHE_DIR.
	CacheModeWrite CacheMode = "write"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	PGURL        string
	UserAgent    string
	EdgarBaseURL string
	CacheDir     string
	CacheMode    CacheMode
	Port         string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pgURL := os.Getenv("PG_URL")
	if pgURL == "" {
		return nil, fmt.Errorf("PG_URL environment variable is required")
	}

	// EDGAR rejects requests without a descriptive User-Agent, so there is
	// no sensible default for this one.
	userAgent := os.Getenv("SEC_USER_AGENT")
	if userAgent == "" {
		return nil, fmt.Errorf("SEC_USER_AGENT environment variable is required")
	}

	baseURL := os.Getenv("EDGAR_BASE_URL")
	if baseURL == "" {
		baseURL = "https://www.sec.gov/Archives"
	}

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "./cache"
	}

	cacheMode := CacheMode(os.Getenv("CACHE_MODE"))
	switch cacheMode {
	case "":
		cacheMode = CacheModeMemory
	case CacheModeMemory, CacheModeWrite:
	default:
		return nil, fmt.Errorf("CACHE_MODE must be %q or %q, got %q", CacheModeMemory, CacheModeWrite, cacheMode)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		PGURL:        pgURL,
		UserAgent:    userAgent,
		EdgarBaseURL: baseURL,
		CacheDir:     cacheDir,
		CacheMode:    cacheMode,
		Port:         port,
	}, nil
}
