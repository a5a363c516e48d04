package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/continuum-app/continuum-cli/apiclient"
)

// Token store kinds.
const (
	storeFile   = "file"
	storeMemory = "memory"
	storeRedis  = "redis"
)

const (
	defaultServerURL = "http://localhost:5000/api"
	defaultTokenFile = ".continuum-tokens.json"
	defaultRedisURL  = "redis://localhost:6379/0"
	defaultTokenTTL  = 7 * 24 * time.Hour
)

// flagValues holds the raw persistent flags. Empty means "not given".
type flagValues struct {
	serverURL  string
	tokenStore string
	tokenFile  string
	redisURL   string
	timeout    string
	debug      bool
}

// Config is the resolved configuration of one invocation.
type Config struct {
	ServerURL  string
	TokenStore string
	TokenFile  string
	RedisURL   string
	TokenTTL   time.Duration
	Timeout    time.Duration
	Debug      bool
}

// loadConfig resolves f against the environment. Warnings go to warn.
func loadConfig(f flagValues, warn io.Writer) (*Config, error) {
	cfg := &Config{
		// Priority: flag > env > default
		ServerURL:  getConfig(f.serverURL, "SERVER_URL", defaultServerURL),
		TokenStore: strings.ToLower(getConfig(f.tokenStore, "TOKEN_STORE", storeFile)),
		TokenFile:  getConfig(f.tokenFile, "TOKEN_FILE", defaultTokenFile),
		RedisURL:   getConfig(f.redisURL, "REDIS_URL", defaultRedisURL),
		Debug:      f.debug || envBool("CONTINUUM_DEBUG"),
	}

	if err := validateServerURL(cfg.ServerURL); err != nil {
		return nil, fmt.Errorf("invalid SERVER_URL: %w", err)
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	switch cfg.TokenStore {
	case storeFile, storeMemory, storeRedis:
	default:
		return nil, fmt.Errorf("invalid TOKEN_STORE %q: must be file, memory or redis", cfg.TokenStore)
	}

	timeout, err := parseDuration(getConfig(f.timeout, "REQUEST_TIMEOUT", ""), apiclient.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}
	cfg.Timeout = timeout

	ttl, err := parseDuration(getEnv("TOKEN_TTL", ""), defaultTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	// Warn if using HTTP instead of HTTPS
	if strings.HasPrefix(strings.ToLower(cfg.ServerURL), "http://") && !isLoopback(cfg.ServerURL) {
		fmt.Fprintln(
			warn,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(warn)
	}

	return cfg, nil
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envBool treats any value other than "", "0" and "false" as true.
func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "", "0", "false":
		return false
	default:
		return true
	}
}

// parseDuration accepts Go durations ("15s") and plain seconds ("15").
func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, errors.New("must be positive")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

func isLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
