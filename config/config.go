package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Debug              bool
	LogToLoki          bool
	LokiAddress        string
	ListenAddr         string
	WebPassword        string
	SqliteDbPath       string
	SessionCacheSize   int
	FilterCacheSize    int
	DelugeUrl          string
	DelugePassword     string
	SkipVerifyTLS      bool
	RequestMaxRetries  int
	RequestInitBackoff time.Duration
	PanelWatchUpdates  bool
	WsKeepalivePeriod  time.Duration
}

func Load() *Config {
	debug, _ := strconv.ParseBool(getEnv("DEBUG", "false"))
	logToLoki, _ := strconv.ParseBool(getEnv("LOG_TO_LOKI", "false"))
	skipVerify, _ := strconv.ParseBool(getEnv("DELUGE_SKIP_VERIFY_TLS", "false"))
	watchUpdates, _ := strconv.ParseBool(getEnv("PANEL_WATCH_UPDATES", "true"))

	cfg := &Config{
		Debug:              debug,
		LogToLoki:          logToLoki,
		LokiAddress:        getEnv("LOKI_ADDRESS", "http://127.0.0.1:3100"),
		ListenAddr:         getEnv("LISTEN_ADDR", ":8112"),
		WebPassword:        getEnv("WEB_PASSWORD", "deluge"),
		SqliteDbPath:       getEnv("SQLITE_DB_PATH", "/data/peerbanhelper_adapter.db"),
		SessionCacheSize:   getEnvInt("SESSION_CACHE_SIZE", 100),
		FilterCacheSize:    getEnvInt("FILTER_CACHE_SIZE", 1000),
		DelugeUrl:          getEnv("DELUGE_URL", "http://127.0.0.1:8112"),
		DelugePassword:     getEnv("DELUGE_PASSWORD", "deluge"),
		SkipVerifyTLS:      skipVerify,
		RequestMaxRetries:  getEnvInt("REQUEST_MAX_RETRIES", 3),
		RequestInitBackoff: getEnvDuration("REQUEST_INIT_BACKOFF", time.Second),
		PanelWatchUpdates:  watchUpdates,
		WsKeepalivePeriod:  30 * time.Second,
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Error converting '%s' to int, using default %d: %v", key, defaultValue, err)
		return defaultValue
	}
	return valueInt
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	d, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Error converting '%s' to duration, using default %s: %v", key, defaultValue, err)
		return defaultValue
	}
	return d
}

// Redacted returns a copy safe to log.
func (c *Config) Redacted() Config {
	out := *c
	if out.WebPassword != "" {
		out.WebPassword = "***"
	}
	if out.DelugePassword != "" {
		out.DelugePassword = "***"
	}
	return out
}
