package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	TokenSecret string // HMAC secret for connection tokens

	SessionTTL     time.Duration // sessions older than this are swept (default: 24h)
	SweepInterval  time.Duration // interval between session sweeps (default: 1h)
	SessionFlush   time.Duration // interval between coalesced session row writes (default: 30s)
	CursorThrottle time.Duration // min gap between cursor broadcasts per user (default: 50ms)
	TrailCap       int           // cursor trail buffer cap, 0 => engine default (20)
	TrailBatch     int           // trail length that emits a trail event, 0 => engine default (10)
	PathCap        int           // mouse path length triggering truncation, 0 => engine default (1000)
	PathKeep       int           // positions kept after truncation, 0 => engine default (500)
	SendBuffer     int           // per-connection outbound frame buffer (default: 64)

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts

	AllowedOrigins []string // optional, restrict websocket upgrades to specific Origin headers
	AllowedHosts   []string // optional, restrict access to specific Host headers
	AllowedCIDRS   []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy     bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

// fileOverlay mirrors the optional yaml config file. Values set in the file
// act as defaults; environment variables always win.
type fileOverlay struct {
	ListenPort     string   `yaml:"listen_port"`
	LogLevel       string   `yaml:"log_level"`
	RedisAddr      string   `yaml:"redis_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedHosts   []string `yaml:"allowed_hosts"`
}

func Load() *Config {
	overlay := loadOverlay(getenv("COPRESENCE_CONFIG_FILE", ""))

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("COPRESENCE_LISTEN_PORT", withDefault(overlay.ListenPort, ":8080")),
		ShutdownTimeout: mustDuration("COPRESENCE_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("COPRESENCE_LOG_LEVEL", withDefault(overlay.LogLevel, "info")),
		PrettyLog: mustBool("COPRESENCE_PRETTY_LOG", true),

		// Collaboration settings
		TokenSecret:    requireEnv("COPRESENCE_TOKEN_SECRET"),
		SessionTTL:     mustDuration("COPRESENCE_SESSION_TTL", 24*time.Hour),
		SweepInterval:  mustDuration("COPRESENCE_SWEEP_INTERVAL", time.Hour),
		SessionFlush:   mustDuration("COPRESENCE_SESSION_FLUSH", 30*time.Second),
		CursorThrottle: mustDuration("COPRESENCE_CURSOR_THROTTLE", 50*time.Millisecond),
		TrailCap:       getenvInt("COPRESENCE_TRAIL_CAP", 0),
		TrailBatch:     getenvInt("COPRESENCE_TRAIL_BATCH", 0),
		PathCap:        getenvInt("COPRESENCE_PATH_CAP", 0),
		PathKeep:       getenvInt("COPRESENCE_PATH_KEEP", 0),
		SendBuffer:     getenvInt("COPRESENCE_SEND_BUFFER", 64),

		// Redis settings
		RedisAddr:             getenv("COPRESENCE_REDIS_ADDR", withDefault(overlay.RedisAddr, "")),
		RedisUser:             getenv("COPRESENCE_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("COPRESENCE_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("COPRESENCE_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("COPRESENCE_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedOrigins: mergeSlices(overlay.AllowedOrigins, parseList(getenv("COPRESENCE_ALLOWED_ORIGINS", ""))),
		AllowedHosts:   mergeSlices(overlay.AllowedHosts, parseList(getenv("COPRESENCE_ALLOWED_HOSTS", ""))),
		AllowedCIDRS:   parseList(getenv("COPRESENCE_ALLOWED_CIDRS", "")),
		TrustProxy:     mustBool("COPRESENCE_TRUST_PROXY", true),
	}

	if cfg.RedisAddr == "" {
		panic("❌ FATAL: COPRESENCE_REDIS_ADDR is not set (env or config file)")
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: COPRESENCE_REDIS_PASSWORD is required when COPRESENCE_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.TokenSecret = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func loadOverlay(path string) fileOverlay {
	var o fileOverlay
	if path == "" {
		return o
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Cannot read config file %s: %v", path, err))
	}
	if err := yaml.Unmarshal(raw, &o); err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid config file %s: %v", path, err))
	}
	return o
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func withDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// mergeSlices prefers the env value over the file value.
func mergeSlices(fromFile, fromEnv []string) []string {
	if len(fromEnv) > 0 {
		return fromEnv
	}
	return fromFile
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
