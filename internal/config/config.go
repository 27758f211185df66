package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	StoreBackend string // "redis" | "memory"

	// Catalog
	CatalogFile           string        // path to catalog.yaml (optional, empty = defaults or redis cache)
	CatalogReloadInterval time.Duration // interval to reload catalog.yaml (default: 1h)

	// Live views
	ViewIdleTimeout    time.Duration // close views without a stream after this long
	ViewReapInterval   time.Duration // interval to run the view reaper
	MaxViewsPerUser    int           // 0 = unlimited
	OptimisticRollback bool          // false => failed writes wait for the next snapshot
	WriteTimeout       time.Duration // timeout of one remote write started by a view
	SSEHeartbeat       time.Duration // keep-alive comment interval on view streams

	// Accounts
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration

	// Image upload (Cloudinary-compatible, optional)
	UploadURL      string
	UploadPreset   string
	UploadTimeout  time.Duration
	MaxUploadBytes int64

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

	AllowedCIDRS  []string // optional, restrict ops endpoints to specific IPs/CIDRs
	TrustProxy    bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	AuthRateLimit float64  // requests per second per IP on auth routes
	AuthRateBurst int
	CORSOrigins   []string // allowed browser origins, empty = same-origin only
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("UNILEND_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("UNILEND_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("UNILEND_LOG_LEVEL", "info"),
		PrettyLog: mustBool("UNILEND_PRETTY_LOG", true),

		StoreBackend: strings.ToLower(getenv("UNILEND_STORE_BACKEND", BackendRedis)),

		CatalogFile:           getenv("UNILEND_CATALOG_FILE", ""),
		CatalogReloadInterval: mustDuration("UNILEND_CATALOG_RELOAD_INTERVAL", time.Hour),

		ViewIdleTimeout:    mustDuration("UNILEND_VIEW_IDLE_TIMEOUT", 15*time.Minute),
		ViewReapInterval:   mustDuration("UNILEND_VIEW_REAP_INTERVAL", time.Minute),
		MaxViewsPerUser:    getenvInt("UNILEND_MAX_VIEWS_PER_USER", 8),
		OptimisticRollback: mustBool("UNILEND_OPTIMISTIC_ROLLBACK", true),
		WriteTimeout:       mustDuration("UNILEND_WRITE_TIMEOUT", 10*time.Second),
		SSEHeartbeat:       mustDuration("UNILEND_SSE_HEARTBEAT", 25*time.Second),

		SessionTTL:    mustDuration("UNILEND_SESSION_TTL", 7*24*time.Hour),
		ResetTokenTTL: mustDuration("UNILEND_RESET_TOKEN_TTL", time.Hour),

		UploadURL:      getenv("UNILEND_UPLOAD_URL", ""),
		UploadPreset:   getenv("UNILEND_UPLOAD_PRESET", ""),
		UploadTimeout:  mustDuration("UNILEND_UPLOAD_TIMEOUT", 30*time.Second),
		MaxUploadBytes: int64(getenvInt("UNILEND_MAX_UPLOAD_BYTES", 5<<20)),

		// Access restrictions
		AllowedCIDRS:  parseAllowedIPs(getenv("UNILEND_ALLOWED_CIDRS", "")),
		TrustProxy:    mustBool("UNILEND_TRUST_PROXY", true),
		AuthRateLimit: mustFloat("UNILEND_AUTH_RATE_LIMIT", 1),
		AuthRateBurst: getenvInt("UNILEND_AUTH_RATE_BURST", 5),
		CORSOrigins:   splitAndTrim(getenv("UNILEND_CORS_ORIGINS", "")),
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		loadRedis(cfg)
	case BackendMemory:
	default:
		panic(fmt.Sprintf("❌ FATAL: UNILEND_STORE_BACKEND must be %q or %q, got %q", BackendRedis, BackendMemory, cfg.StoreBackend))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		if cfg.UploadPreset != "" {
			cfgCopy.UploadPreset = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

func loadRedis(cfg *Config) {
	cfg.RedisAddr = requireEnv("UNILEND_REDIS_ADDR")
	cfg.RedisUser = getenv("UNILEND_REDIS_USERNAME", "default")
	cfg.RedisPasswordRequired = mustBool("UNILEND_REDIS_PASSWORD_REQUIRED", true)
	cfg.RedisPassword = getenv("UNILEND_REDIS_PASSWORD", "")
	cfg.RedisDB = requireEnvInt("UNILEND_REDIS_DB")
	cfg.RedisDT = mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.RedisRT = mustDuration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.RedisWT = mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.RedisMaxWait = mustDuration("REDIS_MAX_WAIT", 10*time.Second)
	cfg.RedisPingTimeout = mustDuration("REDIS_PING_TIMEOUT", 5*time.Second)
	cfg.RedisPoolSize = getenvInt("REDIS_POOL_SIZE", 10)
	cfg.RedisConnectTimeout = mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second)
	cfg.RedisRetryInterval = mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second)
	cfg.RedisWarnThreshold = getenvInt("REDIS_WARN_THRESHOLD", 3)

	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: UNILEND_REDIS_PASSWORD is required when UNILEND_REDIS_PASSWORD_REQUIRED=true")
	}
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

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
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

func mustFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
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

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
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
