package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// DataDir holds the secret key file and per-partition browser
	// profiles.
	DataDir string

	// Browser
	ChromeExecPath string // path to Chrome/Chromium binary, empty = auto-detect
	ChromeHeadless bool   // false => captures run in visible windows (debug)
	WindowWidth    int    // emulated viewport width
	WindowHeight   int    // emulated viewport height

	// Capture timing
	CaptureSettleDelay   time.Duration // post-ready settle before probing selectors
	CapturePassTimeout   time.Duration // ceiling for one whole capture pass
	CaptureReadyCeiling  time.Duration // ceiling for each DOM-ready wait
	CaptureKeystrokeWait time.Duration // pause between simulated keystrokes

	SeedFile       string        // path to widgets.yaml (optional, empty = disabled)
	ReloadInterval time.Duration // interval to reload the seed file (default: 24h)
	GCInterval     time.Duration // interval to collect orphaned partitions (default: 24h)

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

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)

	PickerRateBurst     int // picker session starts allowed in a burst, per IP
	PickerRatePerMinute int // sustained picker session starts per minute, per IP
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PEEKDECK_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("PEEKDECK_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("PEEKDECK_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PEEKDECK_PRETTY_LOG", true),

		// Storage
		DataDir: getenv("PEEKDECK_DATA_DIR", "/var/lib/peekdeck"),

		// Browser
		ChromeExecPath: getenv("PEEKDECK_CHROME_PATH", ""),
		ChromeHeadless: mustBool("PEEKDECK_CHROME_HEADLESS", true),
		WindowWidth:    getenvInt("PEEKDECK_WINDOW_WIDTH", 1280),
		WindowHeight:   getenvInt("PEEKDECK_WINDOW_HEIGHT", 900),

		// Capture timing
		CaptureSettleDelay:   mustDuration("PEEKDECK_CAPTURE_SETTLE_DELAY", 1500*time.Millisecond),
		CapturePassTimeout:   mustDuration("PEEKDECK_CAPTURE_PASS_TIMEOUT", 45*time.Second),
		CaptureReadyCeiling:  mustDuration("PEEKDECK_CAPTURE_READY_CEILING", 4*time.Second),
		CaptureKeystrokeWait: mustDuration("PEEKDECK_CAPTURE_KEYSTROKE_WAIT", 30*time.Millisecond),

		// Seed file
		SeedFile:       getenv("PEEKDECK_SEED_FILE", ""), // Optional, empty = seed file disabled
		ReloadInterval: mustDuration("PEEKDECK_RELOAD_INTERVAL", 24*time.Hour),
		GCInterval:     mustDuration("PEEKDECK_GC_INTERVAL", 24*time.Hour),

		// Redis settings
		RedisAddr:             requireEnv("PEEKDECK_REDIS_ADDR"),
		RedisUser:             getenv("PEEKDECK_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("PEEKDECK_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("PEEKDECK_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("PEEKDECK_REDIS_DB", 0),
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
		AllowedHosts: parseList(getenv("PEEKDECK_ALLOWED_HOSTS", "")),
		AllowedCIDRS: parseList(getenv("PEEKDECK_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("PEEKDECK_TRUST_PROXY", false),

		// Picker rate limits
		PickerRateBurst:     getenvInt("PEEKDECK_PICKER_RATE_BURST", 3),
		PickerRatePerMinute: getenvInt("PEEKDECK_PICKER_RATE_PER_MINUTE", 6),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: PEEKDECK_REDIS_PASSWORD is required when PEEKDECK_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
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
