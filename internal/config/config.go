package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultPortalURL is the landing page of the bill download form.
const DefaultPortalURL = "https://www.calidda.com.pe/atencion-al-cliente/descarga-tu-recibo"

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `json:"server"`
	Redis    RedisConfig    `json:"redis"`
	Log      LogConfig      `json:"log"`
	Security SecurityConfig `json:"security"`
	Browser  BrowserConfig  `json:"browser"`
	Portal   PortalConfig   `json:"portal"`
	Timeouts TimeoutConfig  `json:"timeouts"`
	Debug    DebugConfig    `json:"debug"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int    `json:"port"`
	Environment  string `json:"environment"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"-"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	APIKey string `json:"-"`
	// AllowedOrigin, when set, must prefix the request's Origin or Referer.
	AllowedOrigin string          `json:"allowed_origin"`
	RateLimit     RateLimitConfig `json:"rate_limit"`
	CORS          CORSConfig      `json:"cors"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute"`
	BurstSize         int           `json:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// BrowserConfig holds browser automation configuration
type BrowserConfig struct {
	Headless     bool   `json:"headless"`
	ExecPath     string `json:"exec_path"`
	UserAgent    string `json:"user_agent"`
	WindowWidth  int    `json:"window_width"`
	WindowHeight int    `json:"window_height"`
	DownloadDir  string `json:"download_dir"`
}

// PortalConfig describes the vendor portal being automated
type PortalConfig struct {
	LandingURL   string `json:"landing_url"`
	ScopeResults bool   `json:"scope_results"`
	CatalogFile  string `json:"catalog_file"`
}

// DebugConfig controls the failure dump side channel
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := fromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadCLI loads configuration for one-shot command line use, where no
// HTTP front door exists and the API key is not needed.
func LoadCLI() (*Config, error) {
	cfg := fromEnv()
	if err := errors.Join(cfg.validateRuntime()...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("PORT", 8080),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 330),
			IdleTimeout:  getEnvAsInt("IDLE_TIMEOUT", 60),
			MaxBodyBytes: int64(getEnvAsInt("MAX_BODY_BYTES", 1<<20)),
		},
		Redis: RedisConfig{
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "recibo"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			APIKey:        getEnv("API_KEY", ""),
			AllowedOrigin: getEnv("ORIGIN_ALLOW", ""),
			RateLimit: RateLimitConfig{
				RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 30),
				BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 5),
				CleanupInterval:   getEnvAsDuration("RATE_LIMIT_CLEANUP", time.Minute),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-API-Key", "X-Request-ID"},
				AllowCredentials: false,
			},
		},
		Browser: BrowserConfig{
			Headless:     getEnvAsBool("BROWSER_HEADLESS", true),
			ExecPath:     getEnv("CHROME_PATH", ""),
			UserAgent:    getEnv("BROWSER_USER_AGENT", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"),
			WindowWidth:  getEnvAsInt("BROWSER_WINDOW_WIDTH", 1366),
			WindowHeight: getEnvAsInt("BROWSER_WINDOW_HEIGHT", 900),
			DownloadDir:  getEnv("BROWSER_DOWNLOAD_DIR", os.TempDir()),
		},
		Portal: PortalConfig{
			LandingURL:   getEnv("PORTAL_URL", DefaultPortalURL),
			ScopeResults: getEnvAsBool("PORTAL_SCOPE_RESULTS", true),
			CatalogFile:  getEnv("PORTAL_CATALOG_FILE", ""),
		},
		Timeouts: LoadTimeoutConfig(),
		Debug: DebugConfig{
			Enabled: getEnvAsBool("DEBUG", false),
			Dir:     getEnv("DEBUG_DIR", os.TempDir()),
		},
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Security.APIKey == "" {
		errs = append(errs, fmt.Errorf("API_KEY is required"))
	}
	errs = append(errs, c.validateRuntime()...)
	return errors.Join(errs...)
}

func (c *Config) validateRuntime() []error {
	var errs []error
	if c.Portal.LandingURL == "" {
		errs = append(errs, fmt.Errorf("PORTAL_URL must not be empty"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Server.Port))
	}
	errs = append(errs, c.Timeouts.validate()...)
	return errs
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s", "2m") or bare seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
