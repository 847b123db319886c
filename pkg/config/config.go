package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/apistore/pkg/middleware"
	"github.com/platinummonkey/apistore/pkg/observability"
	"github.com/platinummonkey/apistore/pkg/rbac"
	"github.com/platinummonkey/apistore/pkg/search"
	"github.com/platinummonkey/apistore/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Search        SearchConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// TrustRoleHeader takes caller roles from X-Roles. Enable only when the
	// gateway in front of the store overwrites that header.
	TrustRoleHeader bool

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	Driver         string // postgres or sqlite3
	URL            string
	ReplicaURLs    []string
	MaxConns       int
	MinConns       int
	Timeout        time.Duration
	MaxLifetime    time.Duration
	MaxIdleTime    time.Duration
	HealthInterval time.Duration
	InitSchema     bool
}

// CacheConfig holds role cache configuration. Redis is used only when RedisURL is set.
type CacheConfig struct {
	RoleCacheSize   int
	RoleCacheTTL    time.Duration
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// SearchConfig holds search settings. It may also be read from the YAML file
// named by APISTORE_CONFIG_FILE; environment variables win over the file.
type SearchConfig struct {
	DefaultAPIType string            `yaml:"default_api_type"`
	MaxLimit       int               `yaml:"max_limit"`
	ExtraColumns   map[string]string `yaml:"extra_columns"`
}

// RateLimitConfig holds per-caller rate limits for the search API. Limits are
// shared through Redis when a Redis URL is configured.
type RateLimitConfig struct {
	Enabled           bool
	UserRequests      int // per window, callers with X-User
	AnonymousRequests int // per window, keyed by client IP
	Window            time.Duration
	Burst             int // in-process limiter only
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// fileConfig is the layout of the optional YAML file
type fileConfig struct {
	Search   SearchConfig `yaml:"search"`
	Database struct {
		ReplicaURLs []string `yaml:"replica_urls"`
	} `yaml:"database"`
}

// LoadConfig loads configuration from the environment and the optional YAML file
func LoadConfig() (*Config, error) {
	searchDefaults := SearchConfig{
		DefaultAPIType: string(search.APITypeStandard),
		MaxLimit:       search.DefaultMaxLimit,
	}
	var fileReplicas []string
	if path := getEnv("APISTORE_CONFIG_FILE", ""); path != "" {
		file, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		searchDefaults = mergeSearch(searchDefaults, file.Search)
		fileReplicas = file.Database.ReplicaURLs
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Cache:         loadCacheConfig(),
		Search:        loadSearchConfig(searchDefaults),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}
	if len(cfg.Database.ReplicaURLs) == 0 {
		cfg.Database.ReplicaURLs = fileReplicas
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ReplicaURLs re-reads the replica list for a running process: the
// APISTORE_DB_REPLICA_URLS variable when set, otherwise the config file
func ReplicaURLs() ([]string, error) {
	if urls := storage.ParseReplicaURLs(getEnv("APISTORE_DB_REPLICA_URLS", "")); len(urls) > 0 {
		return urls, nil
	}
	path := getEnv("APISTORE_CONFIG_FILE", "")
	if path == "" {
		return nil, nil
	}
	file, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return file.Database.ReplicaURLs, nil
}

// loadFile reads the YAML configuration file
func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &file, nil
}

// mergeSearch overlays the non-zero fields of override onto base
func mergeSearch(base, override SearchConfig) SearchConfig {
	if override.DefaultAPIType != "" {
		base.DefaultAPIType = override.DefaultAPIType
	}
	if override.MaxLimit != 0 {
		base.MaxLimit = override.MaxLimit
	}
	if len(override.ExtraColumns) > 0 {
		base.ExtraColumns = override.ExtraColumns
	}
	return base
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("APISTORE_HOST", "0.0.0.0"),
		Port:            getEnv("APISTORE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("APISTORE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("APISTORE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("APISTORE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("APISTORE_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getEnvList("APISTORE_CORS_ORIGINS"),
		TrustRoleHeader: getEnvBool("APISTORE_TRUST_ROLE_HEADER", false),
		HealthPort:      getEnv("APISTORE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:         getEnv("APISTORE_DB_DRIVER", "postgres"),
		URL:            getEnv("APISTORE_DB_URL", ""),
		ReplicaURLs:    storage.ParseReplicaURLs(getEnv("APISTORE_DB_REPLICA_URLS", "")),
		MaxConns:       getEnvInt("APISTORE_DB_MAX_CONNS", 25),
		MinConns:       getEnvInt("APISTORE_DB_MIN_CONNS", 5),
		Timeout:        getEnvDuration("APISTORE_DB_TIMEOUT", 5*time.Second),
		MaxLifetime:    getEnvDuration("APISTORE_DB_MAX_LIFETIME", time.Hour),
		MaxIdleTime:    getEnvDuration("APISTORE_DB_MAX_IDLE_TIME", 10*time.Minute),
		HealthInterval: getEnvDuration("APISTORE_DB_HEALTH_INTERVAL", 30*time.Second),
		InitSchema:     getEnvBool("APISTORE_DB_INIT_SCHEMA", false),
	}
}

func loadCacheConfig() CacheConfig {
	defaults := rbac.DefaultCacheConfig()
	return CacheConfig{
		RoleCacheSize:   getEnvInt("APISTORE_ROLE_CACHE_SIZE", defaults.Size),
		RoleCacheTTL:    getEnvDuration("APISTORE_ROLE_CACHE_TTL", defaults.TTL),
		RedisURL:        getEnv("APISTORE_REDIS_URL", ""),
		RedisPassword:   getEnv("APISTORE_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("APISTORE_REDIS_DB", 0),
		RedisMaxRetries: getEnvInt("APISTORE_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:   getEnvInt("APISTORE_REDIS_POOL_SIZE", 10),
	}
}

func loadSearchConfig(defaults SearchConfig) SearchConfig {
	return SearchConfig{
		DefaultAPIType: strings.ToUpper(getEnv("APISTORE_SEARCH_DEFAULT_API_TYPE", defaults.DefaultAPIType)),
		MaxLimit:       getEnvInt("APISTORE_SEARCH_MAX_LIMIT", defaults.MaxLimit),
		ExtraColumns:   defaults.ExtraColumns,
	}
}

func loadRateLimitConfig() RateLimitConfig {
	user := middleware.PerUserRateLimitConfig()
	anonymous := middleware.DefaultRateLimitConfig()
	return RateLimitConfig{
		Enabled:           getEnvBool("APISTORE_RATE_LIMIT_ENABLED", false),
		UserRequests:      getEnvInt("APISTORE_RATE_LIMIT_USER_REQUESTS", user.RequestsPerWindow),
		AnonymousRequests: getEnvInt("APISTORE_RATE_LIMIT_ANONYMOUS_REQUESTS", anonymous.RequestsPerWindow),
		Window:            getEnvDuration("APISTORE_RATE_LIMIT_WINDOW", time.Minute),
		Burst:             getEnvInt("APISTORE_RATE_LIMIT_BURST", anonymous.BurstSize),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	level, err := observability.ParseLogLevel(getEnv("APISTORE_LOG_LEVEL", "info"))
	if err != nil {
		level = observability.InfoLevel
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("APISTORE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("APISTORE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("APISTORE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("APISTORE_OTEL_SERVICE_NAME", "apistore"),
		OTelServiceVersion: getEnv("APISTORE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("APISTORE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("APISTORE_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if err := c.Database.ConnectionConfig().Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Cache.RoleCacheSize <= 0 {
		return fmt.Errorf("role cache size must be positive")
	}
	if c.Cache.RoleCacheTTL <= 0 {
		return fmt.Errorf("role cache TTL must be positive")
	}

	if err := search.APIType(c.Search.DefaultAPIType).Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if c.Search.MaxLimit <= 0 {
		return fmt.Errorf("search max limit must be positive")
	}
	if _, err := search.NewKeyResolver(c.Search.ExtraColumns); err != nil {
		return fmt.Errorf("search extra columns: %w", err)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.UserRequests <= 0 || c.RateLimit.AnonymousRequests <= 0 {
			return fmt.Errorf("rate limits must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// ConnectionConfig converts the database section for the connection manager
func (d DatabaseConfig) ConnectionConfig() storage.ConnectionConfig {
	return storage.ConnectionConfig{
		Driver:      d.Driver,
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
		MaxIdleTime: d.MaxIdleTime,
	}
}

// RedisConfig converts the cache section for the Redis client
func (c CacheConfig) RedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        c.RedisURL,
		Password:   c.RedisPassword,
		DB:         c.RedisDB,
		MaxRetries: c.RedisMaxRetries,
		PoolSize:   c.RedisPoolSize,
	}
}

// RoleCacheConfig converts the cache section for the role resolver
func (c CacheConfig) RoleCacheConfig() rbac.CacheConfig {
	return rbac.CacheConfig{Size: c.RoleCacheSize, TTL: c.RoleCacheTTL}
}

// ServiceConfig converts the search section for a dialect
func (s SearchConfig) ServiceConfig(d search.Dialect) search.Config {
	return search.Config{
		Dialect:        d,
		DefaultAPIType: search.APIType(s.DefaultAPIType),
		MaxLimit:       s.MaxLimit,
		ExtraColumns:   s.ExtraColumns,
	}
}

// UserLimits returns the limiter configuration for identified callers
func (r RateLimitConfig) UserLimits() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{RequestsPerWindow: r.UserRequests, WindowDuration: r.Window, BurstSize: r.Burst}
}

// AnonymousLimits returns the limiter configuration for anonymous callers
func (r RateLimitConfig) AnonymousLimits() *middleware.RateLimitConfig {
	return &middleware.RateLimitConfig{RequestsPerWindow: r.AnonymousRequests, WindowDuration: r.Window, BurstSize: r.Burst}
}

// OTelConfig converts the observability section for InitOTel
func (o ObservabilityConfig) OTelConfig() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a list
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
