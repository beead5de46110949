package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Transport schemes accepted in TASKGATE_SERVICES.
const (
	TransportTCP   = "tcp"
	TransportRedis = "redis"
)

// Config holds the gateway configuration loaded from environment variables.
type Config struct {
	Log       LogConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Dispatch  DispatchConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
}

// ServiceConfig holds the backend service configuration.
type ServiceConfig struct {
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	TaskListen string
	UserListen string
	// UseRedis serves requests from the Redis request channels instead of
	// (or in addition to) the TCP listeners.
	UseRedis   bool
	SelfHosted bool
}

// LogConfig holds zerolog settings.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret    string //nolint:gosec // G117: JWT signing secret config
	AccessTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// DispatchConfig holds the backend endpoints and call timeout.
type DispatchConfig struct {
	Timeout  time.Duration
	Services []ServiceEndpoint
}

// ServiceEndpoint is one NAME=scheme://target entry of TASKGATE_SERVICES.
type ServiceEndpoint struct {
	Name      string
	Transport string // TransportTCP or TransportRedis
	Addr      string // host:port, TCP only
}

// RealtimeConfig holds WebSocket edge settings.
type RealtimeConfig struct {
	QueueSize      int
	OriginPatterns []string
}

// RateLimitConfig holds per-user REST limits.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads the gateway configuration from environment variables.
// Defaults are safe for local development only.
func Load() (*Config, error) {
	redis, err := loadRedis()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("TASKGATE_JWT_ACCESS_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TASKGATE_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TASKGATE_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dispatchTimeout, err := getEnvDuration("TASKGATE_DISPATCH_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	services, err := ParseServices(getEnv("TASKGATE_SERVICES",
		"TASK_SERVICE=tcp://localhost:4001,USER_SERVICE=tcp://localhost:4002"))
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	queueSize, err := getEnvInt("TASKGATE_WS_QUEUE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("TASKGATE_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("TASKGATE_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("TASKGATE_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Log:   loadLog(),
		Redis: redis,
		JWT: JWTConfig{
			Secret:    getEnv("TASKGATE_JWT_SECRET", ""),
			AccessTTL: accessTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("TASKGATE_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Dispatch: DispatchConfig{
			Timeout:  dispatchTimeout,
			Services: services,
		},
		Realtime: RealtimeConfig{
			QueueSize:      queueSize,
			OriginPatterns: getEnvList("TASKGATE_WS_ORIGINS", originHosts(corsOrigins)),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// LoadService reads the backend service configuration.
func LoadService() (*ServiceConfig, error) {
	dbPort, err := getEnvInt("TASKGATE_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	dbMaxConns, err := getEnvInt("TASKGATE_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	redis, err := loadRedis()
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	useRedis, err := getEnvBool("TASKGATE_SERVICE_REDIS", false)
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	selfHosted, err := getEnvBool("TASKGATE_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	cfg := &ServiceConfig{
		Log: loadLog(),
		Database: DatabaseConfig{
			Host:     getEnv("TASKGATE_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TASKGATE_DB_USER", "taskgate"),
			Password: getEnv("TASKGATE_DB_PASSWORD", ""),
			DBName:   getEnv("TASKGATE_DB_NAME", "taskgate_dev"),
			SSLMode:  getEnv("TASKGATE_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis:      redis,
		TaskListen: getEnv("TASKGATE_TASK_LISTEN", ":4001"),
		UserListen: getEnv("TASKGATE_USER_LISTEN", ":4002"),
		UseRedis:   useRedis,
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.LoadService: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("TASKGATE_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("TASKGATE_JWT_SECRET must be at least 32 characters")
	}

	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("TASKGATE_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TASKGATE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TASKGATE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("TASKGATE_DISPATCH_TIMEOUT must be positive, got %s", c.Dispatch.Timeout)
	}
	if c.Realtime.QueueSize < 1 {
		return fmt.Errorf("TASKGATE_WS_QUEUE_SIZE must be >= 1, got %d", c.Realtime.QueueSize)
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("TASKGATE_RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("TASKGATE_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimit.Burst)
	}
	if len(c.Dispatch.Services) == 0 {
		return errors.New("TASKGATE_SERVICES must name at least one backend")
	}

	return validateLog(c.Log)
}

func (c *ServiceConfig) validate() error {
	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("TASKGATE_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TASKGATE_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TASKGATE_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if !c.UseRedis && c.TaskListen == "" && c.UserListen == "" {
		return errors.New("no listener configured: set TASKGATE_TASK_LISTEN, TASKGATE_USER_LISTEN or TASKGATE_SERVICE_REDIS")
	}

	return validateLog(c.Log)
}

func validateLog(l LogConfig) error {
	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("TASKGATE_LOG_FORMAT must be json or text, got %q", l.Format)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// ServiceNames returns the configured backend names.
func (d *DispatchConfig) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for _, s := range d.Services {
		names = append(names, s.Name)
	}
	return names
}

// UsesRedis reports whether any backend is reached over Redis.
func (d *DispatchConfig) UsesRedis() bool {
	for _, s := range d.Services {
		if s.Transport == TransportRedis {
			return true
		}
	}
	return false
}

// ParseServices parses "NAME=tcp://host:port,NAME=redis://" entries.
// A redis endpoint carries no target: request and reply channels are
// derived from the service name.
func ParseServices(v string) ([]ServiceEndpoint, error) {
	seen := make(map[string]bool)
	var out []ServiceEndpoint

	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, target, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parsing service %q: want NAME=scheme://target", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("parsing service %q: duplicate name %s", entry, name)
		}

		u, err := url.Parse(strings.TrimSpace(target))
		if err != nil {
			return nil, fmt.Errorf("parsing service %q: %w", entry, err)
		}

		ep := ServiceEndpoint{Name: name, Transport: u.Scheme}
		switch u.Scheme {
		case TransportTCP:
			if _, _, err := net.SplitHostPort(u.Host); err != nil {
				return nil, fmt.Errorf("parsing service %q: %w", entry, err)
			}
			ep.Addr = u.Host
		case TransportRedis:
			if u.Host != "" || (u.Path != "" && u.Path != "/") {
				return nil, fmt.Errorf("parsing service %q: redis endpoints take no target", entry)
			}
		default:
			return nil, fmt.Errorf("parsing service %q: unsupported scheme %q", entry, u.Scheme)
		}

		seen[name] = true
		out = append(out, ep)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func loadLog() LogConfig {
	return LogConfig{
		Level:  getEnv("TASKGATE_LOG_LEVEL", "info"),
		Format: getEnv("TASKGATE_LOG_FORMAT", "json"),
	}
}

func loadRedis() (RedisConfig, error) {
	db, err := getEnvInt("TASKGATE_REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}
	return RedisConfig{
		Addr:     getEnv("TASKGATE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("TASKGATE_REDIS_PASSWORD", ""),
		DB:       db,
	}, nil
}

// originHosts turns CORS origins into coder/websocket origin patterns.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u.Host)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
