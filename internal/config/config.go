// Package config loads the service configuration from a YAML file, applying
// sensible defaults for everything but the postgres credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

type Config struct {
	Env            string `yaml:"env"`
	ShortKeyLength int    `yaml:"short_key_length"`
	HTTPServer     `yaml:"http_server"`
	Postgres       `yaml:"postgres"`
	Redis          `yaml:"redis"`
	GeoIP          `yaml:"geoip"`
	Tracking       `yaml:"tracking"`
	RateLimit      `yaml:"rate_limit"`
	Admin          `yaml:"admin"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	SwaggerFile    string        `yaml:"swagger_file"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
	SwaggerFile:    "./docs/swagger.yml",
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

// Redis configures the optional target cache. The cache is skipped entirely
// unless Enabled is set.
type Redis struct {
	Enabled  bool          `yaml:"enabled"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

var defaultRedis = Redis{
	Host: "localhost",
	Port: 6379,
	TTL:  time.Minute,
}

func (r *Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// GeoIP points at a MaxMind City database. Visits are recorded without
// location data when no path is configured.
type GeoIP struct {
	Path string `yaml:"path"`
}

// Tracking bounds the redirect pipeline: per-operation timeouts and the
// circuit breaker guarding visit appends.
type Tracking struct {
	StorageTimeout          time.Duration `yaml:"storage_timeout"`
	TrackingTimeout         time.Duration `yaml:"tracking_timeout"`
	BreakerFailureThreshold uint32        `yaml:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `yaml:"breaker_open_timeout"`
}

var defaultTracking = Tracking{
	StorageTimeout:          3 * time.Second,
	TrackingTimeout:         2 * time.Second,
	BreakerFailureThreshold: 5,
	BreakerOpenTimeout:      30 * time.Second,
}

// RateLimit caps redirect requests per client IP. Zero requests disables
// limiting.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

var defaultRateLimit = RateLimit{
	Requests: 100,
	Window:   time.Minute,
}

// Admin guards the link management API. An empty key leaves the API open.
type Admin struct {
	APIKey string `yaml:"api_key"`
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.ShortKeyLength = 7
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
	cfg.Tracking = defaultTracking
	cfg.RateLimit = defaultRateLimit
}
