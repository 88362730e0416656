package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/brct-james/titans-insider/internal/app/pipeline"
	"github.com/brct-james/titans-insider/internal/app/rules"
	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const (
	BackendPostgres = "postgres"
	BackendPgx      = "pgx"
	BackendSQLite   = "sqlite"
	BackendMySQL    = "mysql"

	UpstreamHTTP = "http"
	UpstreamFile = "file"
)

// Files read into the process environment before the env overlay. Existing
// variables win over file values.
var dotEnvFiles = []string{".env", "postgres_secrets.env"}

type Config struct {
	Sniffer  ports.Policy          `yaml:"sniffer"`
	Upstream UpstreamConfig        `yaml:"upstream"`
	Store    StoreConfig           `yaml:"store"`
	Filters  []pipeline.FilterRule `yaml:"filters"`
	Rules    RulesConfig           `yaml:"rules"`
	Metrics  MetricsConfig         `yaml:"metrics"`
	WAL      WALConfig             `yaml:"wal"`
	Lock     LockConfig            `yaml:"lock"`
	Log      LogConfig             `yaml:"log"`

	Postgres PostgresEnv `yaml:"-"`
	MySQL    MySQLEnv    `yaml:"-"`
}

type UpstreamConfig struct {
	Type      string        `yaml:"type"`
	BaseURL   string        `yaml:"base_url"`
	Path      string        `yaml:"path"`
	File      string        `yaml:"file"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type StoreConfig struct {
	Backend      string `yaml:"backend"`
	Table        string `yaml:"table"`
	SQLitePath   string `yaml:"sqlite_path"`
	MaxConns     int    `yaml:"max_conns"`
	EnsureSchema *bool  `yaml:"ensure_schema"`
	ViaBouncer   bool   `yaml:"via_bouncer"` // pgx only: simple protocol for transaction poolers
}

// ShouldEnsureSchema reports whether the table is created at startup. Unset means yes.
func (s StoreConfig) ShouldEnsureSchema() bool {
	return s.EnsureSchema == nil || *s.EnsureSchema
}

type RulesConfig struct {
	Pattern   string `yaml:"pattern"`
	DropStale bool   `yaml:"drop_stale"` // filter records by seconds_till_stale
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// WALConfig enables the spill log when Dir is set.
type WALConfig struct {
	Dir string `yaml:"dir"`
}

// LockConfig enables the cross-replica cycle lease when RedisAddr is set.
type LockConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type PostgresEnv struct {
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT"`
	DB       string `envconfig:"POSTGRES_DB"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

type MySQLEnv struct {
	User     string `envconfig:"MYSQL_USER"`
	Password string `envconfig:"MYSQL_PASSWORD"`
	Host     string `envconfig:"MYSQL_HOST" default:"localhost"`
	Port     int    `envconfig:"MYSQL_PORT" default:"3306"`
	DB       string `envconfig:"MYSQL_DB"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Load reads the YAML file at path (skipped when path is empty), overlays the
// environment, applies defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, &domain.ConfigError{Field: path, Err: err}
		}
	}

	for _, f := range dotEnvFiles {
		_ = godotenv.Load(f)
	}
	if err := envconfig.Process("", &cfg.Postgres); err != nil {
		return nil, &domain.ConfigError{Field: "env", Err: err}
	}
	if err := envconfig.Process("", &cfg.MySQL); err != nil {
		return nil, &domain.ConfigError{Field: "env", Err: err}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sniffer.Interval == 0 {
		c.Sniffer.Interval = pipeline.DefaultInterval
	}
	if c.Sniffer.FailurePolicy == "" {
		c.Sniffer.FailurePolicy = ports.FailureSkip
	}
	if c.Sniffer.IDStrategy == "" {
		c.Sniffer.IDStrategy = pipeline.IDStrategyContent
	}
	if c.Sniffer.ProgressEvery == 0 {
		c.Sniffer.ProgressEvery = 500
	}
	if c.Sniffer.Retry.MaxAttempts == 0 {
		c.Sniffer.Retry.MaxAttempts = 3
	}
	if c.Sniffer.ReplayAttempts == 0 {
		c.Sniffer.ReplayAttempts = pipeline.DefaultReplayAttempts
	}
	if c.Sniffer.Retry.InitialInterval == 0 {
		c.Sniffer.Retry.InitialInterval = time.Second
	}
	if c.Sniffer.Retry.MaxInterval == 0 {
		c.Sniffer.Retry.MaxInterval = 10 * time.Second
	}

	if c.Upstream.Type == "" {
		c.Upstream.Type = UpstreamHTTP
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://smartytitans.com"
	}
	if c.Upstream.Path == "" {
		c.Upstream.Path = "/api/item/last/all"
	}
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = 20 * time.Second
	}
	if c.Upstream.UserAgent == "" {
		c.Upstream.UserAgent = "titans-insider/1.0"
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendPostgres
	}
	if c.Store.Table == "" {
		c.Store.Table = "item_hist"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "./data/item_hist.db"
	}
	if c.Store.MaxConns == 0 {
		c.Store.MaxConns = 4
	}

	if c.Filters == nil {
		c.Filters = pipeline.DefaultFilterRules()
	}
	if c.Rules.Pattern == "" {
		c.Rules.Pattern = rules.DefaultPattern
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Lock.Key == "" {
		c.Lock.Key = pipeline.DefaultLockKey
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = c.Sniffer.Interval * 9 / 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) validate() error {
	if c.Sniffer.Interval < 0 {
		return &domain.ConfigError{Field: "sniffer.interval", Err: errors.New("must be positive")}
	}
	switch c.Sniffer.FailurePolicy {
	case ports.FailureSkip, ports.FailureFatal:
	default:
		return &domain.ConfigError{Field: "sniffer.failure_policy", Err: fmt.Errorf("unknown policy %q", c.Sniffer.FailurePolicy)}
	}
	if _, err := pipeline.NewIDGenerator(c.Sniffer.IDStrategy); err != nil {
		return err
	}
	if _, err := pipeline.NewDeduplicatorFromRules(c.Filters); err != nil {
		return err
	}

	switch c.Upstream.Type {
	case UpstreamHTTP:
		if _, err := url.ParseRequestURI(c.Upstream.BaseURL + c.Upstream.Path); err != nil {
			return &domain.ConfigError{Field: "upstream.base_url", Err: err}
		}
	case UpstreamFile:
		if c.Upstream.File == "" {
			return &domain.ConfigError{Field: "upstream.file", Err: errors.New("required for file upstream")}
		}
	default:
		return &domain.ConfigError{Field: "upstream.type", Err: fmt.Errorf("unknown upstream %q", c.Upstream.Type)}
	}

	if !identRe.MatchString(c.Store.Table) {
		return &domain.ConfigError{Field: "store.table", Err: fmt.Errorf("invalid table name %q", c.Store.Table)}
	}
	switch c.Store.Backend {
	case BackendPostgres, BackendPgx:
		if err := requireEnv(map[string]bool{
			"POSTGRES_USER":     c.Postgres.User != "",
			"POSTGRES_PASSWORD": c.Postgres.Password != "",
			"POSTGRES_PORT":     c.Postgres.Port != 0,
			"POSTGRES_DB":       c.Postgres.DB != "",
		}); err != nil {
			return err
		}
	case BackendMySQL:
		if err := requireEnv(map[string]bool{
			"MYSQL_USER":     c.MySQL.User != "",
			"MYSQL_PASSWORD": c.MySQL.Password != "",
			"MYSQL_DB":       c.MySQL.DB != "",
		}); err != nil {
			return err
		}
	case BackendSQLite:
	default:
		return &domain.ConfigError{Field: "store.backend", Err: fmt.Errorf("unknown backend %q", c.Store.Backend)}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "log.level", Err: fmt.Errorf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return &domain.ConfigError{Field: "log.format", Err: fmt.Errorf("unknown format %q", c.Log.Format)}
	}
	return nil
}

func requireEnv(present map[string]bool) error {
	// fixed order so the reported variable is stable
	for _, name := range []string{
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_PORT", "POSTGRES_DB",
		"MYSQL_USER", "MYSQL_PASSWORD", "MYSQL_DB",
	} {
		if ok, checked := present[name]; checked && !ok {
			return &domain.ConfigError{Field: name, Err: errors.New("environment variable is required")}
		}
	}
	return nil
}

// PostgresDSN builds a URL connection string accepted by both lib/pq and pgx.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.DB,
		RawQuery: url.Values{"sslmode": {c.Postgres.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c *Config) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.MySQL.User
	mc.Passwd = c.MySQL.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.MySQL.Host, strconv.Itoa(c.MySQL.Port))
	mc.DBName = c.MySQL.DB
	mc.ParseTime = true
	return mc.FormatDSN()
}
