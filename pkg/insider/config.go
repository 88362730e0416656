package insider

import (
	"github.com/brct-james/titans-insider/internal/app/config"
	"github.com/brct-james/titans-insider/internal/app/rules"
	"github.com/brct-james/titans-insider/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls the polling interval, retries and failure handling.
	Policy = ports.Policy
	// RetryPolicy bounds per-stage retries.
	RetryPolicy = ports.RetryPolicy
	// UpstreamConfig selects and configures the listing source.
	UpstreamConfig = config.UpstreamConfig
	// StoreConfig selects the history backend.
	StoreConfig = config.StoreConfig
	// RulesConfig points at the rule files.
	RulesConfig = config.RulesConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig enables the spill log.
	WALConfig = config.WALConfig
	// LockConfig enables the cross-replica cycle lease.
	LockConfig = config.LockConfig
	LogConfig  = config.LogConfig
	// PostgresEnv holds connection settings read from POSTGRES_* variables.
	PostgresEnv = config.PostgresEnv
	MySQLEnv    = config.MySQLEnv
)

const (
	BackendPostgres = config.BackendPostgres
	BackendPgx      = config.BackendPgx
	BackendSQLite   = config.BackendSQLite
	BackendMySQL    = config.BackendMySQL

	UpstreamHTTP = config.UpstreamHTTP
	UpstreamFile = config.UpstreamFile

	FailureSkip  = ports.FailureSkip
	FailureFatal = ports.FailureFatal
)

// LoadConfig loads YAML from disk, overlays the environment and validates.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// LoadRules reads every rule file matching pattern without building a runtime.
func LoadRules(pattern string) (RuleSet, error) {
	return rules.Load(pattern)
}
