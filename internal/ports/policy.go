package ports

import "time"

const (
	FailureSkip  = "skip"
	FailureFatal = "fatal"
)

type Policy struct {
	Interval       time.Duration `yaml:"interval"`
	FailurePolicy  string        `yaml:"failure_policy"` // "skip", "fatal"
	IDStrategy     string        `yaml:"id_strategy"`    // "content", "random"
	ProgressEvery  int           `yaml:"progress_every"`
	Retry          RetryPolicy   `yaml:"retry"`
	ReplayAttempts int           `yaml:"replay_attempts"` // cycles before a spilled record is dead-lettered
}

type RetryPolicy struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}
