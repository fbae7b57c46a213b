// Package config defines the configuration model for stagehand.
package config

import "time"

// Config defines the full configuration surface for stagehand.
type Config struct {
	Concurrency ConcurrencyConfig `koanf:"concurrency" json:"concurrency"`
	Engine      EngineConfig      `koanf:"engine" json:"engine"`
	Retry       RetryConfig       `koanf:"retry" json:"retry"`
	Commands    CommandsConfig    `koanf:"commands" json:"commands"`
	Workers     WorkersConfig     `koanf:"workers" json:"workers"`
	Deploy      DeployConfig      `koanf:"deploy" json:"deploy"`
	Logging     LoggingConfig     `koanf:"logging" json:"logging"`
}

// ConcurrencyConfig bounds simultaneous task execution.
type ConcurrencyConfig struct {
	MaxParallelTasks int `koanf:"max_parallel_tasks" json:"max_parallel_tasks"`
}

// EngineConfig bounds the orchestration loop itself.
type EngineConfig struct {
	MaxRecursionDepth int `koanf:"max_recursion_depth" json:"max_recursion_depth"`
}

// RetryConfig defines retry ceilings for pipeline stages and individual tasks.
type RetryConfig struct {
	StageMax int `koanf:"stage_max" json:"stage_max"`
	TaskMax  int `koanf:"task_max" json:"task_max"`
}

// CommandsConfig carries project-level validation commands. They are the
// fallback when the repository ships no validation profile.
type CommandsConfig struct {
	Build       []string `koanf:"build" json:"build"`
	Test        []string `koanf:"test" json:"test"`
	Healthcheck string   `koanf:"healthcheck" json:"healthcheck"`
}

// WorkersConfig captures collaborator execution settings. CLI names the
// agent binary seeded into the role file at init time.
type WorkersConfig struct {
	CLI            string `koanf:"cli" json:"cli"`
	TimeoutSeconds int    `koanf:"timeout_seconds" json:"timeout_seconds"`
}

// DeployConfig defines deployment execution settings.
type DeployConfig struct {
	TimeoutSeconds int `koanf:"timeout_seconds" json:"timeout_seconds"`
}

// LoggingConfig selects the log encoding and verbosity.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// Timeout returns the worker timeout as a duration.
func (cfg WorkersConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// Timeout returns the deploy timeout as a duration.
func (cfg DeployConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}
