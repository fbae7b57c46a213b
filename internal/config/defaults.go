// Package config provides default configuration handling.
package config

import "strings"

const (
	defaultMaxParallelTasks     = 2
	defaultMaxRecursionDepth    = 100
	defaultStageRetryMax        = 3
	defaultTaskRetryMax         = 3
	defaultWorkerCLI            = "claude"
	defaultWorkerTimeoutSeconds = 600
	defaultDeployTimeoutSeconds = 300
	defaultLogLevel             = "info"
	defaultLogFormat            = "console"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// Defaults returns the documented configuration defaults.
//
// Defaults:
// - concurrency.max_parallel_tasks: 2
// - engine.max_recursion_depth: 100
// - retry.stage_max: 3
// - retry.task_max: 3
// - commands.build: [] (falls back to the validation profile)
// - commands.test: [] (falls back to the validation profile)
// - commands.healthcheck: "" (healthcheck skipped)
// - workers.cli: "claude"
// - workers.timeout_seconds: 600
// - deploy.timeout_seconds: 300
// - logging.level: "info"
// - logging.format: "console"
func Defaults() Config {
	return Config{
		Concurrency: ConcurrencyConfig{
			MaxParallelTasks: defaultMaxParallelTasks,
		},
		Engine: EngineConfig{
			MaxRecursionDepth: defaultMaxRecursionDepth,
		},
		Retry: RetryConfig{
			StageMax: defaultStageRetryMax,
			TaskMax:  defaultTaskRetryMax,
		},
		Commands: CommandsConfig{
			Build:       []string{},
			Test:        []string{},
			Healthcheck: "",
		},
		Workers: WorkersConfig{
			CLI:            defaultWorkerCLI,
			TimeoutSeconds: defaultWorkerTimeoutSeconds,
		},
		Deploy: DeployConfig{
			TimeoutSeconds: defaultDeployTimeoutSeconds,
		},
		Logging: LoggingConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// ApplyDefaults fills missing or invalid values with documented defaults.
// Unset values default silently; explicitly invalid values warn first.
func ApplyDefaults(cfg Config, warn func(string)) Config {
	defaults := Defaults()

	cfg.Concurrency.MaxParallelTasks = normalizePositiveInt(
		cfg.Concurrency.MaxParallelTasks,
		defaults.Concurrency.MaxParallelTasks,
		"concurrency.max_parallel_tasks",
		warn,
	)
	cfg.Engine.MaxRecursionDepth = normalizePositiveInt(
		cfg.Engine.MaxRecursionDepth,
		defaults.Engine.MaxRecursionDepth,
		"engine.max_recursion_depth",
		warn,
	)
	cfg.Retry.StageMax = normalizePositiveInt(
		cfg.Retry.StageMax,
		defaults.Retry.StageMax,
		"retry.stage_max",
		warn,
	)
	cfg.Retry.TaskMax = normalizePositiveInt(
		cfg.Retry.TaskMax,
		defaults.Retry.TaskMax,
		"retry.task_max",
		warn,
	)

	cfg.Commands.Build = normalizeCommandList(cfg.Commands.Build, "commands.build", warn)
	cfg.Commands.Test = normalizeCommandList(cfg.Commands.Test, "commands.test", warn)
	cfg.Commands.Healthcheck = strings.TrimSpace(cfg.Commands.Healthcheck)

	cfg.Workers.CLI = normalizeName(cfg.Workers.CLI, defaults.Workers.CLI)
	cfg.Workers.TimeoutSeconds = normalizePositiveInt(
		cfg.Workers.TimeoutSeconds,
		defaults.Workers.TimeoutSeconds,
		"workers.timeout_seconds",
		warn,
	)
	cfg.Deploy.TimeoutSeconds = normalizePositiveInt(
		cfg.Deploy.TimeoutSeconds,
		defaults.Deploy.TimeoutSeconds,
		"deploy.timeout_seconds",
		warn,
	)

	cfg.Logging.Level = normalizeChoice(
		cfg.Logging.Level,
		defaults.Logging.Level,
		"logging.level",
		logLevels,
		warn,
	)
	cfg.Logging.Format = normalizeChoice(
		cfg.Logging.Format,
		defaults.Logging.Format,
		"logging.format",
		logFormats,
		warn,
	)

	return cfg
}

// normalizePositiveInt keeps positive values, silently defaults the zero
// value, and warns before defaulting negative ones.
func normalizePositiveInt(value int, fallback int, key string, warn func(string)) int {
	if value == 0 {
		return fallback
	}
	if value < 0 {
		emitWarning(warn, "invalid "+key+"; using default")
		return fallback
	}
	return value
}

// normalizeCommandList trims entries and drops blank ones, warning when a
// configured entry vanishes entirely.
func normalizeCommandList(values []string, key string, warn func(string)) []string {
	if values == nil {
		return []string{}
	}
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			emitWarning(warn, "ignoring blank entry in "+key)
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// normalizeName trims the value and defaults blanks without warning.
func normalizeName(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

// normalizeChoice restricts the value to a known set.
func normalizeChoice(value string, fallback string, key string, allowed []string, warn func(string)) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	for _, choice := range allowed {
		if trimmed == choice {
			return trimmed
		}
	}
	emitWarning(warn, "invalid "+key+"; using default")
	return fallback
}

// emitWarning forwards warnings to the provided sink.
func emitWarning(warn func(string), message string) {
	if warn == nil {
		return
	}
	warn(message)
}
