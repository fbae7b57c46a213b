// Package config tests default configuration behavior.
package config

import (
	"strings"
	"testing"
)

// TestDefaultsDocumentedValues verifies the published defaults are stable.
func TestDefaultsDocumentedValues(t *testing.T) {
	t.Parallel()

	cfg := Defaults()

	if got, want := cfg.Concurrency.MaxParallelTasks, defaultMaxParallelTasks; got != want {
		t.Fatalf("concurrency.max_parallel_tasks = %d, want %d", got, want)
	}
	if got, want := cfg.Engine.MaxRecursionDepth, defaultMaxRecursionDepth; got != want {
		t.Fatalf("engine.max_recursion_depth = %d, want %d", got, want)
	}
	if got, want := cfg.Retry.StageMax, defaultStageRetryMax; got != want {
		t.Fatalf("retry.stage_max = %d, want %d", got, want)
	}
	if got, want := cfg.Retry.TaskMax, defaultTaskRetryMax; got != want {
		t.Fatalf("retry.task_max = %d, want %d", got, want)
	}
	if got, want := cfg.Workers.TimeoutSeconds, defaultWorkerTimeoutSeconds; got != want {
		t.Fatalf("workers.timeout_seconds = %d, want %d", got, want)
	}
	if got, want := cfg.Deploy.TimeoutSeconds, defaultDeployTimeoutSeconds; got != want {
		t.Fatalf("deploy.timeout_seconds = %d, want %d", got, want)
	}
	if cfg.Workers.CLI != defaultWorkerCLI {
		t.Fatalf("workers.cli = %q, want %q", cfg.Workers.CLI, defaultWorkerCLI)
	}
	if cfg.Logging.Level != defaultLogLevel {
		t.Fatalf("logging.level = %q, want %q", cfg.Logging.Level, defaultLogLevel)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Fatalf("logging.format = %q, want %q", cfg.Logging.Format, defaultLogFormat)
	}
	if cfg.Commands.Build == nil || len(cfg.Commands.Build) != 0 {
		t.Fatal("commands.build should default to empty list")
	}
	if cfg.Commands.Test == nil || len(cfg.Commands.Test) != 0 {
		t.Fatal("commands.test should default to empty list")
	}
	if cfg.Commands.Healthcheck != "" {
		t.Fatalf("commands.healthcheck = %q, want empty", cfg.Commands.Healthcheck)
	}
}

// TestApplyDefaultsMissingConfig verifies defaults apply to an empty config.
func TestApplyDefaultsMissingConfig(t *testing.T) {
	t.Parallel()

	var warnings []string
	cfg := ApplyDefaults(Config{}, func(message string) {
		warnings = append(warnings, message)
	})
	expected := Defaults()

	if !configsEqual(cfg, expected) {
		t.Fatal("ApplyDefaults should match Defaults for empty config")
	}
	if len(warnings) != 0 {
		t.Fatalf("unset fields should default silently, got warnings %v", warnings)
	}
}

// TestApplyDefaultsInvalidValues verifies invalid values fall back to defaults with warnings.
func TestApplyDefaultsInvalidValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Concurrency: ConcurrencyConfig{
			MaxParallelTasks: -1,
		},
		Retry: RetryConfig{
			StageMax: -2,
			TaskMax:  4,
		},
		Commands: CommandsConfig{
			Build: []string{"npm ci", "  ", "npm run build"},
			Test:  []string{"npm test"},
		},
		Workers: WorkersConfig{
			TimeoutSeconds: -30,
		},
		Logging: LoggingConfig{
			Level:  "loud",
			Format: "json",
		},
	}

	var warnings []string
	warn := func(message string) {
		warnings = append(warnings, message)
	}

	normalized := ApplyDefaults(cfg, warn)

	if normalized.Concurrency.MaxParallelTasks != defaultMaxParallelTasks {
		t.Fatal("concurrency.max_parallel_tasks should fall back to default")
	}
	if normalized.Retry.StageMax != defaultStageRetryMax {
		t.Fatal("retry.stage_max should fall back to default")
	}
	if normalized.Retry.TaskMax != 4 {
		t.Fatalf("retry.task_max = %d, want 4", normalized.Retry.TaskMax)
	}
	if len(normalized.Commands.Build) != 2 {
		t.Fatalf("commands.build = %v, want blank entry dropped", normalized.Commands.Build)
	}
	if len(normalized.Commands.Test) != 1 || normalized.Commands.Test[0] != "npm test" {
		t.Fatalf("commands.test = %v, want preserved", normalized.Commands.Test)
	}
	if normalized.Workers.TimeoutSeconds != defaultWorkerTimeoutSeconds {
		t.Fatal("workers.timeout_seconds should fall back to default")
	}
	if normalized.Logging.Level != defaultLogLevel {
		t.Fatal("logging.level should fall back to default")
	}
	if normalized.Logging.Format != "json" {
		t.Fatalf("logging.format = %q, want %q", normalized.Logging.Format, "json")
	}
	if len(warnings) == 0 {
		t.Fatal("expected warnings for invalid values")
	}
	if !warningsContain(warnings, "concurrency.max_parallel_tasks") {
		t.Fatal("expected warning for concurrency.max_parallel_tasks")
	}
	if !warningsContain(warnings, "retry.stage_max") {
		t.Fatal("expected warning for retry.stage_max")
	}
	if !warningsContain(warnings, "commands.build") {
		t.Fatal("expected warning for commands.build")
	}
	if !warningsContain(warnings, "workers.timeout_seconds") {
		t.Fatal("expected warning for workers.timeout_seconds")
	}
	if !warningsContain(warnings, "logging.level") {
		t.Fatal("expected warning for logging.level")
	}
}

// configsEqual compares configs by value without relying on reflect.DeepEqual.
func configsEqual(left Config, right Config) bool {
	if left.Concurrency.MaxParallelTasks != right.Concurrency.MaxParallelTasks ||
		left.Engine.MaxRecursionDepth != right.Engine.MaxRecursionDepth ||
		left.Retry.StageMax != right.Retry.StageMax ||
		left.Retry.TaskMax != right.Retry.TaskMax ||
		left.Workers.TimeoutSeconds != right.Workers.TimeoutSeconds ||
		left.Deploy.TimeoutSeconds != right.Deploy.TimeoutSeconds {
		return false
	}
	if left.Workers.CLI != right.Workers.CLI ||
		left.Logging.Level != right.Logging.Level ||
		left.Logging.Format != right.Logging.Format ||
		left.Commands.Healthcheck != right.Commands.Healthcheck {
		return false
	}
	if !stringSlicesEqual(left.Commands.Build, right.Commands.Build) {
		return false
	}
	return stringSlicesEqual(left.Commands.Test, right.Commands.Test)
}

// stringSlicesEqual compares string slices in order.
func stringSlicesEqual(left []string, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for idx := range left {
		if left[idx] != right[idx] {
			return false
		}
	}
	return true
}

// warningsContain reports whether any warning contains the substring.
func warningsContain(warnings []string, substr string) bool {
	for _, warning := range warnings {
		if strings.Contains(warning, substr) {
			return true
		}
	}
	return false
}
