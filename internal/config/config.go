// Package config loads hivecore's layered configuration: compiled-in
// defaults, overridden by an optional YAML file, overridden by
// environment variables named HIVECORE_<SECTION>_<KEY>. Grounded on the
// teacher's internal/agents.LoadTeamsConfig read-file-then-yaml.Unmarshal
// shape (internal/agents/config.go), extended with the env-override layer
// spec.md §6's Configuration surface table requires.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Server bundles REST/WS bind address and CORS policy.
type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Queue bundles scheduler backpressure and retry limits.
type Queue struct {
	SoftCapacity int `yaml:"soft_capacity"`
	MaxRetries   int `yaml:"max_retries"`
	RetryBaseMs  int `yaml:"retry_base_ms"`
	RetryCapMs   int `yaml:"retry_cap_ms"`
}

// Swarm bundles the swarm tick loop's parameters.
type Swarm struct {
	TickMs          int `yaml:"tick_ms"`
	MaxFormationSize int `yaml:"max_formation_size"`
}

// Metrics bundles the observability sampling parameters.
type Metrics struct {
	TickMs             int `yaml:"tick_ms"`
	BufferLen          int `yaml:"buffer_len"`
	AlertSuppressionMs int `yaml:"alert_suppression_ms"`
}

// Thresholds mirrors internal/metrics.Thresholds, duplicated here as the
// on-disk/env representation so internal/metrics has no config import.
type Thresholds struct {
	CPUWarn      float64 `yaml:"cpu_warn"`
	CPUCrit      float64 `yaml:"cpu_crit"`
	MemWarn      float64 `yaml:"mem_warn"`
	MemCrit      float64 `yaml:"mem_crit"`
	FailRateWarn float64 `yaml:"fail_rate_warn"`
	FailRateCrit float64 `yaml:"fail_rate_crit"`
}

// Circuit bundles the circuit breaker's trip threshold and recovery wait.
type Circuit struct {
	Threshold    int `yaml:"threshold"`
	RecoveryMs   int `yaml:"recovery_ms"`
}

// Recovery bundles the agent-repair bounded-retry policy.
type Recovery struct {
	MaxAttempts    int `yaml:"max_attempts"`
	BackoffBaseMs  int `yaml:"backoff_base_ms"`
	BackoffCapMs   int `yaml:"backoff_cap_ms"`
}

// Learning bundles the adaptive-learning store's retention policy.
type Learning struct {
	RetentionDays  int     `yaml:"retention_days"`
	MaxPatterns    int     `yaml:"max_patterns"`
	ConfidenceTau  float64 `yaml:"confidence_tau"`
}

// AgentManager bundles registry-wide limits.
type AgentManager struct {
	MaxAgents int `yaml:"max_agents"`
}

// Config is the fully resolved, layered configuration.
type Config struct {
	Server       Server       `yaml:"server"`
	Queue        Queue        `yaml:"queue"`
	Swarm        Swarm        `yaml:"swarm"`
	Metrics      Metrics      `yaml:"metrics"`
	Thresholds   Thresholds   `yaml:"thresholds"`
	Circuit      Circuit      `yaml:"circuit"`
	Recovery     Recovery     `yaml:"recovery"`
	Learning     Learning     `yaml:"learning"`
	AgentManager AgentManager `yaml:"agentmgr"`
}

// Default returns the compiled-in baseline, the first config layer.
func Default() *Config {
	return &Config{
		Server: Server{Host: "0.0.0.0", Port: 8080, CORSOrigins: []string{"*"}},
		Queue:  Queue{SoftCapacity: 1000, MaxRetries: 3, RetryBaseMs: 10, RetryCapMs: 1000},
		Swarm:  Swarm{TickMs: 500, MaxFormationSize: 12},
		Metrics: Metrics{TickMs: 1000, BufferLen: 1000, AlertSuppressionMs: 60000},
		Thresholds: Thresholds{
			CPUWarn: 0.7, CPUCrit: 0.9,
			MemWarn: 0.7, MemCrit: 0.9,
			FailRateWarn: 0.2, FailRateCrit: 0.5,
		},
		Circuit:      Circuit{Threshold: 3, RecoveryMs: 200},
		Recovery:     Recovery{MaxAttempts: 3, BackoffBaseMs: 500, BackoffCapMs: 10000},
		Learning:     Learning{RetentionDays: 30, MaxPatterns: 10000, ConfidenceTau: 0.7},
		AgentManager: AgentManager{MaxAgents: 500},
	}
}

// Load builds the layered config: defaults, then path (if non-empty and
// present), then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return cfg, nil
}

// RetryBase returns queue.retry_base_ms as a time.Duration.
func (q Queue) RetryBase() time.Duration { return time.Duration(q.RetryBaseMs) * time.Millisecond }

// RetryCap returns queue.retry_cap_ms as a time.Duration.
func (q Queue) RetryCap() time.Duration { return time.Duration(q.RetryCapMs) * time.Millisecond }

// TickInterval returns swarm.tick_ms as a time.Duration.
func (s Swarm) TickInterval() time.Duration { return time.Duration(s.TickMs) * time.Millisecond }

// TickInterval returns metrics.tick_ms as a time.Duration.
func (m Metrics) TickInterval() time.Duration { return time.Duration(m.TickMs) * time.Millisecond }

// Suppression returns metrics.alert_suppression_ms as a time.Duration.
func (m Metrics) Suppression() time.Duration {
	return time.Duration(m.AlertSuppressionMs) * time.Millisecond
}

// RecoveryTimeout returns circuit.recovery_ms as a time.Duration.
func (c Circuit) RecoveryTimeout() time.Duration {
	return time.Duration(c.RecoveryMs) * time.Millisecond
}

// BackoffBase returns recovery.backoff_base_ms as a time.Duration.
func (r Recovery) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMs) * time.Millisecond
}

// BackoffCap returns recovery.backoff_cap_ms as a time.Duration.
func (r Recovery) BackoffCap() time.Duration {
	return time.Duration(r.BackoffCapMs) * time.Millisecond
}

// RetentionWindow returns learning.retention_days as a time.Duration.
func (l Learning) RetentionWindow() time.Duration {
	return time.Duration(l.RetentionDays) * 24 * time.Hour
}

// envField describes one HIVECORE_<SECTION>_<KEY> override target.
type envField struct {
	name string
	set  func(string) error
}

// applyEnvOverrides walks spec.md §6's settings table, one entry per
// recognized environment variable. Unset variables are left untouched.
func applyEnvOverrides(c *Config) error {
	fields := []envField{
		{"HIVECORE_SERVER_HOST", strPtr(&c.Server.Host)},
		{"HIVECORE_SERVER_PORT", intPtr(&c.Server.Port)},
		{"HIVECORE_SERVER_CORS_ORIGINS", csvPtr(&c.Server.CORSOrigins)},

		{"HIVECORE_QUEUE_SOFT_CAPACITY", intPtr(&c.Queue.SoftCapacity)},
		{"HIVECORE_QUEUE_MAX_RETRIES", intPtr(&c.Queue.MaxRetries)},
		{"HIVECORE_QUEUE_RETRY_BASE_MS", intPtr(&c.Queue.RetryBaseMs)},
		{"HIVECORE_QUEUE_RETRY_CAP_MS", intPtr(&c.Queue.RetryCapMs)},

		{"HIVECORE_SWARM_TICK_MS", intPtr(&c.Swarm.TickMs)},
		{"HIVECORE_SWARM_MAX_FORMATION_SIZE", intPtr(&c.Swarm.MaxFormationSize)},

		{"HIVECORE_METRICS_TICK_MS", intPtr(&c.Metrics.TickMs)},
		{"HIVECORE_METRICS_BUFFER_LEN", intPtr(&c.Metrics.BufferLen)},
		{"HIVECORE_METRICS_ALERT_SUPPRESSION_MS", intPtr(&c.Metrics.AlertSuppressionMs)},

		{"HIVECORE_THRESHOLDS_CPU_WARN", floatPtr(&c.Thresholds.CPUWarn)},
		{"HIVECORE_THRESHOLDS_CPU_CRIT", floatPtr(&c.Thresholds.CPUCrit)},
		{"HIVECORE_THRESHOLDS_MEM_WARN", floatPtr(&c.Thresholds.MemWarn)},
		{"HIVECORE_THRESHOLDS_MEM_CRIT", floatPtr(&c.Thresholds.MemCrit)},
		{"HIVECORE_THRESHOLDS_FAIL_RATE_WARN", floatPtr(&c.Thresholds.FailRateWarn)},
		{"HIVECORE_THRESHOLDS_FAIL_RATE_CRIT", floatPtr(&c.Thresholds.FailRateCrit)},

		{"HIVECORE_CIRCUIT_THRESHOLD", intPtr(&c.Circuit.Threshold)},
		{"HIVECORE_CIRCUIT_RECOVERY_MS", intPtr(&c.Circuit.RecoveryMs)},

		{"HIVECORE_RECOVERY_MAX_ATTEMPTS", intPtr(&c.Recovery.MaxAttempts)},
		{"HIVECORE_RECOVERY_BACKOFF_BASE_MS", intPtr(&c.Recovery.BackoffBaseMs)},
		{"HIVECORE_RECOVERY_BACKOFF_CAP_MS", intPtr(&c.Recovery.BackoffCapMs)},

		{"HIVECORE_LEARNING_RETENTION_DAYS", intPtr(&c.Learning.RetentionDays)},
		{"HIVECORE_LEARNING_MAX_PATTERNS", intPtr(&c.Learning.MaxPatterns)},
		{"HIVECORE_LEARNING_CONFIDENCE_TAU", floatPtr(&c.Learning.ConfidenceTau)},

		{"HIVECORE_AGENTMGR_MAX_AGENTS", intPtr(&c.AgentManager.MaxAgents)},
	}

	for _, f := range fields {
		raw, ok := os.LookupEnv(f.name)
		if !ok || raw == "" {
			continue
		}
		if err := f.set(raw); err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return nil
}

func strPtr(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func intPtr(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q: %w", v, err)
		}
		*dst = n
		return nil
	}
}

func floatPtr(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid float %q: %w", v, err)
		}
		*dst = f
		return nil
	}
}

func csvPtr(dst *[]string) func(string) error {
	return func(v string) error {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		*dst = out
		return nil
	}
}
