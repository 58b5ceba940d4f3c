// Package config parses the farm's runtime configuration from the store's
// flat key/value table. The orchestrator refreshes it once per loop
// iteration; there is no versioning, last write wins.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Recognized config keys. Every key has a default applied when absent.
const (
	KeyAutonomyLevel       = "autonomy_level"
	KeyMaxConcurrentAgents = "max_concurrent_agents"
	KeyDefaultModel        = "default_model"
	KeyLoopIntervalSeconds = "loop_interval_seconds"
	KeyScaleThresholdUSD   = "scale_threshold_usd"
	KeyArchiveDaysNoRev    = "archive_days_no_revenue"
	KeyMaxCostPerProject   = "max_cost_per_project_usd"
	KeyParallelProjectsMax = "parallel_projects_max"
	KeyNewIdeasPerWeek     = "new_ideas_per_week"
	KeyMonthlyBudgetUSD    = "monthly_budget_usd"
	KeyViabilityThreshold  = "viability_threshold"
	KeySelfUpdateEnabled   = "self_update_enabled"
	KeyTaskLeaseMinutes    = "task_lease_minutes"
	KeyStrategyBrief       = "strategy_brief"
)

// minLoopInterval is the floor on the loop cadence; anything lower risks
// hammering the store and the providers.
const minLoopInterval = 30 * time.Second

// Runtime holds the parsed per-loop configuration.
type Runtime struct {
	AutonomyLevel       int
	MaxConcurrentAgents int
	DefaultModel        string
	LoopInterval        time.Duration
	ScaleThresholdUSD   float64
	ArchiveDaysNoRev    int
	MaxCostPerProject   float64
	ParallelProjectsMax int
	NewIdeasPerWeek     int
	MonthlyBudgetUSD    float64
	ViabilityThreshold  float64
	SelfUpdateEnabled   bool
	TaskLease           time.Duration
}

// Defaults returns the configuration used when the store has no overrides.
func Defaults() Runtime {
	return Runtime{
		AutonomyLevel:       7,
		MaxConcurrentAgents: 3,
		DefaultModel:        "auto",
		LoopInterval:        300 * time.Second,
		ScaleThresholdUSD:   10,
		ArchiveDaysNoRev:    21,
		MaxCostPerProject:   5,
		ParallelProjectsMax: 10,
		NewIdeasPerWeek:     5,
		MonthlyBudgetUSD:    50,
		ViabilityThreshold:  60,
		SelfUpdateEnabled:   true,
		TaskLease:           120 * time.Minute,
	}
}

// Parse builds a Runtime from the raw key/value table, falling back to
// defaults for absent or malformed values.
func Parse(raw map[string]string) Runtime {
	cfg := Defaults()

	cfg.AutonomyLevel = parseInt(raw, KeyAutonomyLevel, cfg.AutonomyLevel)
	cfg.MaxConcurrentAgents = parseInt(raw, KeyMaxConcurrentAgents, cfg.MaxConcurrentAgents)
	if v := strings.TrimSpace(raw[KeyDefaultModel]); v != "" {
		cfg.DefaultModel = v
	}
	if secs := parseInt(raw, KeyLoopIntervalSeconds, int(cfg.LoopInterval/time.Second)); secs > 0 {
		cfg.LoopInterval = time.Duration(secs) * time.Second
	}
	if cfg.LoopInterval < minLoopInterval {
		cfg.LoopInterval = minLoopInterval
	}
	cfg.ScaleThresholdUSD = parseFloat(raw, KeyScaleThresholdUSD, cfg.ScaleThresholdUSD)
	cfg.ArchiveDaysNoRev = parseInt(raw, KeyArchiveDaysNoRev, cfg.ArchiveDaysNoRev)
	cfg.MaxCostPerProject = parseFloat(raw, KeyMaxCostPerProject, cfg.MaxCostPerProject)
	cfg.ParallelProjectsMax = parseInt(raw, KeyParallelProjectsMax, cfg.ParallelProjectsMax)
	cfg.NewIdeasPerWeek = parseInt(raw, KeyNewIdeasPerWeek, cfg.NewIdeasPerWeek)
	cfg.MonthlyBudgetUSD = parseFloat(raw, KeyMonthlyBudgetUSD, cfg.MonthlyBudgetUSD)
	cfg.ViabilityThreshold = parseFloat(raw, KeyViabilityThreshold, cfg.ViabilityThreshold)
	cfg.SelfUpdateEnabled = parseBool(raw, KeySelfUpdateEnabled, cfg.SelfUpdateEnabled)
	if mins := parseInt(raw, KeyTaskLeaseMinutes, int(cfg.TaskLease/time.Minute)); mins > 0 {
		cfg.TaskLease = time.Duration(mins) * time.Minute
	}

	return cfg
}

func parseInt(raw map[string]string, key string, def int) int {
	v, ok := raw[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func parseFloat(raw map[string]string, key string, def float64) float64 {
	v, ok := raw[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(raw map[string]string, key string, def bool) bool {
	v, ok := raw[key]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}
