// Package learnings converts finished projects into reusable intelligence:
// structured pattern data persisted through the store, and a compact brief
// injected into idea-generation and viability prompts.
package learnings

import "time"

const (
	maxPatterns = 20
	maxNiches   = 10
	maxAvoid    = 15

	// avoidThreshold is how many matching failure patterns promote a label
	// onto the avoid list.
	avoidThreshold = 2

	maxBriefLen    = 6000
	maxStrategyLen = 2000
)

// SuccessPattern records why one project worked.
type SuccessPattern struct {
	Project           string   `json:"project"`
	Category          string   `json:"category"`
	WhyItWorked       string   `json:"why_it_worked"`
	ReplicablePattern string   `json:"replicable_pattern"`
	SuccessFactors    []string `json:"success_factors"`
}

// FailurePattern records why one project died and what it cost.
type FailurePattern struct {
	Project       string  `json:"project"`
	Category      string  `json:"category"`
	FailureReason string  `json:"failure_reason"`
	Lesson        string  `json:"lesson"`
	AvoidPattern  string  `json:"avoid_pattern"`
	CostWasted    float64 `json:"cost_wasted"`
}

// CategoryStats is the running performance of one project category.
type CategoryStats struct {
	AvgRevenue  float64 `json:"avg_revenue"`
	SuccessRate float64 `json:"success_rate"`
	Count       int     `json:"count"`
}

// ViabilityInsights calibrates viability scoring against real outcomes.
// Averages are recency weighted: each new observation counts as much as the
// whole history before it, so the calibration tracks the current market
// rather than stale seasons.
type ViabilityInsights struct {
	AvgScoreOfSuccesses *float64 `json:"avg_score_of_successes"`
	AvgScoreOfFailures  *float64 `json:"avg_score_of_failures"`
}

// Meta tracks bookkeeping, including the analyzed id set for idempotency.
type Meta struct {
	TotalProjectsAnalyzed int      `json:"total_projects_analyzed"`
	LastUpdated           string   `json:"last_updated"`
	AnalyzedProjectIDs    []string `json:"analyzed_project_ids"`
}

// Data is the full persisted learnings document.
type Data struct {
	SuccessfulPatterns  []SuccessPattern          `json:"successful_patterns"`
	FailurePatterns     []FailurePattern          `json:"failure_patterns"`
	CategoryPerformance map[string]*CategoryStats `json:"category_performance"`
	ViabilityInsights   ViabilityInsights         `json:"viability_insights"`
	MarketInsights      []string                  `json:"market_insights"`
	AvoidList           []string                  `json:"avoid_list"`
	Meta                Meta                      `json:"meta"`
}

// NewData returns an empty document with containers initialized.
func NewData() *Data {
	return &Data{
		SuccessfulPatterns:  []SuccessPattern{},
		FailurePatterns:     []FailurePattern{},
		CategoryPerformance: map[string]*CategoryStats{},
		MarketInsights:      []string{},
		AvoidList:           []string{},
		Meta:                Meta{AnalyzedProjectIDs: []string{}},
	}
}

func (d *Data) analyzed(projectID string) bool {
	if projectID == "" {
		return false
	}
	for _, id := range d.Meta.AnalyzedProjectIDs {
		if id == projectID {
			return true
		}
	}
	return false
}

func (d *Data) markAnalyzed(projectID string, now time.Time) {
	d.Meta.TotalProjectsAnalyzed++
	if projectID != "" {
		d.Meta.AnalyzedProjectIDs = append(d.Meta.AnalyzedProjectIDs, projectID)
	}
	d.Meta.LastUpdated = now.UTC().Format(time.RFC3339)
}

// updateCategory folds one observation into the category's running averages
// as an incremental mean.
func (d *Data) updateCategory(category string, success bool, revenue30d float64) {
	if d.CategoryPerformance == nil {
		d.CategoryPerformance = map[string]*CategoryStats{}
	}
	stats, ok := d.CategoryPerformance[category]
	if !ok {
		stats = &CategoryStats{}
		d.CategoryPerformance[category] = stats
	}
	n := float64(stats.Count)
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	stats.AvgRevenue = (stats.AvgRevenue*n + revenue30d) / (n + 1)
	stats.SuccessRate = (stats.SuccessRate*n + outcome) / (n + 1)
	stats.Count++
}

func updateRollingAvg(current *float64, value float64) *float64 {
	if current == nil {
		return &value
	}
	avg := (*current + value) / 2
	return &avg
}

// appendTrimmed keeps the newest entries when a ring exceeds its limit.
func appendTrimmed[T any](ring []T, entry T, limit int) []T {
	ring = append(ring, entry)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}
