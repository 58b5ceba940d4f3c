package learnings

import (
	"fmt"
	"sort"
	"strings"
)

// BuildBrief renders the learnings document as a plain-text brief for prompt
// injection. Empty when nothing has been analyzed yet, so early loops stay
// silent.
func BuildBrief(d *Data) string {
	n := d.Meta.TotalProjectsAnalyzed
	if n == 0 {
		return ""
	}

	plural := "s"
	if n == 1 {
		plural = ""
	}
	lines := []string{
		"=== WHAT WE KNOW FROM PAST PROJECTS ===",
		fmt.Sprintf("(Based on %d analyzed project%s)", n, plural),
		"",
	}

	if len(d.SuccessfulPatterns) > 0 {
		lines = append(lines, "WHAT WORKS:")
		for _, p := range tail(d.SuccessfulPatterns, 5) {
			pattern := p.ReplicablePattern
			if pattern == "" {
				pattern = p.WhyItWorked
			}
			lines = append(lines, fmt.Sprintf("  - [%s] %s", orUnknown(p.Category), pattern))
		}
		lines = append(lines, "")
	}

	if len(d.FailurePatterns) > 0 {
		lines = append(lines, "WHAT FAILED:")
		for _, p := range tail(d.FailurePatterns, 5) {
			lesson := p.Lesson
			if lesson == "" {
				lesson = p.FailureReason
			}
			lines = append(lines, fmt.Sprintf("  - [%s] %s (wasted $%.2f)", orUnknown(p.Category), lesson, p.CostWasted))
		}
		lines = append(lines, "")
	}

	if len(d.CategoryPerformance) > 0 {
		lines = append(lines, "CATEGORY PERFORMANCE:")
		for _, category := range sortedCategories(d.CategoryPerformance) {
			stats := d.CategoryPerformance[category]
			lines = append(lines, fmt.Sprintf("  - %s: %.0f%% success, avg $%.0f/30d, n=%d",
				category, stats.SuccessRate*100, stats.AvgRevenue, stats.Count))
		}
		lines = append(lines, "")
	}

	if len(d.AvoidList) > 0 {
		lines = append(lines, "AVOID: "+strings.Join(d.AvoidList, " | "), "")
	}

	if d.ViabilityInsights.AvgScoreOfSuccesses != nil || d.ViabilityInsights.AvgScoreOfFailures != nil {
		parts := []string{}
		if s := d.ViabilityInsights.AvgScoreOfSuccesses; s != nil {
			parts = append(parts, fmt.Sprintf("Successes avg %.0f/100", *s))
		}
		if f := d.ViabilityInsights.AvgScoreOfFailures; f != nil {
			parts = append(parts, fmt.Sprintf("failures avg %.0f/100", *f))
		}
		lines = append(lines, "VIABILITY CALIBRATION: "+strings.Join(parts, ", "), "")
	}

	if len(d.MarketInsights) > 0 {
		head := d.MarketInsights
		if len(head) > 5 {
			head = head[:5]
		}
		lines = append(lines, "PROMISING NICHES: "+strings.Join(head, ", "), "")
	}

	lines = append(lines, "=== END OF LEARNINGS ===")
	brief := strings.Join(lines, "\n")
	if len(brief) > maxBriefLen {
		brief = brief[:maxBriefLen]
	}
	return brief
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func sortedCategories(perf map[string]*CategoryStats) []string {
	keys := make([]string, 0, len(perf))
	for k := range perf {
		keys = append(keys, k)
	}
	// Stable output keeps the brief cache from churning on every save.
	sort.Strings(keys)
	return keys
}
