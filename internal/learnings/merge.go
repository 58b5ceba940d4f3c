package learnings

import (
	"strings"

	"agentfarm/internal/store"
)

// failureLearning is the JSON shape the model returns for a dead project.
type failureLearning struct {
	Category      string   `json:"category"`
	FailureReason string   `json:"failure_reason"`
	CostWasted    float64  `json:"cost_wasted"`
	WarningSigns  []string `json:"warning_signs"`
	Lesson        string   `json:"lesson"`
	AvoidPattern  string   `json:"avoid_pattern"`
}

// successLearning is the JSON shape the model returns for a working project.
type successLearning struct {
	Category          string   `json:"category"`
	WhyItWorked       string   `json:"why_it_worked"`
	SuccessFactors    []string `json:"success_factors"`
	ReplicablePattern string   `json:"replicable_pattern"`
	RecommendedNiches []string `json:"recommended_niches"`
}

func (d *Data) mergeFailure(learning failureLearning, project store.Project) {
	category := learning.Category
	if category == "" {
		category = inferCategory(project)
	}

	d.FailurePatterns = appendTrimmed(d.FailurePatterns, FailurePattern{
		Project:       project.Name,
		Category:      category,
		FailureReason: learning.FailureReason,
		Lesson:        learning.Lesson,
		AvoidPattern:  learning.AvoidPattern,
		CostWasted:    learning.CostWasted,
	}, maxPatterns)

	d.promoteAvoidPattern(learning.AvoidPattern)
	d.updateCategory(category, false, project.Revenue30d)
	if project.ViabilityScore != nil {
		d.ViabilityInsights.AvgScoreOfFailures = updateRollingAvg(
			d.ViabilityInsights.AvgScoreOfFailures, *project.ViabilityScore)
	}
}

func (d *Data) mergeSuccess(learning successLearning, project store.Project) {
	category := learning.Category
	if category == "" {
		category = inferCategory(project)
	}

	d.SuccessfulPatterns = appendTrimmed(d.SuccessfulPatterns, SuccessPattern{
		Project:           project.Name,
		Category:          category,
		WhyItWorked:       learning.WhyItWorked,
		ReplicablePattern: learning.ReplicablePattern,
		SuccessFactors:    learning.SuccessFactors,
	}, maxPatterns)

	for _, niche := range learning.RecommendedNiches {
		if niche != "" && !contains(d.MarketInsights, niche) {
			d.MarketInsights = append(d.MarketInsights, niche)
		}
	}
	if len(d.MarketInsights) > maxNiches {
		d.MarketInsights = d.MarketInsights[len(d.MarketInsights)-maxNiches:]
	}

	d.updateCategory(category, true, project.Revenue30d)
	if project.ViabilityScore != nil {
		d.ViabilityInsights.AvgScoreOfSuccesses = updateRollingAvg(
			d.ViabilityInsights.AvgScoreOfSuccesses, *project.ViabilityScore)
	}
}

// promoteAvoidPattern moves a failure label onto the avoid list once it has
// recurred across enough projects to count as a pattern rather than bad luck.
func (d *Data) promoteAvoidPattern(pattern string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return
	}
	occurrences := 0
	for _, fp := range d.FailurePatterns {
		if strings.EqualFold(fp.AvoidPattern, pattern) {
			occurrences++
		}
	}
	if occurrences < avoidThreshold {
		return
	}
	for _, listed := range d.AvoidList {
		if strings.EqualFold(listed, pattern) {
			return
		}
	}
	d.AvoidList = appendTrimmed(d.AvoidList, pattern, maxAvoid)
}

// inferCategory derives a coarse category from the project's own words.
func inferCategory(project store.Project) string {
	text := strings.ToLower(project.Description + " " + project.Name)
	for _, category := range []string{"trading", "saas", "content", "data", "service"} {
		if strings.Contains(text, category) {
			return category
		}
	}
	return "other"
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
