package agent

import (
	"strings"

	"agentfarm/internal/store"
)

// kindMarkers maps instruction markers to task kinds. Checked in order so
// the most specific marker wins.
var kindMarkers = []struct {
	marker string
	kind   store.TaskKind
}{
	{"VIABILITY_CHECK", store.KindViabilityCheck},
	{"GENERATE_IDEAS", store.KindGenerateIdeas},
	{"SCALING_ANALYSIS", store.KindScalingAnalysis},
	{"WRITE_CODE", store.KindWriteCode},
	{"CREATE_FILE", store.KindWriteCode},
	{"REVIEW_CODE", store.KindReviewCode},
	{"CREATE_LANDING", store.KindLandingPage},
	{"CREATE_API", store.KindCreateAPI},
	{"DEPLOY", store.KindDeploy},
	{"SEO_ARTICLE", store.KindSEOArticle},
	{"BLOG_POST", store.KindSEOArticle},
	{"PRODUCT_REVIEW", store.KindProductReview},
	{"EMAIL_SEQUENCE", store.KindEmailSequence},
	{"SOCIAL_POSTS", store.KindSocialPosts},
	{"LANDING_COPY", store.KindLandingCopy},
	{"ANALYZE_CRYPTO", store.KindCryptoAnalysis},
	{"ARBITRAGE_SCAN", store.KindArbitrageScan},
	{"MARKET_SUMMARY", store.KindMarketSummary},
	{"BACKTEST", store.KindBacktest},
	{"RESEARCH", store.KindResearch},
}

// DetectKind classifies a task from its title and instructions. Kinds are
// fixed at creation time so dispatch and agents never re-scan free text.
func DetectKind(title, instructions string) store.TaskKind {
	text := strings.ToUpper(title + " " + instructions)
	for _, m := range kindMarkers {
		if strings.Contains(text, m.marker) {
			return m.kind
		}
	}
	return store.KindGeneral
}

// kindAgentType maps each task kind to the agent type that handles it.
var kindAgentType = map[store.TaskKind]store.AgentType{
	store.KindViabilityCheck:  store.TypeResearch,
	store.KindGenerateIdeas:   store.TypeResearch,
	store.KindScalingAnalysis: store.TypeResearch,
	store.KindResearch:        store.TypeResearch,
	store.KindWriteCode:       store.TypeCode,
	store.KindReviewCode:      store.TypeCode,
	store.KindLandingPage:     store.TypeCode,
	store.KindCreateAPI:       store.TypeCode,
	store.KindDeploy:          store.TypeCode,
	store.KindSEOArticle:      store.TypeContent,
	store.KindProductReview:   store.TypeContent,
	store.KindEmailSequence:   store.TypeContent,
	store.KindSocialPosts:     store.TypeContent,
	store.KindLandingCopy:     store.TypeContent,
	store.KindCryptoAnalysis:  store.TypeTrading,
	store.KindArbitrageScan:   store.TypeTrading,
	store.KindMarketSummary:   store.TypeTrading,
	store.KindBacktest:        store.TypeTrading,
}

// typeKeywords backs keyword matching for tasks with no recognizable kind.
var typeKeywords = map[store.AgentType][]string{
	store.TypeResearch: {"RESEARCH", "VIABILITY", "ANALYZE", "MARKET", "OPPORTUNITY", "GENERATE_IDEAS"},
	store.TypeCode:     {"CODE", "WRITE_CODE", "CREATE_API", "LANDING", "SCRIPT", "DEPLOY", "BUILD"},
	store.TypeContent:  {"CONTENT", "ARTICLE", "BLOG", "SEO", "EMAIL", "SOCIAL", "COPY", "WRITE"},
	store.TypeTrading:  {"TRADING", "CRYPTO", "MARKET", "ARBITRAGE", "BACKTEST", "FINANCIAL"},
}

// preferredType picks the agent type for a task, falling back to keyword
// scanning and finally to research.
func preferredType(task store.Task) store.AgentType {
	if t, ok := kindAgentType[task.Kind]; ok {
		return t
	}
	text := strings.ToUpper(task.Title + " " + task.Instructions)
	for _, agentType := range []store.AgentType{store.TypeResearch, store.TypeCode, store.TypeContent, store.TypeTrading} {
		for _, kw := range typeKeywords[agentType] {
			if strings.Contains(text, kw) {
				return agentType
			}
		}
	}
	return store.TypeResearch
}
