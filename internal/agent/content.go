package agent

import (
	"context"
	"fmt"

	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

const contentSystemPrompt = `You are an expert content marketer and copywriter for an AI agent farm.
Your goal is to create content that drives traffic and conversions.

Specialties:
- SEO-optimized blog posts and articles
- Product review articles (affiliate marketing)
- Landing page copy
- Email sequences
- Social media posts (Twitter, LinkedIn)
- Product descriptions

Always:
- Write for humans first, search engines second
- Include clear CTAs
- Use natural keyword integration
- Focus on benefits over features
- Match the tone to the target audience
- Output content ready to publish (no placeholders unless specified)`

// ContentAgent produces publish-ready marketing content.
type ContentAgent struct {
	base
}

func NewContent(deps Deps, record store.Agent) *ContentAgent {
	record.Type = store.TypeContent
	return &ContentAgent{base: newBase(deps, record, llm.LevelSimple, contentSystemPrompt)}
}

func (a *ContentAgent) Execute(ctx context.Context, task store.Task) (*Result, error) {
	var prompt string
	maxTokens := 4096
	switch task.Kind {
	case store.KindSEOArticle:
		prompt = fmt.Sprintf(`Write a complete SEO-optimized article.

Requirements:
%s

Structure:
- Title (H1) with primary keyword
- Meta description (155 chars)
- Introduction (hook + keyword)
- 4-6 H2 sections with H3 subsections
- FAQ section (3-5 questions)
- Conclusion with CTA
- Word count: 1500-2500 words

Format in Markdown. Make it genuinely helpful and informative.`, task.Instructions)

	case store.KindProductReview:
		prompt = fmt.Sprintf(`Write a comprehensive affiliate product review.

Product/Details:
%s

Structure:
- Title: "[Product] Review: [Benefit/Year]"
- Quick verdict (pros/cons table)
- Who it's for
- Deep dive into features (be specific)
- Pricing analysis
- Comparison with 2-3 alternatives
- Final verdict + affiliate CTA
- FAQ (3 questions)

Be honest and balanced. Include specific details. Word count: 1200-2000 words. Format in Markdown.`, task.Instructions)

	case store.KindEmailSequence:
		prompt = fmt.Sprintf(`Write a 5-email welcome/nurture sequence.

Context:
%s

For each email:
- Subject line (with A/B variant)
- Preview text
- Body (conversational, 200-400 words)
- CTA

Emails:
1. Welcome + quick win
2. Problem/story
3. Solution introduction
4. Social proof + objection handling
5. Main offer CTA

Format clearly with --- separators between emails.`, task.Instructions)

	case store.KindSocialPosts:
		maxTokens = 3000
		prompt = fmt.Sprintf(`Write social media posts for:

%s

Create:
- 5 Twitter/X posts (280 chars max each, include hashtags)
- 3 LinkedIn posts (professional tone, 150-300 words each)
- 5 short-form hooks (for TikTok/Reels captions)

Make them varied in style: educational, story, controversial, listicle, question.`, task.Instructions)

	case store.KindLandingCopy:
		prompt = fmt.Sprintf(`Write complete landing page copy.

Product/Service:
%s

Include:
- Hero: Headline (power word + benefit + specificity) + subheadline + CTA button text
- Social proof section (3 testimonials to create/placeholder)
- Features section (3 features with icons descriptions)
- Benefits section (how life improves)
- Pricing section (1-3 tiers with recommended tier)
- FAQ (5 questions)
- Footer CTA

Use persuasion principles: scarcity, social proof, authority, specificity.`, task.Instructions)

	default:
		maxTokens = 3000
		prompt = task.Instructions
	}

	return a.callLLM(ctx, prompt, maxTokens, llm.LevelSimple)
}
