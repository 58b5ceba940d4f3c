package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"agentfarm/internal/httpclient"
	"agentfarm/internal/llm"
	"agentfarm/internal/store"
)

const tradingSystemPrompt = `You are a quantitative financial analyst for an AI agent farm.
Your role is to analyze data and generate insights, NOT to execute trades automatically.

Specialties:
- Technical analysis (MA, RSI, MACD, support/resistance)
- Fundamental analysis summaries
- Crypto market analysis
- Arbitrage opportunity detection
- Options strategy analysis
- Risk assessment

Always:
- Express uncertainty clearly (never guarantee profits)
- Provide specific entry/exit levels with stop losses
- Include risk/reward ratios
- Note when data is outdated
- Flag high-risk situations prominently
- Output structured JSON for signals, prose for analysis

IMPORTANT: Always set requires_human=true for any actual trade recommendation.`

const humanReviewBanner = "HUMAN REVIEW REQUIRED before any trade execution.\n\n"

const coingeckoBase = "https://api.coingecko.com/api/v3"

// TradingAgent analyzes markets and drafts signals. It never executes
// trades: every analysis lands in the human review queue.
type TradingAgent struct {
	base
	market *http.Client
}

func NewTrading(deps Deps, record store.Agent) *TradingAgent {
	record.Type = store.TypeTrading
	return &TradingAgent{
		base:   newBase(deps, record, llm.LevelComplex, tradingSystemPrompt),
		market: httpclient.New(10 * time.Second),
	}
}

func (a *TradingAgent) Execute(ctx context.Context, task store.Task) (*Result, error) {
	var resp *Result
	var err error
	switch task.Kind {
	case store.KindCryptoAnalysis:
		resp, err = a.analyzeCrypto(ctx, task)
	case store.KindArbitrageScan:
		resp, err = a.scanArbitrage(ctx, task)
	case store.KindMarketSummary:
		resp, err = a.marketSummary(ctx, task)
	case store.KindBacktest:
		resp, err = a.describeBacktest(ctx, task)
	default:
		resp, err = a.callLLM(ctx, task.Instructions, 2000, llm.LevelComplex)
	}
	if err != nil {
		return nil, err
	}
	resp.Text = humanReviewBanner + resp.Text
	resp.NeedsHuman = true
	return resp, nil
}

func (a *TradingAgent) analyzeCrypto(ctx context.Context, task store.Task) (*Result, error) {
	symbol := extractSymbol(task.Instructions)
	if symbol == "" {
		symbol = "BTC"
	}
	marketData := a.fetchMarketData(ctx, symbol)

	prompt := fmt.Sprintf(`Analyze this cryptocurrency and provide a trading analysis report.

Asset: %s
Market Data: %s

Provide:
1. Current market context (trend, momentum)
2. Key support/resistance levels
3. Short-term outlook (1-7 days)
4. Risk factors
5. Trading signal (if any): direction, entry zone, stop loss, take profit
6. Confidence level (0-100%%)

Format as structured markdown. Include a JSON signal block at the end:
`+"```json"+`
{
  "signal": "long|short|neutral",
  "entry_zone": [min, max],
  "stop_loss": price,
  "take_profit": [tp1, tp2],
  "confidence": 0-100,
  "requires_human_approval": true
}
`+"```", symbol, marketData)

	return a.callLLM(ctx, prompt, 2000, llm.LevelComplex)
}

func (a *TradingAgent) scanArbitrage(ctx context.Context, task store.Task) (*Result, error) {
	scanContext := task.Instructions
	if scanContext == "" {
		scanContext = "General crypto arbitrage scan"
	}
	prompt := fmt.Sprintf(`Identify potential arbitrage opportunities in cryptocurrency markets.

Context: %s

Analyze:
1. CEX-DEX price differences (BTC, ETH, major alts)
2. Triangular arbitrage paths
3. Funding rate arbitrage (perps vs spot)
4. Cross-chain bridge opportunities

For each opportunity provide:
- Assets involved
- Estimated spread %%
- Required capital
- Execution complexity (1-5)
- Risk level

Format as a prioritized list. Flag anything requiring >$1000 capital as requiring human review.`, scanContext)
	return a.callLLM(ctx, prompt, 2000, llm.LevelComplex)
}

func (a *TradingAgent) marketSummary(ctx context.Context, task store.Task) (*Result, error) {
	btc := a.fetchMarketData(ctx, "BTC")
	eth := a.fetchMarketData(ctx, "ETH")

	prompt := fmt.Sprintf(`Write a concise crypto market summary report.

Current Data:
BTC: %s
ETH: %s

Context: %s

Include:
- Overall market sentiment
- BTC and ETH key metrics
- Notable movers (based on your knowledge)
- Key events to watch
- Risk-off vs risk-on assessment

Keep it under 500 words. Professional tone.`, btc, eth, task.Instructions)
	return a.callLLM(ctx, prompt, 1500, llm.LevelComplex)
}

func (a *TradingAgent) describeBacktest(ctx context.Context, task store.Task) (*Result, error) {
	prompt := fmt.Sprintf(`Describe a trading strategy and analyze its theoretical performance.

Strategy to evaluate: %s

Provide:
1. Strategy description (clear rules)
2. Historical performance characteristics (typical for this type of strategy)
3. Market conditions where it performs best/worst
4. Key parameters to optimize
5. Risk considerations
6. Suggested backtesting approach (tools, timeframes, metrics)

NOTE: This is theoretical analysis, not actual backtested results.`, task.Instructions)
	return a.callLLM(ctx, prompt, 2000, llm.LevelComplex)
}

var coinIDs = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana",
	"DOGE": "dogecoin", "ADA": "cardano",
}

// fetchMarketData pulls basic asset data from CoinGecko's free API and
// renders it as JSON for prompt embedding. Failures degrade to an error
// marker so analysis proceeds on model knowledge alone.
func (a *TradingAgent) fetchMarketData(ctx context.Context, symbol string) string {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		id = strings.ToLower(symbol)
	}

	url := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false", coingeckoBase, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return a.marketError(symbol, err)
	}
	req.Header.Set("User-Agent", "AgentFarm/1.0")

	resp, err := a.market.Do(req)
	if err != nil {
		return a.marketError(symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return a.marketError(symbol, fmt.Errorf("status %d", resp.StatusCode))
	}

	var payload struct {
		Name       string `json:"name"`
		Symbol     string `json:"symbol"`
		MarketData struct {
			CurrentPrice        map[string]float64 `json:"current_price"`
			MarketCap           map[string]float64 `json:"market_cap"`
			TotalVolume         map[string]float64 `json:"total_volume"`
			PriceChange24h      *float64           `json:"price_change_percentage_24h"`
			PriceChange7d       *float64           `json:"price_change_percentage_7d"`
			ATH                 map[string]float64 `json:"ath"`
			ATHChangePercentage map[string]float64 `json:"ath_change_percentage"`
		} `json:"market_data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return a.marketError(symbol, err)
	}

	md := payload.MarketData
	summary := map[string]any{
		"name":           payload.Name,
		"symbol":         strings.ToUpper(payload.Symbol),
		"price_usd":      md.CurrentPrice["usd"],
		"market_cap_usd": md.MarketCap["usd"],
		"volume_24h":     md.TotalVolume["usd"],
		"ath":            md.ATH["usd"],
		"ath_change_pct": md.ATHChangePercentage["usd"],
		"fetched_at":     time.Now().UTC().Format(time.RFC3339),
	}
	if md.PriceChange24h != nil {
		summary["price_change_24h_pct"] = *md.PriceChange24h
	}
	if md.PriceChange7d != nil {
		summary["price_change_7d_pct"] = *md.PriceChange7d
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return a.marketError(symbol, err)
	}
	return string(out)
}

func (a *TradingAgent) marketError(symbol string, err error) string {
	a.logger.Warn("market data fetch failed for %s: %v", symbol, err)
	return fmt.Sprintf(`{"error": %q, "coin": %q}`, err.Error(), symbol)
}

var symbolPattern = regexp.MustCompile(`(?i)\b(BTC|ETH|SOL|DOGE|ADA|BNB|XRP|USDT|bitcoin|ethereum)\b`)

func extractSymbol(text string) string {
	if m := symbolPattern.FindString(text); m != "" {
		return strings.ToUpper(m)
	}
	return ""
}
