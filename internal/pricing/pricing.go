// Package pricing turns raw listing samples into a market summary, a
// buy/sell recommendation, and a composite deal score. It is a pure
// function of its inputs: no network, no persistence, no clock besides
// the days-to-sell window.
package pricing

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

// Confidence tiers for the recommendation, driven by sold-sample count.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Liquidity buckets a sell-through rate into a coarse demand signal.
type Liquidity string

const (
	LiquidityHot     Liquidity = "hot"
	LiquiditySteady  Liquidity = "steady"
	LiquiditySlow    Liquidity = "slow"
	LiquidityDead    Liquidity = "dead"
	LiquidityUnknown Liquidity = "unknown"
)

// Verdict is the discrete label derived from the composite deal score.
type Verdict string

const (
	VerdictHot    Verdict = "HOT DEAL"
	VerdictGood   Verdict = "GOOD DEAL"
	VerdictOkay   Verdict = "OKAY"
	VerdictPass   Verdict = "PASS"
	VerdictNoData Verdict = "NO DATA"
)

// Cost assumptions baked into every recommendation.
var (
	feeRate     = decimal.NewFromFloat(0.13) // marketplace final-value fee
	avgShipping = decimal.NewFromFloat(7.00)
	targetROI   = decimal.NewFromFloat(0.40)
)

// soldWindowDays bounds days-to-sell samples; anything older is treated
// as a stale or garbage timestamp and excluded.
const soldWindowDays = 180

// PriceStats summarizes one price set. All fields are nil when the set
// is empty.
type PriceStats struct {
	Average *decimal.Decimal `json:"average"`
	Median  *decimal.Decimal `json:"median"`
	Low     *decimal.Decimal `json:"low"`
	High    *decimal.Decimal `json:"high"`
}

// SellThrough captures demand and liquidity signals.
type SellThrough struct {
	Percent          *decimal.Decimal `json:"sell_through_pct"`
	AvgDaysToSell    *decimal.Decimal `json:"avg_days_to_sell"`
	Liquidity        Liquidity        `json:"liquidity"`
	TotalSold        int              `json:"total_sold_recently"`
	TotalCompleted   int              `json:"total_completed_recently"`
	TotalActive      int              `json:"total_active_supply"`
	SupplyDemandNote string           `json:"supply_demand_note,omitempty"`
}

// Recommendation is the buy-side verdict for one query. Monetary fields
// are nil when there is not enough data to price the item.
type Recommendation struct {
	MaxBuyPrice        *decimal.Decimal `json:"max_buy_price"`
	EstimatedSellPrice *decimal.Decimal `json:"estimated_sell_price"`
	NetAfterFees       *decimal.Decimal `json:"net_after_fees"`
	EstimatedProfit    *decimal.Decimal `json:"estimated_profit"`
	ROIPercent         *decimal.Decimal `json:"roi_percent"`
	Confidence         Confidence       `json:"confidence"`
	SpreadWarning      string           `json:"spread_warning,omitempty"`
	LiquidityWarning   string           `json:"liquidity_warning,omitempty"`
}

// ScoreBreakdown exposes the four weighted sub-scores.
type ScoreBreakdown struct {
	Profit     int `json:"profit"`
	Demand     int `json:"demand"`
	Confidence int `json:"confidence"`
	Risk       int `json:"risk"`
}

// DealScore is the 0-100 composite plus its display mapping.
type DealScore struct {
	Score     int            `json:"score"`
	Verdict   Verdict        `json:"verdict"`
	Color     string         `json:"color"`
	Summary   string         `json:"summary"`
	Breakdown ScoreBreakdown `json:"breakdown"`
}

// Summary is the full pricing-engine output for one query.
type Summary struct {
	ActiveCount         int            `json:"active_listings_count"`
	SoldCount           int            `json:"sold_listings_count"`
	TotalActiveOnMarket int            `json:"total_active_on_market"`
	AskingPrice         PriceStats     `json:"asking_price"`
	SoldPrice           PriceStats     `json:"sold_price"`
	SellThrough         SellThrough    `json:"sell_through"`
	Recommendation      Recommendation `json:"recommendation"`
	DealScore           DealScore      `json:"deal_score"`
}

// Analyze computes the market summary for one query from active and sold
// samples plus the source-reported totals. Totals may exceed the sample
// sizes; totalCompleted drives sell-through and may itself be a sold-count
// stand-in on rate-limited scan paths.
func Analyze(active, sold []listing.Listing, totalActive, totalSold, totalCompleted int) Summary {
	activePrices := listing.Prices(active)
	soldPrices := listing.Prices(sold)

	askingStats := stats(activePrices)
	soldStats := stats(soldPrices)

	// Reference price: sold median when we have one, else asking median.
	reference := soldStats.Median
	if reference == nil {
		reference = askingStats.Median
	}

	sellThrough := calcSellThrough(sold, totalSold, totalCompleted, totalActive)
	rec := recommend(reference, soldPrices, sellThrough.Liquidity)
	score := scoreDeal(rec, sellThrough)

	return Summary{
		ActiveCount:         len(activePrices),
		SoldCount:           len(soldPrices),
		TotalActiveOnMarket: totalActive,
		AskingPrice:         askingStats,
		SoldPrice:           soldStats,
		SellThrough:         sellThrough,
		Recommendation:      rec,
		DealScore:           score,
	}
}

func stats(prices []decimal.Decimal) PriceStats {
	if len(prices) == 0 {
		return PriceStats{}
	}

	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	avg := decimal.Avg(sorted[0], sorted[1:]...).Round(2)
	med := median(sorted).Round(2)
	low := sorted[0].Round(2)
	high := sorted[len(sorted)-1].Round(2)

	return PriceStats{Average: &avg, Median: &med, Low: &low, High: &high}
}

// median expects a sorted slice.
func median(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return decimal.Avg(sorted[n/2-1], sorted[n/2])
}

func calcSellThrough(sold []listing.Listing, totalSold, totalCompleted, totalActive int) SellThrough {
	st := SellThrough{
		TotalSold:      totalSold,
		TotalCompleted: totalCompleted,
		TotalActive:    totalActive,
	}

	if totalCompleted > 0 {
		pct := decimal.NewFromInt(int64(totalSold)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(totalCompleted))).
			Round(1)
		st.Percent = &pct
	}

	// Average days to sell from sold timestamps that parse, bounded to
	// the recency window.
	now := time.Now().UTC()
	var dayDiffs []decimal.Decimal
	for _, item := range sold {
		if item.SoldDate == "" {
			continue
		}
		soldAt, err := parseSoldDate(item.SoldDate)
		if err != nil {
			continue
		}
		days := int(now.Sub(soldAt).Hours() / 24)
		if days >= 0 && days <= soldWindowDays {
			dayDiffs = append(dayDiffs, decimal.NewFromInt(int64(days)))
		}
	}
	if len(dayDiffs) > 0 {
		avg := decimal.Avg(dayDiffs[0], dayDiffs[1:]...).Round(1)
		st.AvgDaysToSell = &avg
	}

	switch {
	case st.Percent != nil:
		pct := st.Percent.InexactFloat64()
		switch {
		case pct >= 60:
			st.Liquidity = LiquidityHot
		case pct >= 35:
			st.Liquidity = LiquiditySteady
		case pct >= 15:
			st.Liquidity = LiquiditySlow
		default:
			st.Liquidity = LiquidityDead
		}
	case totalSold > 10:
		st.Liquidity = LiquiditySteady
	default:
		st.Liquidity = LiquidityUnknown
	}

	if totalActive > 0 && totalSold > 0 {
		ratio := float64(totalSold) / float64(totalActive)
		switch {
		case ratio > 1.5:
			st.SupplyDemandNote = "High demand, low supply"
		case ratio > 0.7:
			st.SupplyDemandNote = "Balanced market"
		case ratio > 0.3:
			st.SupplyDemandNote = "Moderate supply"
		default:
			st.SupplyDemandNote = "Oversaturated — lots of competition"
		}
	}

	return st
}

func parseSoldDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", raw)
}

func recommend(reference *decimal.Decimal, soldPrices []decimal.Decimal, liquidity Liquidity) Recommendation {
	if reference == nil {
		return Recommendation{Confidence: ConfidenceLow}
	}

	one := decimal.NewFromInt(1)
	netAfterFees := reference.Mul(one.Sub(feeRate)).Sub(avgShipping)
	maxBuy := netAfterFees.Div(one.Add(targetROI))
	estProfit := netAfterFees.Sub(maxBuy)

	confidence := ConfidenceLow
	switch {
	case len(soldPrices) >= 10:
		confidence = ConfidenceHigh
	case len(soldPrices) >= 5:
		confidence = ConfidenceMedium
	}

	var spreadWarning string
	if len(soldPrices) >= 3 {
		if cv := coefficientOfVariation(soldPrices); cv > 0.5 {
			spreadWarning = "High price variance — condition and exact model matter a lot. Be cautious."
			maxBuy = maxBuy.Mul(decimal.NewFromFloat(0.8))
			estProfit = netAfterFees.Sub(maxBuy)
		}
	}

	var liquidityWarning string
	switch liquidity {
	case LiquidityDead:
		liquidityWarning = "Very low sell-through. This item may sit for months."
		maxBuy = maxBuy.Mul(decimal.NewFromFloat(0.6))
		estProfit = netAfterFees.Sub(maxBuy)
	case LiquiditySlow:
		liquidityWarning = "Slow seller — be patient or price aggressively."
		maxBuy = maxBuy.Mul(decimal.NewFromFloat(0.85))
		estProfit = netAfterFees.Sub(maxBuy)
	}

	// ROI is computed from the pre-clamp figures; a non-positive max buy
	// yields an ROI of zero, never a division error.
	roi := decimal.Zero
	if maxBuy.IsPositive() {
		roi = estProfit.Div(maxBuy).Mul(decimal.NewFromInt(100)).Round(1)
	}

	clampedBuy := decimal.Max(maxBuy, decimal.Zero).Round(2)
	clampedProfit := decimal.Max(estProfit, decimal.Zero).Round(2)
	estSell := reference.Round(2)
	net := netAfterFees.Round(2)

	return Recommendation{
		MaxBuyPrice:        &clampedBuy,
		EstimatedSellPrice: &estSell,
		NetAfterFees:       &net,
		EstimatedProfit:    &clampedProfit,
		ROIPercent:         &roi,
		Confidence:         confidence,
		SpreadWarning:      spreadWarning,
		LiquidityWarning:   liquidityWarning,
	}
}

// coefficientOfVariation uses the sample standard deviation; decimal has
// no square root so this one check runs in float64.
func coefficientOfVariation(prices []decimal.Decimal) float64 {
	n := float64(len(prices))
	var sum float64
	vals := make([]float64, len(prices))
	for i, p := range prices {
		vals[i] = p.InexactFloat64()
		sum += vals[i]
	}
	mean := sum / n
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range vals {
		sq += (v - mean) * (v - mean)
	}
	stdev := math.Sqrt(sq / (n - 1))
	return stdev / mean
}

// Sub-score weights: profit 40%, demand 35%, confidence 15%, risk 10%.
func scoreDeal(rec Recommendation, st SellThrough) DealScore {
	if rec.MaxBuyPrice == nil || rec.EstimatedProfit == nil {
		return DealScore{
			Score:   0,
			Verdict: VerdictNoData,
			Color:   "gray",
			Summary: "Not enough market data.",
		}
	}

	roi := 0.0
	if rec.ROIPercent != nil {
		roi = rec.ROIPercent.InexactFloat64()
	}

	var profitScore float64
	switch {
	case roi >= 100:
		profitScore = 100
	case roi >= 60:
		profitScore = 80
	case roi >= 40:
		profitScore = 60
	case roi >= 20:
		profitScore = 40
	default:
		profitScore = math.Max(roi, 0)
	}

	var demandScore float64
	switch {
	case st.Percent != nil:
		demandScore = math.Min(st.Percent.InexactFloat64()*1.5, 100)
	case st.Liquidity == LiquidityHot:
		demandScore = 80
	case st.Liquidity == LiquiditySteady:
		demandScore = 55
	default:
		demandScore = 30
	}

	confScore := 25.0
	switch rec.Confidence {
	case ConfidenceHigh:
		confScore = 100
	case ConfidenceMedium:
		confScore = 60
	}

	riskScore := 80.0
	if rec.SpreadWarning != "" {
		riskScore -= 30
	}
	if rec.LiquidityWarning != "" {
		riskScore -= 20
	}
	riskScore = math.Max(riskScore, 0)

	composite := profitScore*0.40 + demandScore*0.35 + confScore*0.15 + riskScore*0.10

	var verdict Verdict
	var color string
	switch {
	case composite >= 75:
		verdict, color = VerdictHot, "green"
	case composite >= 55:
		verdict, color = VerdictGood, "blue"
	case composite >= 35:
		verdict, color = VerdictOkay, "yellow"
	default:
		verdict, color = VerdictPass, "red"
	}

	summaries := map[Verdict]string{
		VerdictHot:  "Strong profit margin with solid demand. Buy with confidence.",
		VerdictGood: "Decent profit potential. Worth picking up at the right price.",
		VerdictOkay: "Marginal opportunity. Only buy if priced well below the max.",
		VerdictPass: "Low margin or poor sell-through. Skip this one.",
	}

	return DealScore{
		Score:   int(math.Round(composite)),
		Verdict: verdict,
		Color:   color,
		Summary: summaries[verdict],
		Breakdown: ScoreBreakdown{
			Profit:     int(math.Round(profitScore)),
			Demand:     int(math.Round(demandScore)),
			Confidence: int(math.Round(confScore)),
			Risk:       int(math.Round(riskScore)),
		},
	}
}
