package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dealscout/internal/listing"
)

func activeAt(price float64) listing.Listing {
	p := decimal.NewFromFloat(price)
	return listing.Listing{Title: "item", Price: &p, Source: listing.SourceEbay, Type: listing.TypeActive}
}

func soldAt(price float64) listing.Listing {
	p := decimal.NewFromFloat(price)
	return listing.Listing{Title: "item", Price: &p, Source: listing.SourceEbay, Type: listing.TypeSold}
}

func repeatSold(price float64, n int) []listing.Listing {
	out := make([]listing.Listing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, soldAt(price))
	}
	return out
}

func TestAnalyzeNoData(t *testing.T) {
	s := Analyze(nil, nil, 0, 0, 0)

	if s.Recommendation.MaxBuyPrice != nil {
		t.Fatalf("max buy should be nil without data, got %s", s.Recommendation.MaxBuyPrice)
	}
	if s.Recommendation.Confidence != ConfidenceLow {
		t.Fatalf("confidence should degrade to low, got %s", s.Recommendation.Confidence)
	}
	if s.DealScore.Verdict != VerdictNoData || s.DealScore.Score != 0 {
		t.Fatalf("expected NO DATA / 0, got %s / %d", s.DealScore.Verdict, s.DealScore.Score)
	}
}

func TestAnalyzeZeroVarianceHighConfidence(t *testing.T) {
	s := Analyze(nil, repeatSold(100, 12), 0, 12, 0)

	if s.Recommendation.Confidence != ConfidenceHigh {
		t.Fatalf("12 sold samples should be high confidence, got %s", s.Recommendation.Confidence)
	}
	if s.Recommendation.SpreadWarning != "" {
		t.Fatalf("zero variance must not trigger a spread warning: %q", s.Recommendation.SpreadWarning)
	}

	// reference 100: net = 100*0.87 - 7 = 80, max buy = 80/1.40, profit = net - max buy
	wantBuy := decimal.NewFromFloat(57.14)
	if !s.Recommendation.MaxBuyPrice.Equal(wantBuy) {
		t.Fatalf("max buy = %s, want %s", s.Recommendation.MaxBuyPrice, wantBuy)
	}
	wantProfit := decimal.NewFromFloat(22.86)
	if !s.Recommendation.EstimatedProfit.Equal(wantProfit) {
		t.Fatalf("profit = %s, want %s", s.Recommendation.EstimatedProfit, wantProfit)
	}

	// Deterministic composite given fixed weights: profit 60, demand 55
	// (steady via sold-count default), confidence 100, risk 80 -> 66.25.
	if s.DealScore.Verdict != VerdictGood || s.DealScore.Score != 66 {
		t.Fatalf("expected GOOD DEAL / 66, got %s / %d", s.DealScore.Verdict, s.DealScore.Score)
	}
}

func TestAnalyzeClampsNegativeFigures(t *testing.T) {
	// A $5 reference nets negative after fees and shipping.
	s := Analyze(nil, repeatSold(5, 4), 0, 4, 0)

	rec := s.Recommendation
	if rec.MaxBuyPrice.IsNegative() || rec.EstimatedProfit.IsNegative() {
		t.Fatalf("monetary outputs must clamp to >= 0: buy=%s profit=%s", rec.MaxBuyPrice, rec.EstimatedProfit)
	}
	if !rec.MaxBuyPrice.IsZero() {
		t.Fatalf("negative max buy should clamp to zero, got %s", rec.MaxBuyPrice)
	}
	if !rec.ROIPercent.IsZero() {
		t.Fatalf("roi must report 0 when max buy is 0, got %s", rec.ROIPercent)
	}
}

func TestSellThroughPercentAndTiers(t *testing.T) {
	cases := []struct {
		sold, completed int
		wantPct         string
		wantTier        Liquidity
	}{
		{30, 100, "30", LiquiditySlow},
		{15, 100, "15", LiquiditySlow},   // boundary: >= 15
		{35, 100, "35", LiquiditySteady}, // boundary: >= 35
		{60, 100, "60", LiquidityHot},
		{5, 100, "5", LiquidityDead},
	}

	for _, tc := range cases {
		s := Analyze(nil, nil, 0, tc.sold, tc.completed)
		st := s.SellThrough
		if st.Percent == nil {
			t.Fatalf("sold=%d completed=%d: percent should be defined", tc.sold, tc.completed)
		}
		if !st.Percent.Equal(decimal.RequireFromString(tc.wantPct)) {
			t.Fatalf("sold=%d completed=%d: percent = %s, want %s", tc.sold, tc.completed, st.Percent, tc.wantPct)
		}
		if st.Liquidity != tc.wantTier {
			t.Fatalf("percent %s: tier = %s, want %s", st.Percent, st.Liquidity, tc.wantTier)
		}
	}
}

func TestSellThroughUndefined(t *testing.T) {
	s := Analyze(nil, nil, 0, 11, 0)
	if s.SellThrough.Percent != nil {
		t.Fatal("percent must be undefined when completed count is zero")
	}
	if s.SellThrough.Liquidity != LiquiditySteady {
		t.Fatalf("more than 10 sold with unknown STR defaults to steady, got %s", s.SellThrough.Liquidity)
	}

	s = Analyze(nil, nil, 0, 3, 0)
	if s.SellThrough.Liquidity != LiquidityUnknown {
		t.Fatalf("few sold with unknown STR should be unknown, got %s", s.SellThrough.Liquidity)
	}
}

func TestSupplyDemandNote(t *testing.T) {
	cases := []struct {
		sold, active int
		want         string
	}{
		{20, 10, "High demand, low supply"},
		{8, 10, "Balanced market"},
		{4, 10, "Moderate supply"},
		{2, 10, "Oversaturated — lots of competition"},
	}
	for _, tc := range cases {
		s := Analyze(nil, nil, tc.active, tc.sold, 0)
		if s.SellThrough.SupplyDemandNote != tc.want {
			t.Fatalf("sold=%d active=%d: note %q, want %q", tc.sold, tc.active, s.SellThrough.SupplyDemandNote, tc.want)
		}
	}
}

func TestDeadLiquidityShrinksMaxBuy(t *testing.T) {
	base := Analyze(nil, repeatSold(100, 12), 0, 12, 0)
	dead := Analyze(nil, repeatSold(100, 12), 0, 5, 100) // 5% sell-through

	if dead.SellThrough.Liquidity != LiquidityDead {
		t.Fatalf("expected dead liquidity, got %s", dead.SellThrough.Liquidity)
	}
	if dead.Recommendation.LiquidityWarning == "" {
		t.Fatal("dead liquidity should attach a warning")
	}

	want := base.Recommendation.MaxBuyPrice.Mul(decimal.NewFromFloat(0.6)).Round(2)
	if !dead.Recommendation.MaxBuyPrice.Equal(want) {
		t.Fatalf("dead max buy = %s, want 60%% of %s = %s",
			dead.Recommendation.MaxBuyPrice, base.Recommendation.MaxBuyPrice, want)
	}
}

func TestSpreadWarningShrinksMaxBuy(t *testing.T) {
	// Wildly spread sold prices: CV well above 0.5.
	spread := []listing.Listing{soldAt(10), soldAt(20), soldAt(200), soldAt(400)}
	s := Analyze(nil, spread, 0, 4, 0)

	if s.Recommendation.SpreadWarning == "" {
		t.Fatal("high variance should attach a spread warning")
	}
	if s.DealScore.Breakdown.Risk != 50 {
		t.Fatalf("spread warning should cost 30 risk points, got %d", s.DealScore.Breakdown.Risk)
	}
}

func TestAvgDaysToSell(t *testing.T) {
	recent := soldAt(50)
	recent.SoldDate = time.Now().UTC().AddDate(0, 0, -10).Format(time.RFC3339)
	stale := soldAt(50)
	stale.SoldDate = time.Now().UTC().AddDate(-2, 0, 0).Format(time.RFC3339) // outside window
	garbage := soldAt(50)
	garbage.SoldDate = "Sold  Oct 3, 2025"

	s := Analyze(nil, []listing.Listing{recent, stale, garbage}, 0, 3, 0)
	if s.SellThrough.AvgDaysToSell == nil {
		t.Fatal("avg days should be computed from the one parseable, in-window date")
	}
	if !s.SellThrough.AvgDaysToSell.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("avg days = %s, want 10", s.SellThrough.AvgDaysToSell)
	}
}

func TestMedianPrefersSoldOverAsking(t *testing.T) {
	s := Analyze([]listing.Listing{activeAt(10), activeAt(20)}, repeatSold(100, 2), 2, 2, 0)
	if !s.Recommendation.EstimatedSellPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("reference should be the sold median, got %s", s.Recommendation.EstimatedSellPrice)
	}

	s = Analyze([]listing.Listing{activeAt(10), activeAt(20)}, nil, 2, 0, 0)
	if !s.Recommendation.EstimatedSellPrice.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("reference should fall back to the asking median, got %s", s.Recommendation.EstimatedSellPrice)
	}
}

func TestPricelessListingsExcluded(t *testing.T) {
	free := listing.Listing{Title: "no price", Type: listing.TypeActive}
	s := Analyze([]listing.Listing{free, activeAt(30)}, nil, 0, 0, 0)
	if s.ActiveCount != 1 {
		t.Fatalf("priceless listings must not count toward stats, got %d", s.ActiveCount)
	}
}
