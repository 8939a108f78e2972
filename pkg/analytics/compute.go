package analytics

import (
	"math"
	"sort"
	"time"
)

// Holding is one portfolio position.
type Holding struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	CurrentPrice float64 `json:"currentPrice"`
}

// PortfolioSummary is the result of CALCULATE_PORTFOLIO_VALUE.
type PortfolioSummary struct {
	TotalValue           float64        `json:"totalValue"`
	TotalCost            float64        `json:"totalCost"`
	TotalGainLoss        float64        `json:"totalGainLoss"`
	TotalGainLossPercent float64        `json:"totalGainLossPercent"`
	Holdings             []HoldingValue `json:"holdings"`
}

// HoldingValue is the per-position breakdown within a portfolio summary.
type HoldingValue struct {
	Symbol          string  `json:"symbol"`
	Value           float64 `json:"value"`
	Cost            float64 `json:"cost"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercent"`
}

// PortfolioValue aggregates position values against their cost basis.
func PortfolioValue(holdings []Holding) PortfolioSummary {
	summary := PortfolioSummary{Holdings: make([]HoldingValue, 0, len(holdings))}
	for _, h := range holdings {
		value := h.Quantity * h.CurrentPrice
		cost := h.Quantity * h.AveragePrice
		hv := HoldingValue{
			Symbol:   h.Symbol,
			Value:    value,
			Cost:     cost,
			GainLoss: value - cost,
		}
		if cost != 0 {
			hv.GainLossPercent = (value - cost) / cost * 100
		}
		summary.Holdings = append(summary.Holdings, hv)
		summary.TotalValue += value
		summary.TotalCost += cost
	}
	summary.TotalGainLoss = summary.TotalValue - summary.TotalCost
	if summary.TotalCost != 0 {
		summary.TotalGainLossPercent = summary.TotalGainLoss / summary.TotalCost * 100
	}
	return summary
}

// Quote is one market quote as delivered by the data feed.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previousClose"`
	Volume        int64   `json:"volume"`
}

// ProcessedQuote is a quote enriched with day-over-day movement.
type ProcessedQuote struct {
	Quote
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Direction     string  `json:"direction"` // "up", "down" or "flat"
}

// ProcessMarketData derives change and direction for each quote.
func ProcessMarketData(quotes []Quote) []ProcessedQuote {
	out := make([]ProcessedQuote, 0, len(quotes))
	for _, q := range quotes {
		pq := ProcessedQuote{Quote: q, Change: q.Price - q.PreviousClose}
		if q.PreviousClose != 0 {
			pq.ChangePercent = pq.Change / q.PreviousClose * 100
		}
		switch {
		case pq.Change > 0:
			pq.Direction = "up"
		case pq.Change < 0:
			pq.Direction = "down"
		default:
			pq.Direction = "flat"
		}
		out = append(out, pq)
	}
	return out
}

// PerformanceReport is the result of CALCULATE_PERFORMANCE_METRICS over a
// series of portfolio values.
type PerformanceReport struct {
	TotalReturn        float64 `json:"totalReturn"`
	TotalReturnPercent float64 `json:"totalReturnPercent"`
	BestDayPercent     float64 `json:"bestDayPercent"`
	WorstDayPercent    float64 `json:"worstDayPercent"`
	AvgDailyPercent    float64 `json:"avgDailyPercent"`
}

// PerformanceMetrics summarizes day-over-day returns of a value series.
func PerformanceMetrics(values []float64) PerformanceReport {
	var report PerformanceReport
	if len(values) < 2 {
		return report
	}

	first, last := values[0], values[len(values)-1]
	report.TotalReturn = last - first
	if first != 0 {
		report.TotalReturnPercent = report.TotalReturn / first * 100
	}

	returns := dailyReturns(values)
	report.BestDayPercent = returns[0]
	report.WorstDayPercent = returns[0]
	var sum float64
	for _, r := range returns {
		if r > report.BestDayPercent {
			report.BestDayPercent = r
		}
		if r < report.WorstDayPercent {
			report.WorstDayPercent = r
		}
		sum += r
	}
	report.AvgDailyPercent = sum / float64(len(returns))
	return report
}

// ChartInput is the payload of PROCESS_CHART_DATA.
type ChartInput struct {
	Points    []ChartPoint `json:"points"`
	MaxPoints int          `json:"maxPoints"`
}

// ChartPoint is one time-series sample.
type ChartPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// ChartOutput is a downsampled, render-ready series with range markers.
type ChartOutput struct {
	Points []ChartPoint `json:"points"`
	Min    float64      `json:"min"`
	Max    float64      `json:"max"`
	First  float64      `json:"first"`
	Last   float64      `json:"last"`
}

// ProcessChartData sorts the series by time, downsamples it to at most
// MaxPoints and computes range markers. MaxPoints <= 0 keeps every point.
func ProcessChartData(in ChartInput) ChartOutput {
	points := append([]ChartPoint(nil), in.Points...)
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })

	var out ChartOutput
	if len(points) == 0 {
		out.Points = []ChartPoint{}
		return out
	}

	if in.MaxPoints > 0 && len(points) > in.MaxPoints {
		points = downsample(points, in.MaxPoints)
	}
	out.Points = points
	out.First = points[0].Value
	out.Last = points[len(points)-1].Value
	out.Min = points[0].Value
	out.Max = points[0].Value
	for _, p := range points {
		if p.Value < out.Min {
			out.Min = p.Value
		}
		if p.Value > out.Max {
			out.Max = p.Value
		}
	}
	return out
}

// downsample keeps max evenly spaced points, always retaining the last one.
func downsample(points []ChartPoint, max int) []ChartPoint {
	if max < 2 {
		return []ChartPoint{points[len(points)-1]}
	}
	out := make([]ChartPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		out = append(out, points[int(math.Round(float64(i)*step))])
	}
	return out
}

// TrendReport is the result of ANALYZE_STOCK_TRENDS over a close series.
type TrendReport struct {
	Trend      string  `json:"trend"` // "bullish", "bearish" or "neutral"
	ShortMA    float64 `json:"shortMA"`
	LongMA     float64 `json:"longMA"`
	Momentum   float64 `json:"momentum"`
	DataPoints int     `json:"dataPoints"`
}

// AnalyzeTrend compares a short moving average against a long one. Fewer
// than two closes yields a neutral report.
func AnalyzeTrend(closes []float64) TrendReport {
	report := TrendReport{Trend: "neutral", DataPoints: len(closes)}
	if len(closes) < 2 {
		return report
	}

	shortWindow := minInt(5, len(closes))
	longWindow := minInt(20, len(closes))
	report.ShortMA = tailAverage(closes, shortWindow)
	report.LongMA = tailAverage(closes, longWindow)
	report.Momentum = closes[len(closes)-1] - closes[0]

	switch {
	case report.ShortMA > report.LongMA:
		report.Trend = "bullish"
	case report.ShortMA < report.LongMA:
		report.Trend = "bearish"
	}
	return report
}

// RiskReport is the result of CALCULATE_RISK_METRICS over a value series.
type RiskReport struct {
	Volatility  float64 `json:"volatility"` // stddev of daily returns, percent
	MaxDrawdown float64 `json:"maxDrawdown"`
	SharpeRatio float64 `json:"sharpeRatio"`
}

// RiskMetrics computes volatility, maximum drawdown and a zero-rate Sharpe
// ratio from a portfolio value series.
func RiskMetrics(values []float64) RiskReport {
	var report RiskReport
	if len(values) < 2 {
		return report
	}

	returns := dailyReturns(values)
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	report.Volatility = math.Sqrt(variance)
	if report.Volatility != 0 {
		report.SharpeRatio = mean / report.Volatility
	}

	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak != 0 {
			drawdown := (peak - v) / peak * 100
			if drawdown > report.MaxDrawdown {
				report.MaxDrawdown = drawdown
			}
		}
	}
	return report
}

// WatchlistReport is the result of PROCESS_WATCHLIST_ANALYSIS.
type WatchlistReport struct {
	TopGainer *ProcessedQuote `json:"topGainer"`
	TopLoser  *ProcessedQuote `json:"topLoser"`
	Advancing int             `json:"advancing"`
	Declining int             `json:"declining"`
	Unchanged int             `json:"unchanged"`
}

// WatchlistAnalysis finds extremes and breadth across a watchlist.
func WatchlistAnalysis(quotes []Quote) WatchlistReport {
	var report WatchlistReport
	processed := ProcessMarketData(quotes)
	for i := range processed {
		pq := &processed[i]
		switch pq.Direction {
		case "up":
			report.Advancing++
		case "down":
			report.Declining++
		default:
			report.Unchanged++
		}
		if report.TopGainer == nil || pq.ChangePercent > report.TopGainer.ChangePercent {
			report.TopGainer = pq
		}
		if report.TopLoser == nil || pq.ChangePercent < report.TopLoser.ChangePercent {
			report.TopLoser = pq
		}
	}
	return report
}

// dailyReturns converts a value series into percent day-over-day returns.
// A zero previous value contributes a zero return.
func dailyReturns(values []float64) []float64 {
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1]*100)
	}
	return returns
}

func tailAverage(values []float64, window int) float64 {
	tail := values[len(values)-window:]
	sum := 0.0
	for _, v := range tail {
		sum += v
	}
	return sum / float64(window)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
