// Package analytics implements the request/response contract of the
// portfolio analytics worker. Computations are pure and synchronous; the
// package guarantees exactly one response per request.
package analytics

import (
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Request types understood by the worker.
const (
	TypePortfolioValue     = "CALCULATE_PORTFOLIO_VALUE"
	TypeMarketData         = "PROCESS_MARKET_DATA"
	TypePerformanceMetrics = "CALCULATE_PERFORMANCE_METRICS"
	TypeChartData          = "PROCESS_CHART_DATA"
	TypeStockTrends        = "ANALYZE_STOCK_TRENDS"
	TypeRiskMetrics        = "CALCULATE_RISK_METRICS"
	TypeWatchlistAnalysis  = "PROCESS_WATCHLIST_ANALYSIS"
)

// Response types.
const (
	TypeSuccess = "SUCCESS"
	TypeError   = "ERROR"
)

// Request is one analytics computation request.
type Request struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Response carries either a result or an error, never both, always with
// the request's ID.
type Response struct {
	Type   string     `json:"type"`
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed computation.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Processor dispatches analytics requests.
type Processor struct {
	logger zerolog.Logger
}

// NewProcessor creates an analytics processor.
func NewProcessor(logger zerolog.Logger) *Processor {
	return &Processor{logger: logger}
}

// Process runs one request and always returns exactly one response carrying
// the request's ID. Unknown types and panics become ERROR responses.
func (p *Processor) Process(req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("type", req.Type).Str("id", req.ID).
				Interface("panic", r).Msg("Analytics computation panicked")
			resp = errorResponse(req.ID, fmt.Sprintf("internal error: %v", r), string(debug.Stack()))
		}
	}()

	result, err := p.dispatch(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("type", req.Type).Str("id", req.ID).Msg("Analytics request failed")
		return errorResponse(req.ID, err.Error(), "")
	}
	return Response{Type: TypeSuccess, ID: req.ID, Result: result}
}

func (p *Processor) dispatch(req Request) (any, error) {
	switch req.Type {
	case TypePortfolioValue:
		var holdings []Holding
		if err := decode(req.Data, &holdings); err != nil {
			return nil, err
		}
		return PortfolioValue(holdings), nil

	case TypeMarketData:
		var quotes []Quote
		if err := decode(req.Data, &quotes); err != nil {
			return nil, err
		}
		return ProcessMarketData(quotes), nil

	case TypePerformanceMetrics:
		var values []float64
		if err := decode(req.Data, &values); err != nil {
			return nil, err
		}
		return PerformanceMetrics(values), nil

	case TypeChartData:
		var in ChartInput
		if err := decode(req.Data, &in); err != nil {
			return nil, err
		}
		return ProcessChartData(in), nil

	case TypeStockTrends:
		var closes []float64
		if err := decode(req.Data, &closes); err != nil {
			return nil, err
		}
		return AnalyzeTrend(closes), nil

	case TypeRiskMetrics:
		var values []float64
		if err := decode(req.Data, &values); err != nil {
			return nil, err
		}
		return RiskMetrics(values), nil

	case TypeWatchlistAnalysis:
		var quotes []Quote
		if err := decode(req.Data, &quotes); err != nil {
			return nil, err
		}
		return WatchlistAnalysis(quotes), nil

	default:
		return nil, fmt.Errorf("unknown request type %q", req.Type)
	}
}

func decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("missing request data")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request data: %w", err)
	}
	return nil
}

func errorResponse(id, message, stack string) Response {
	return Response{
		Type:  TypeError,
		ID:    id,
		Error: &ErrorInfo{Message: message, Stack: stack},
	}
}
