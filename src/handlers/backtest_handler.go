package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/username/galculator/backend/src/backtest"
	"github.com/username/galculator/backend/src/database"
	"github.com/username/galculator/backend/src/logger"
	"github.com/username/galculator/backend/src/model"
	"github.com/username/galculator/backend/src/models"
	"github.com/username/galculator/backend/src/security/validation"
	"github.com/username/galculator/backend/src/services"
)

type BacktestHandler struct {
	engine       *backtest.Engine
	chartService services.ChartService
}

func NewBacktestHandler(engine *backtest.Engine, chartService services.ChartService) *BacktestHandler {
	return &BacktestHandler{
		engine:       engine,
		chartService: chartService,
	}
}

// parseAndValidate decodes the request body and runs full request validation.
// The returned dates are the parsed bounds of the simulation window.
func parseAndValidate(r *http.Request) (*models.BacktestRequest, time.Time, time.Time, error) {
	var req models.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, time.Time{}, time.Time{}, errors.New("invalid request body")
	}
	if err := validation.ValidateBacktestRequest(&req); err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	start, _ := time.Parse("2006-01-02", req.StartDate)
	end, _ := time.Parse("2006-01-02", req.EndDate)
	return &req, start, end, nil
}

// requestSymbols lists the distinct non-cash symbols across all portfolios,
// sorted, for the usage log.
func requestSymbols(req *models.BacktestRequest) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, def := range req.Portfolios {
		for _, asset := range def.Assets {
			if asset.Symbol == backtest.CashSymbol || seen[asset.Symbol] {
				continue
			}
			seen[asset.Symbol] = true
			symbols = append(symbols, asset.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

func (h *BacktestHandler) recordRun(r *http.Request, req *models.BacktestRequest, result *models.BacktestResult, elapsed time.Duration) {
	userID, _ := GetUserIDFromContext(r.Context())
	run := &model.BacktestRun{
		UserID:          userID,
		PortfolioCount:  len(req.Portfolios),
		Symbols:         strings.Join(requestSymbols(req), ","),
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		CommonStartDate: result.CommonStartDate,
		DurationMs:      elapsed.Milliseconds(),
	}
	go func() {
		if err := model.InsertBacktestRun(database.DB, run); err != nil {
			logger.L.Warn("Failed to record backtest run", "error", err)
		}
		if userID != 0 {
			if err := model.IncrementUserBacktestCount(database.DB, userID); err != nil {
				logger.L.Warn("Failed to bump user run counter", "userID", userID, "error", err)
			}
		}
	}()
}

func (h *BacktestHandler) HandleRunBacktest(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	req, start, end, err := parseAndValidate(r)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	began := time.Now()
	result, err := h.engine.Run(*req, start, end)
	if err != nil {
		switch {
		case errors.Is(err, backtest.ErrNoValidAsset):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, backtest.ErrNoPriceData), errors.Is(err, services.ErrNoMarketData):
			sendJSONError(w, "No price data available for the requested symbols and range", http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Backtest run failed", "error", err)
			sendJSONError(w, "Backtest failed", http.StatusInternalServerError)
		}
		return
	}
	elapsed := time.Since(began)

	ctxLogger.Info("Backtest completed",
		"portfolios", len(req.Portfolios),
		"commonStart", result.CommonStartDate,
		"durationMs", elapsed.Milliseconds())

	h.recordRun(r, req, result, elapsed)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleBacktestChart runs the same simulation and responds with a PNG.
// The default chart is the monthly balance trajectory, one line per
// portfolio; ?kind=annual switches to grouped calendar-year return bars.
func (h *BacktestHandler) HandleBacktestChart(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	req, start, end, err := parseAndValidate(r)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.engine.Run(*req, start, end)
	if err != nil {
		switch {
		case errors.Is(err, backtest.ErrNoValidAsset):
			sendJSONError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, backtest.ErrNoPriceData), errors.Is(err, services.ErrNoMarketData):
			sendJSONError(w, "No price data available for the requested symbols and range", http.StatusUnprocessableEntity)
		default:
			ctxLogger.Error("Backtest run failed for chart", "error", err)
			sendJSONError(w, "Backtest failed", http.StatusInternalServerError)
		}
		return
	}

	var png []byte
	if r.URL.Query().Get("kind") == "annual" {
		series := make([]services.AnnualSeries, 0, len(result.Portfolios))
		for _, report := range result.Portfolios {
			if len(report.AnnualReturns) == 0 {
				continue
			}
			series = append(series, services.AnnualSeries{
				Name:    report.Summary.Name,
				Returns: report.AnnualReturns,
			})
		}
		png, err = h.chartService.RenderAnnualReturns("Annual returns (%)", series)
	} else {
		series := make([]services.EquitySeries, 0, len(result.Portfolios))
		for _, report := range result.Portfolios {
			s := services.EquitySeries{Name: report.Summary.Name}
			for _, point := range report.Monthly {
				d, err := time.Parse("2006-01", point.Month)
				if err != nil {
					continue
				}
				s.Dates = append(s.Dates, d)
				s.Values = append(s.Values, point.TotalValue)
			}
			if len(s.Dates) > 0 {
				series = append(series, s)
			}
		}
		png, err = h.chartService.RenderEquityCurves("Portfolio value over time", series)
	}
	if err != nil {
		if errors.Is(err, services.ErrEmptyHistory) {
			sendJSONError(w, "Nothing to draw for the requested range", http.StatusUnprocessableEntity)
			return
		}
		ctxLogger.Error("Chart rendering failed", "error", err)
		sendJSONError(w, "Chart rendering failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}
