package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/username/galculator/backend/src/backtest"
	"github.com/username/galculator/backend/src/config"
	"github.com/username/galculator/backend/src/database"
	"github.com/username/galculator/backend/src/logger"
	"github.com/username/galculator/backend/src/model"
	"golang.org/x/net/publicsuffix"
)

const yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// --- API Response Structs ---

type yahooHistoryResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// symbolHistory is one symbol's raw daily bars keyed by "YYYY-MM-DD".
type symbolHistory struct {
	open     map[string]float64
	close    map[string]float64
	adjClose map[string]float64
}

func newSymbolHistory() *symbolHistory {
	return &symbolHistory{
		open:     make(map[string]float64),
		close:    make(map[string]float64),
		adjClose: make(map[string]float64),
	}
}

// --- Service Implementation ---

type marketDataServiceImpl struct {
	httpClient    http.Client
	isInitialized bool
	crumb         string
	mu            sync.Mutex
	cache         *gocache.Cache
}

func NewMarketDataService() MarketDataService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	client := http.Client{
		Jar:     jar,
		Timeout: config.Cfg.MarketDataTimeout,
	}

	s := &marketDataServiceImpl{
		httpClient:    client,
		isInitialized: false,
		cache:         gocache.New(config.Cfg.PriceCacheTTL, 10*time.Minute),
	}

	go s.initializeYahooSession()

	return s
}

func (s *marketDataServiceImpl) initializeYahooSession() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized && s.crumb != "" {
		return
	}

	logger.L.Info("Initializing Yahoo Finance session and fetching Crumb...")

	req1, _ := http.NewRequest("GET", "https://fc.yahoo.com", nil)
	req1.Header.Set("User-Agent", yahooUserAgent)
	resp1, err := s.httpClient.Do(req1)
	if err == nil {
		io.Copy(io.Discard, resp1.Body)
		resp1.Body.Close()
	}

	req2, _ := http.NewRequest("GET", "https://finance.yahoo.com", nil)
	req2.Header.Set("User-Agent", yahooUserAgent)
	resp2, err := s.httpClient.Do(req2)
	if err == nil {
		io.Copy(io.Discard, resp2.Body)
		resp2.Body.Close()
	}

	req3, _ := http.NewRequest("GET", "https://query1.finance.yahoo.com/v1/test/getcrumb", nil)
	req3.Header.Set("User-Agent", yahooUserAgent)
	resp3, err := s.httpClient.Do(req3)
	if err != nil {
		logger.L.Error("Failed to fetch crumb", "error", err)
		return
	}
	defer resp3.Body.Close()

	if resp3.StatusCode == http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp3.Body)
		s.crumb = string(bodyBytes)
		s.isInitialized = true
		logger.L.Info("Yahoo session initialized successfully")
	} else {
		logger.L.Warn("Failed to fetch crumb", "status", resp3.Status)
	}
}

func (s *marketDataServiceImpl) ensureSession() {
	s.mu.Lock()
	needsInit := !s.isInitialized || s.crumb == ""
	s.mu.Unlock()

	if needsInit {
		s.initializeYahooSession()
	}
}

// FetchDailyPrices builds a calendar-indexed price table for the requested
// symbols. Results are memoized per (symbols, range) for the configured TTL.
// Symbols that fail over the network fall back to the local archive; a symbol
// absent from both is simply left out of the table and the simulator's
// first-valid-date logic deals with it.
func (s *marketDataServiceImpl) FetchDailyPrices(symbols []string, start, end time.Time) (*backtest.PriceTable, error) {
	cacheKey := fmt.Sprintf("%s|%s|%s",
		strings.Join(symbols, ","), start.Format("2006-01-02"), end.Format("2006-01-02"))
	if cached, found := s.cache.Get(cacheKey); found {
		return cached.(*backtest.PriceTable), nil
	}

	s.ensureSession()

	histories := make(map[string]*symbolHistory)
	var fetched []model.DailyPrice

	for _, symbol := range symbols {
		hist, err := s.fetchSymbolHistory(symbol, start, end)
		if err != nil {
			logger.L.Warn("Network fetch failed, trying local archive", "symbol", symbol, "error", err)
			hist, err = s.archivedHistory(symbol, start, end)
			if err != nil || len(hist.adjClose) == 0 && len(hist.close) == 0 {
				logger.L.Warn("No data for symbol from network or archive", "symbol", symbol)
				continue
			}
			histories[symbol] = hist
			continue
		}
		histories[symbol] = hist
		fetched = append(fetched, historyToRows(symbol, hist)...)
	}

	if len(histories) == 0 {
		return nil, ErrNoMarketData
	}

	table, err := buildPriceTable(histories)
	if err != nil {
		return nil, err
	}

	// Archive successful fetches so a later network outage degrades
	// gracefully instead of failing the request.
	if len(fetched) > 0 {
		go func(rows []model.DailyPrice) {
			if err := model.UpsertDailyPrices(database.DB, rows); err != nil {
				logger.L.Warn("Failed to archive daily prices", "rows", len(rows), "error", err)
			}
		}(fetched)
	}

	s.cache.Set(cacheKey, table, gocache.DefaultExpiration)
	return table, nil
}

func (s *marketDataServiceImpl) fetchSymbolHistory(symbol string, start, end time.Time) (*symbolHistory, error) {
	// end+1d so the final trading day is inside the half-open Yahoo window.
	url := fmt.Sprintf(
		"https://query1.finance.yahoo.com/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&crumb=%s",
		symbol, start.Unix(), end.AddDate(0, 0, 1).Unix(), s.crumb)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Yahoo chart API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 401 {
		s.mu.Lock()
		s.isInitialized = false
		s.mu.Unlock()
		return nil, fmt.Errorf("status 401 (Unauthorized) - Crumb invalid")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart API returned non-OK status %d", resp.StatusCode)
	}

	var data yahooHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode Yahoo chart response: %w", err)
	}
	if data.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart API returned an error: %v", data.Chart.Error)
	}
	if len(data.Chart.Result) == 0 {
		return nil, fmt.Errorf("no history result for %s", symbol)
	}

	result := data.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}
	quote := result.Indicators.Quote[0]

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	hist := newSymbolHistory()
	for i, ts := range result.Timestamp {
		dateStr := time.Unix(ts, 0).UTC().Format("2006-01-02")
		if i < len(quote.Open) && quote.Open[i] != nil {
			hist.open[dateStr] = *quote.Open[i]
		}
		if i < len(quote.Close) && quote.Close[i] != nil {
			hist.close[dateStr] = *quote.Close[i]
		}
		if i < len(adj) && adj[i] != nil {
			hist.adjClose[dateStr] = *adj[i]
		}
	}
	return hist, nil
}

// archivedHistory rebuilds a symbol's bars from the daily_prices table.
func (s *marketDataServiceImpl) archivedHistory(symbol string, start, end time.Time) (*symbolHistory, error) {
	rows, err := model.GetDailyPrices(database.DB, symbol,
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	hist := newSymbolHistory()
	for _, row := range rows {
		if row.Open.Valid {
			hist.open[row.Date] = row.Open.Float64
		}
		if row.Close.Valid {
			hist.close[row.Date] = row.Close.Float64
		}
		if row.AdjClose.Valid {
			hist.adjClose[row.Date] = row.AdjClose.Float64
		}
	}
	return hist, nil
}

func historyToRows(symbol string, hist *symbolHistory) []model.DailyPrice {
	dates := make(map[string]bool)
	for d := range hist.open {
		dates[d] = true
	}
	for d := range hist.close {
		dates[d] = true
	}
	for d := range hist.adjClose {
		dates[d] = true
	}

	rows := make([]model.DailyPrice, 0, len(dates))
	for d := range dates {
		row := model.DailyPrice{Symbol: symbol, Date: d}
		if v, ok := hist.open[d]; ok {
			row.Open = sql.NullFloat64{Float64: v, Valid: true}
		}
		if v, ok := hist.close[d]; ok {
			row.Close = sql.NullFloat64{Float64: v, Valid: true}
		}
		if v, ok := hist.adjClose[d]; ok {
			row.AdjClose = sql.NullFloat64{Float64: v, Valid: true}
		}
		rows = append(rows, row)
	}
	return rows
}

// buildPriceTable unions every symbol's observed dates into one sorted axis
// and fills the table cell by cell. Dates a symbol never traded stay NaN.
func buildPriceTable(histories map[string]*symbolHistory) (*backtest.PriceTable, error) {
	dateSet := make(map[string]bool)
	for _, hist := range histories {
		for d := range hist.open {
			dateSet[d] = true
		}
		for d := range hist.close {
			dateSet[d] = true
		}
		for d := range hist.adjClose {
			dateSet[d] = true
		}
	}
	if len(dateSet) == 0 {
		return nil, ErrNoMarketData
	}

	dateStrs := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dateStrs = append(dateStrs, d)
	}
	sort.Strings(dateStrs)

	dates := make([]time.Time, len(dateStrs))
	for i, d := range dateStrs {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return nil, fmt.Errorf("bad date key %q: %w", d, err)
		}
		dates[i] = t
	}

	table, err := backtest.NewPriceTable(dates)
	if err != nil {
		return nil, err
	}
	for symbol, hist := range histories {
		for i, d := range dateStrs {
			if v, ok := hist.open[d]; ok && !math.IsNaN(v) {
				table.Set(dates[i], symbol, backtest.FieldOpen, v)
			}
			if v, ok := hist.close[d]; ok && !math.IsNaN(v) {
				table.Set(dates[i], symbol, backtest.FieldClose, v)
			}
			if v, ok := hist.adjClose[d]; ok && !math.IsNaN(v) {
				table.Set(dates[i], symbol, backtest.FieldAdjClose, v)
			}
		}
	}
	return table, nil
}

func (s *marketDataServiceImpl) ArchivedPriceCount() (int64, error) {
	return model.CountDailyPrices(database.DB)
}
