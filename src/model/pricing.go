package model

import (
	"database/sql"
	"time"

	"github.com/username/galculator/backend/src/logger"
)

// DailyPrice is one archived daily bar for a symbol. Prices are stored as
// fetched from the upstream provider; NULLs mark fields the provider did not
// report for that day.
type DailyPrice struct {
	Symbol    string
	Date      string // YYYY-MM-DD
	Open      sql.NullFloat64
	Close     sql.NullFloat64
	AdjClose  sql.NullFloat64
	UpdatedAt time.Time
}

// UpsertDailyPrices archives a batch of bars in one transaction. A failure on
// a single row is logged and skipped; the archive is best-effort.
func UpsertDailyPrices(db *sql.DB, prices []DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, open, close, adj_close, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			close = excluded.close,
			adj_close = excluded.adj_close,
			updated_at = excluded.updated_at;
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		if _, err := stmt.Exec(p.Symbol, p.Date, p.Open, p.Close, p.AdjClose, now); err != nil {
			logger.L.Warn("Failed to archive daily price", "symbol", p.Symbol, "date", p.Date, "error", err)
			continue
		}
	}
	return tx.Commit()
}

// GetDailyPrices loads the archived bars for one symbol within [start, end],
// ordered by date.
func GetDailyPrices(db *sql.DB, symbol, start, end string) ([]DailyPrice, error) {
	rows, err := db.Query(`
		SELECT symbol, date, open, close, adj_close, updated_at
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC`, symbol, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.Close, &p.AdjClose, &p.UpdatedAt); err != nil {
			logger.L.Error("Daily price row scan error", "error", err)
			continue
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// CountDailyPrices reports the size of the price archive.
func CountDailyPrices(db *sql.DB) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&count)
	return count, err
}
