package model

import (
	"database/sql"
	"time"
)

// BacktestRun is one usage-log entry: who ran what, over which range, and how
// long it took.
type BacktestRun struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	PortfolioCount  int       `json:"portfolio_count"`
	Symbols         string    `json:"symbols"` // comma-separated, CASH0 excluded
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	CommonStartDate string    `json:"common_start_date"`
	DurationMs      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

func InsertBacktestRun(db *sql.DB, run *BacktestRun) error {
	run.CreatedAt = time.Now()
	res, err := db.Exec(`
		INSERT INTO backtest_runs (user_id, portfolio_count, symbols, start_date, end_date, common_start_date, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.UserID, run.PortfolioCount, run.Symbols, run.StartDate, run.EndDate,
		run.CommonStartDate, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return err
	}
	run.ID, err = res.LastInsertId()
	return err
}

// RecordUserLogin bumps the user's login counters and appends a row to the
// login history, in one transaction.
func RecordUserLogin(db *sql.DB, userID int64, clientIP, userAgent string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE users
		SET login_count = login_count + 1,
		    last_login_at = CURRENT_TIMESTAMP,
		    last_login_ip = ?
		WHERE id = ?`, clientIP, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO login_history (user_id, ip_address, user_agent)
		VALUES (?, ?, ?)`, userID, clientIP, userAgent); err != nil {
		return err
	}
	return tx.Commit()
}

// IncrementUserBacktestCount bumps the per-user run counter.
func IncrementUserBacktestCount(db *sql.DB, userID int64) error {
	_, err := db.Exec(`UPDATE users SET backtest_runs = backtest_runs + 1 WHERE id = ?`, userID)
	return err
}

// UsageStats is the admin summary of service activity.
type UsageStats struct {
	TotalUsers      int64         `json:"total_users"`
	TotalRuns       int64         `json:"total_runs"`
	RunsLast7Days   int64         `json:"runs_last_7_days"`
	RecentRuns      []BacktestRun `json:"recent_runs"`
	GeneratedAtUnix int64         `json:"generated_at_unix"`
}

// GetUsageStats aggregates the admin dashboard numbers.
func GetUsageStats(db *sql.DB, recentLimit int) (*UsageStats, error) {
	stats := &UsageStats{GeneratedAtUnix: time.Now().Unix()}

	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
		return nil, err
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM backtest_runs`).Scan(&stats.TotalRuns); err != nil {
		return nil, err
	}
	weekAgo := time.Now().AddDate(0, 0, -7)
	if err := db.QueryRow(`SELECT COUNT(*) FROM backtest_runs WHERE created_at >= ?`, weekAgo).Scan(&stats.RunsLast7Days); err != nil {
		return nil, err
	}
	rows, err := db.Query(`
		SELECT id, user_id, portfolio_count, symbols, start_date, end_date, common_start_date, duration_ms, created_at
		FROM backtest_runs
		ORDER BY created_at DESC
		LIMIT ?`, recentLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r BacktestRun
		if err := rows.Scan(&r.ID, &r.UserID, &r.PortfolioCount, &r.Symbols, &r.StartDate,
			&r.EndDate, &r.CommonStartDate, &r.DurationMs, &r.CreatedAt); err != nil {
			continue
		}
		stats.RecentRuns = append(stats.RecentRuns, r)
	}
	return stats, rows.Err()
}
