package storage

import (
	"database/sql"
	"fmt"

	"grid-optimizer/internal/models"

	_ "modernc.org/sqlite" // Import the pure-Go sqlite driver
)

// InitDB initializes the database connection and creates necessary tables.
func InitDB(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// createTables creates the necessary database tables if they don't exist.
func createTables(db *sql.DB) error {
	// One row per accepted configuration, result_rank 1 is the most profitable.
	createResultsTableSQL := `
	CREATE TABLE IF NOT EXISTS optimization_results (
		run_id TEXT NOT NULL,
		result_rank INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		grid_count INTEGER NOT NULL,
		price_deviation REAL NOT NULL,
		target_profit_ratio REAL NOT NULL,
		position_step REAL NOT NULL,
		position_limit INTEGER NOT NULL,
		min_order_quantity INTEGER NOT NULL,
		total_profit REAL NOT NULL,
		profit_ratio REAL NOT NULL,
		trade_count INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		final_value REAL NOT NULL,
		PRIMARY KEY (run_id, result_rank)
	);`

	if _, err := db.Exec(createResultsTableSQL); err != nil {
		return err
	}
	return nil
}

// SaveResults replaces the stored results of a run inside a single transaction.
func SaveResults(db *sql.DB, runID, symbol string, results []models.OptimizationResult) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM optimization_results WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear results of run %s: %w", runID, err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO optimization_results (
		run_id, result_rank, symbol, grid_count, price_deviation, target_profit_ratio, position_step,
		position_limit, min_order_quantity, total_profit, profit_ratio, trade_count, win_rate,
		max_drawdown, final_value)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		p, m := r.Configuration, r.Metrics
		if _, err := stmt.Exec(
			runID, i+1, symbol, p.GridCount, p.PriceDeviation, p.ProfitRatio, p.PositionStep,
			p.PositionLimit, p.MinOrderQuantity, m.TotalProfit, m.ProfitRatio, m.TradeCount, m.WinRate,
			m.MaxDrawdown, m.FinalValue,
		); err != nil {
			return fmt.Errorf("failed to insert result %d of run %s: %w", i+1, runID, err)
		}
	}

	return tx.Commit()
}

// LoadResults retrieves the results of a run ordered by rank.
// An unknown run yields an empty slice.
func LoadResults(db *sql.DB, runID string) ([]models.OptimizationResult, error) {
	query := `
	SELECT grid_count, price_deviation, target_profit_ratio, position_step, position_limit, min_order_quantity,
		total_profit, profit_ratio, trade_count, win_rate, max_drawdown, final_value
	FROM optimization_results
	WHERE run_id = ?
	ORDER BY result_rank`

	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []models.OptimizationResult{}
	for rows.Next() {
		var r models.OptimizationResult
		p, m := &r.Configuration, &r.Metrics
		if err := rows.Scan(
			&p.GridCount, &p.PriceDeviation, &p.ProfitRatio, &p.PositionStep, &p.PositionLimit, &p.MinOrderQuantity,
			&m.TotalProfit, &m.ProfitRatio, &m.TradeCount, &m.WinRate, &m.MaxDrawdown, &m.FinalValue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
