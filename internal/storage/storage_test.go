package storage

import (
	"path/filepath"
	"testing"

	"grid-optimizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(ratios ...float64) []models.OptimizationResult {
	out := make([]models.OptimizationResult, len(ratios))
	for i, r := range ratios {
		out[i] = models.OptimizationResult{
			Configuration: models.ParameterConfiguration{GridCount: 3 + 2*i, PriceDeviation: 0.02, ProfitRatio: 0.012, PositionStep: 0.25, PositionLimit: 533, MinOrderQuantity: 177},
			Metrics:       models.Metrics{TotalProfit: r * 100000, ProfitRatio: r, TradeCount: 12 + i, WinRate: 0.4, MaxDrawdown: 0.2, FinalValue: 100000 * (1 + r)},
		}
	}
	return out
}

// TestSaveAndLoadResults verifies results are stored in rank order per run.
func TestSaveAndLoadResults(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer db.Close()

	want := results(0.3, 0.2, 0.1)
	require.NoError(t, SaveResults(db, "run-1", "MARA", want))
	require.NoError(t, SaveResults(db, "run-2", "MARA", results(0.5)))

	got, err := LoadResults(db, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = LoadResults(db, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// TestSaveResultsReplaces verifies saving a run twice keeps only the latest results.
func TestSaveResultsReplaces(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, SaveResults(db, "run-1", "MARA", results(0.3, 0.2, 0.1)))
	require.NoError(t, SaveResults(db, "run-1", "MARA", results(0.4)))

	got, err := LoadResults(db, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.4, got[0].Metrics.ProfitRatio)
}

func TestInitDBIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
