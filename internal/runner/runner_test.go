package runner

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"grid-optimizer/internal/config"
	"grid-optimizer/internal/models"
	"grid-optimizer/internal/observability"
	"grid-optimizer/internal/persistence"
	"grid-optimizer/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfHourly(n int) []models.TradeEvent {
	start := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	out := make([]models.TradeEvent, n)
	for i := range out {
		p := 30 + 1.5*math.Sin(float64(i)/4)
		out[i] = models.TradeEvent{Timestamp: start.Add(time.Duration(i) * 30 * time.Minute), Price: math.Round(p*100) / 100}
	}
	return out
}

// TestOptimizePersistsRun verifies a search is saved to badger and sqlite and counted in metrics.
func TestOptimizePersistsRun(t *testing.T) {
	cfg := config.Default()
	cfg.Thresholds = models.AcceptanceThresholds{MinProfitRatio: -1, MaxDrawdown: 1}

	repo, err := persistence.NewBadgerRepository("")
	require.NoError(t, err)
	defer repo.Close()
	db, err := storage.InitDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer db.Close()
	metrics := observability.NewMetrics("")

	clock := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	r := New(cfg, zap.NewNop(), WithRepository(repo), WithResultsDB(db), WithMetrics(metrics), WithClock(func() time.Time { return clock }))

	run, err := r.Optimize(context.Background(), "MARA", "", halfHourly(300))
	require.NoError(t, err)

	assert.Equal(t, models.Intraday, run.TimeFrame)
	assert.Equal(t, 81, run.Evaluated)
	assert.Equal(t, clock, run.CreatedAt)
	assert.NotEmpty(t, run.Results)

	saved, err := r.Run(run.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, run.Results, saved.Results)

	rows, err := storage.LoadResults(db, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Results, rows)

	runs, err := r.Runs()
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Optimizations))
	total := 0.0
	for _, outcome := range []string{"accepted", "rejected", "no_trades", "failed"} {
		total += testutil.ToFloat64(metrics.SimulationRuns.WithLabelValues(outcome))
	}
	assert.Equal(t, float64(run.Evaluated), total)
}

func TestOptimizeExplicitTimeFrame(t *testing.T) {
	r := New(config.Default(), nil)
	run, err := r.Optimize(context.Background(), "MARA", models.Daily, halfHourly(120))
	require.NoError(t, err)
	assert.Equal(t, models.Daily, run.TimeFrame)
	assert.NotNil(t, run.Results)
}

func TestOptimizeNeedsEvents(t *testing.T) {
	r := New(config.Default(), nil)
	_, err := r.Optimize(context.Background(), "MARA", "", halfHourly(1))
	assert.Error(t, err)
}

// TestWithoutStorage verifies lookups without a repository report absence.
func TestWithoutStorage(t *testing.T) {
	r := New(config.Default(), nil)
	run, err := r.Run("x")
	assert.NoError(t, err)
	assert.Nil(t, run)

	runs, err := r.Runs()
	assert.NoError(t, err)
	assert.Empty(t, runs)
}

func TestBacktest(t *testing.T) {
	r := New(config.Default(), nil)
	res, err := r.Backtest(context.Background(), halfHourly(200), models.ParameterConfiguration{
		GridCount: 5, PriceDeviation: 0.02, ProfitRatio: 0.01, PositionLimit: 500, MinOrderQuantity: 100,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)
	assert.Positive(t, res.Metrics.TradeCount)
}
