package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"grid-optimizer/internal/grid"
	"grid-optimizer/internal/metrics"
	"grid-optimizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

func events(prices ...float64) []models.TradeEvent {
	out := make([]models.TradeEvent, len(prices))
	for i, p := range prices {
		out[i] = models.TradeEvent{Timestamp: start.Add(time.Duration(i) * time.Minute), Price: p}
	}
	return out
}

// wave 生成确定性的振荡行情
func wave(n int, center, amplitude float64) []models.TradeEvent {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = math.Round((center+amplitude*math.Sin(float64(i)/7))*100) / 100
	}
	return events(prices...)
}

// TestBuyOnEveryTriggeredLevel replays a single event below the whole ladder.
func TestBuyOnEveryTriggeredLevel(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 1, MinOrderQuantity: 100, ProfitRatio: 0.02}
	sim := NewSimulator(grid.FromPrices(95, 100, 105), params, 100000)

	require.NoError(t, sim.Step(models.TradeEvent{Timestamp: start, Price: 94}))
	state := sim.State()

	require.Len(t, state.Trades, 3)
	first := state.Trades[0]
	assert.Equal(t, models.Buy, first.Side)
	assert.Equal(t, 95.0, first.LevelPrice)
	assert.Equal(t, 9400.0, first.Notional())
	for i, tr := range state.Trades {
		assert.Equal(t, i, tr.LevelIndex)
		assert.Equal(t, 94.0, tr.Price)
	}
	assert.Equal(t, []int{100, 100, 100}, state.Positions)
	assert.Equal(t, 100000.0-3*9400, state.Cash)
}

// TestSellFullPositionAtProfit replays a held level reaching its profit target.
func TestSellFullPositionAtProfit(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 1, MinOrderQuantity: 100, ProfitRatio: 0.02}
	sim := NewSimulator(grid.FromPrices(95), params, 0).WithPositions([]int{100})

	require.NoError(t, sim.Step(models.TradeEvent{Timestamp: start, Price: 100}))
	state := sim.State()

	assert.Equal(t, []int{0}, state.Positions)
	assert.Equal(t, 10000.0, state.Cash)
	require.Len(t, state.Trades, 1)
	assert.Equal(t, models.Sell, state.Trades[0].Side)
	assert.Equal(t, 100, state.Trades[0].Quantity)
}

func TestSellBelowTargetHolds(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 1, MinOrderQuantity: 100, ProfitRatio: 0.06}
	sim := NewSimulator(grid.FromPrices(95), params, 0).WithPositions([]int{100})

	require.NoError(t, sim.Step(models.TradeEvent{Timestamp: start, Price: 100}))
	assert.Equal(t, []int{100}, sim.State().Positions)
	assert.Empty(t, sim.State().Trades)
}

// TestInsufficientCashSkipsBuy verifies unaffordable buys are dropped and the level stays eligible.
func TestInsufficientCashSkipsBuy(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 1, MinOrderQuantity: 100, ProfitRatio: 0.02}
	sim := NewSimulator(grid.FromPrices(95, 100, 105), params, 15000)

	for _, ev := range events(94, 94, 97, 99) {
		require.NoError(t, sim.Step(ev))
	}
	state := sim.State()

	sides := make([]models.Side, len(state.Trades))
	levels := make([]int, len(state.Trades))
	for i, tr := range state.Trades {
		sides[i] = tr.Side
		levels[i] = tr.LevelIndex
	}
	assert.Equal(t, []models.Side{models.Buy, models.Sell, models.Buy}, sides)
	assert.Equal(t, []int{0, 0, 1}, levels)
	assert.Equal(t, []int{0, 100, 0}, state.Positions)
	assert.InDelta(t, 15000-9400+9700-9900, state.Cash, 1e-9)
	assert.GreaterOrEqual(t, state.Cash, 0.0)
	assert.Equal(t, 4, state.EventCount)
	assert.Equal(t, 99.0, state.LastEventPrice)
}

// TestPositionLimitAccumulates verifies repeated buys on one level stop once the limit is reached.
func TestPositionLimitAccumulates(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 300, MinOrderQuantity: 100, ProfitRatio: 0.5}
	sim := NewSimulator(grid.FromPrices(10), params, 100000)

	for _, ev := range events(9, 9, 9, 9, 9) {
		require.NoError(t, sim.Step(ev))
	}
	assert.Equal(t, []int{300}, sim.State().Positions)
	assert.Len(t, sim.State().Trades, 3)
}

func TestDegenerateLevel(t *testing.T) {
	params := models.ParameterConfiguration{PositionLimit: 1, MinOrderQuantity: 100}
	sim := NewSimulator(grid.FromPrices(0), params, 1000).WithPositions([]int{100})

	err := sim.Step(models.TradeEvent{Timestamp: start, Price: 1})
	assert.ErrorIs(t, err, ErrDegenerateLevel)
}

// TestRunEmptyEvents verifies that an empty replay yields absent metrics.
func TestRunEmptyEvents(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	res, err := engine.Run(context.Background(), nil, models.ParameterConfiguration{GridCount: 5, PriceDeviation: 0.01})
	require.NoError(t, err)
	assert.Nil(t, res.Metrics)
	assert.Equal(t, 100000.0, res.State.Cash)
}

func TestRunNoTradesIsAbsent(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	// 持仓上限为零，任何档位都不会买入
	params := models.ParameterConfiguration{GridCount: 3, PriceDeviation: 0.05, ProfitRatio: 0.01, PositionLimit: 0, MinOrderQuantity: 100}
	res, err := engine.Run(context.Background(), events(100, 101, 99), params)
	require.NoError(t, err)
	assert.Nil(t, res.Metrics)
}

// TestRunFinalValueIdentity checks that final value equals cash plus open quantity at the last fill.
func TestRunFinalValueIdentity(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	params := models.ParameterConfiguration{GridCount: 5, PriceDeviation: 0.01, ProfitRatio: 0.005, PositionLimit: 400, MinOrderQuantity: 100}
	evs := wave(500, 50, 2)

	res, err := engine.Run(context.Background(), evs, params)
	require.NoError(t, err)
	require.NotNil(t, res.Metrics)

	state := res.State
	last := state.Trades[len(state.Trades)-1].Price
	assert.Equal(t, state.Cash+float64(state.OpenQuantity())*last, res.Metrics.FinalValue)
	assert.GreaterOrEqual(t, res.Metrics.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, res.Metrics.MaxDrawdown, 1.0)
	assert.Equal(t, 5, res.Ladder.Len())
	assert.Equal(t, grid.RoundPrice(ReferencePrice(evs)), res.Ladder.Levels[2].Price)
}

// TestRunIsIdempotent verifies two runs over the same input give identical metrics and leave events untouched.
func TestRunIsIdempotent(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	params := models.ParameterConfiguration{GridCount: 7, PriceDeviation: 0.008, ProfitRatio: 0.004, PositionLimit: 300, MinOrderQuantity: 100}
	evs := wave(300, 80, 3)
	snapshot := append([]models.TradeEvent(nil), evs...)

	a, err := engine.Run(context.Background(), evs, params)
	require.NoError(t, err)
	b, err := engine.Run(context.Background(), evs, params)
	require.NoError(t, err)

	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, a.State.Trades, b.State.Trades)
	assert.Equal(t, snapshot, evs)
}

func TestRunDegenerateReference(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	_, err := engine.Run(context.Background(), events(-1, -2), models.ParameterConfiguration{GridCount: 3})
	assert.ErrorIs(t, err, ErrDegenerateInput)
}

// TestRunRejectsNonPositiveGridCount verifies a zero or negative grid count fails before the ladder is built.
func TestRunRejectsNonPositiveGridCount(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	for _, n := range []int{0, -1, -6} {
		params := models.ParameterConfiguration{GridCount: n, PriceDeviation: 0.01, PositionLimit: 300, MinOrderQuantity: 100}
		_, err := engine.Run(context.Background(), wave(10, 10, 1), params)
		assert.ErrorIs(t, err, ErrInvalidGridCount, "grid count %d", n)

		_, err = engine.Run(context.Background(), nil, params)
		assert.ErrorIs(t, err, ErrInvalidGridCount, "grid count %d", n)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	engine := NewEngine(100000, metrics.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, wave(10, 10, 1), models.ParameterConfiguration{GridCount: 3, PriceDeviation: 0.01})
	assert.ErrorIs(t, err, context.Canceled)
}
