package metrics

import (
	"errors"

	"grid-optimizer/internal/models"
)

// ErrNonPositivePeak 表示资金曲线的峰值不为正，无法计算回撤比例
var ErrNonPositivePeak = errors.New("equity curve peak is not positive")

// Options 控制指标计算的可选口径
type Options struct {
	// MarkToLastEvent 为 true 时，期末持仓按最后一笔行情价格计价，
	// 否则按最后一笔模拟成交的价格计价。
	MarkToLastEvent bool
}

// Calculate 根据回测结束时的状态计算性能指标。
// 没有任何成交时返回 (nil, nil)，表示无法评估，而不是零收益。
func Calculate(state *models.SimulationState, initialCapital float64, opts Options) (*models.Metrics, error) {
	if state == nil || len(state.Trades) == 0 {
		return nil, nil
	}

	markPrice := state.Trades[len(state.Trades)-1].Price
	if opts.MarkToLastEvent && state.LastEventPrice > 0 {
		markPrice = state.LastEventPrice
	}

	finalValue := state.Cash + float64(state.OpenQuantity())*markPrice

	drawdown, err := MaxDrawdown(state.Trades, initialCapital)
	if err != nil {
		return nil, err
	}

	m := &models.Metrics{
		TotalProfit: finalValue - initialCapital,
		TradeCount:  len(state.Trades),
		WinRate:     WinRate(state.Trades),
		MaxDrawdown: drawdown,
		FinalValue:  finalValue,
	}
	if initialCapital != 0 {
		m.ProfitRatio = m.TotalProfit / initialCapital
	}
	return m, nil
}

// WinRate 统计成交价高于所属档位价格的记录占比，买卖两侧都计入
func WinRate(trades []models.TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.Price > t.LevelPrice {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// EquityCurve 按成交顺序构建仅含现金的资金曲线，每笔成交之后记录一个点。
// 现金从初始资金开始累计，初始资金本身不作为曲线的点，因此峰值从第一笔成交后的现金开始。
// 买入减去成交金额，卖出加上成交金额，不计入未平仓持仓的价值。
func EquityCurve(trades []models.TradeRecord, initialCapital float64) []float64 {
	curve := make([]float64, 0, len(trades))
	equity := initialCapital
	for _, t := range trades {
		switch t.Side {
		case models.Buy:
			equity -= t.Notional()
		case models.Sell:
			equity += t.Notional()
		}
		curve = append(curve, equity)
	}
	return curve
}

// MaxDrawdown 计算现金资金曲线的最大回撤比例
func MaxDrawdown(trades []models.TradeRecord, initialCapital float64) (float64, error) {
	return curveDrawdown(EquityCurve(trades, initialCapital))
}

func curveDrawdown(curve []float64) (float64, error) {
	if len(curve) == 0 {
		return 0, nil
	}
	peak := curve[0]
	maxDrawdown := 0.0
	for _, equity := range curve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			return 0, ErrNonPositivePeak
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown, nil
}
