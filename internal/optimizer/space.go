package optimizer

import (
	"iter"
	"math"

	"grid-optimizer/internal/grid"
	"grid-optimizer/internal/models"
)

// Space 是参数组合的笛卡尔积，按下标惰性生成，可以反复遍历。
// 枚举顺序：网格数量最外层，其次是间距、止盈比例、仓位步长。
type Space struct {
	TimeFrame  models.TimeFrame
	Volatility float64

	gridCounts     []int
	deviations     []float64
	profits        []float64
	steps          []float64
	positionLimits []int
	minOrders      []int
}

// NewSpace 根据历史价格统计和时间周期生成参数空间。
// 间距和止盈比例由波动率乘以配置中的倍数得到，保留三位小数。
func NewSpace(stats models.PriceStats, tf models.TimeFrame, cfg *models.Config) *Space {
	g := cfg.ParameterGrids.For(tf)
	s := &Space{
		TimeFrame:  tf,
		Volatility: stats.Volatility,
		gridCounts: append([]int(nil), g.GridCounts...),
		deviations: scale(stats.Volatility, g.DeviationMultipliers),
		profits:    scale(stats.Volatility, g.ProfitMultipliers),
		steps:      append([]float64(nil), g.PositionSteps...),
	}

	maxPosition := MaxPosition(cfg, stats.Mean)
	for _, n := range s.gridCounts {
		limit := 0
		if n > 0 {
			limit = maxPosition / n
		}
		s.positionLimits = append(s.positionLimits, limit)
		s.minOrders = append(s.minOrders, max(cfg.LotSize.Floor, limit/3))
	}
	return s
}

// MaxPosition 返回可用资金按均价最多能买入的数量，向下取整到下单步长
func MaxPosition(cfg *models.Config, meanPrice float64) int {
	if meanPrice <= 0 || math.IsNaN(meanPrice) {
		return 0
	}
	qty := int(cfg.InitialCapital * cfg.MaxCapitalUsage / meanPrice)
	if step := cfg.LotSize.Step; step > 0 {
		qty = qty / step * step
	}
	return qty
}

func scale(volatility float64, multipliers []float64) []float64 {
	out := make([]float64, len(multipliers))
	for i, m := range multipliers {
		out[i] = grid.RoundRatio(volatility * m)
	}
	return out
}

// Len 返回参数组合总数
func (s *Space) Len() int {
	return len(s.gridCounts) * len(s.deviations) * len(s.profits) * len(s.steps)
}

// At 返回第 i 个参数组合，i 必须在 [0, Len()) 内
func (s *Space) At(i int) models.ParameterConfiguration {
	si := i % len(s.steps)
	i /= len(s.steps)
	pi := i % len(s.profits)
	i /= len(s.profits)
	di := i % len(s.deviations)
	gi := i / len(s.deviations)

	return models.ParameterConfiguration{
		GridCount:        s.gridCounts[gi],
		PriceDeviation:   s.deviations[di],
		ProfitRatio:      s.profits[pi],
		PositionStep:     s.steps[si],
		PositionLimit:    s.positionLimits[gi],
		MinOrderQuantity: s.minOrders[gi],
	}
}

// All 按枚举顺序遍历全部参数组合
func (s *Space) All() iter.Seq2[int, models.ParameterConfiguration] {
	return func(yield func(int, models.ParameterConfiguration) bool) {
		for i := 0; i < s.Len(); i++ {
			if !yield(i, s.At(i)) {
				return
			}
		}
	}
}

// Single 构造只包含一个参数组合的空间，用于单次回测
func Single(params models.ParameterConfiguration) *Space {
	return &Space{
		gridCounts:     []int{params.GridCount},
		deviations:     []float64{params.PriceDeviation},
		profits:        []float64{params.ProfitRatio},
		steps:          []float64{params.PositionStep},
		positionLimits: []int{params.PositionLimit},
		minOrders:      []int{params.MinOrderQuantity},
	}
}
