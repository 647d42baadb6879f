package analysis

import (
	"errors"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"grid-optimizer/internal/grid"
	"grid-optimizer/internal/models"
)

var (
	// ErrNotEnoughEvents 表示成交记录太少，无法推断时间周期或计算统计量
	ErrNotEnoughEvents = errors.New("not enough trade events")
)

// 成交间隔中位数达到一天即视为日线数据
const dailyInterval = 24 * time.Hour

// 建议参数使用的默认网格数量
var defaultGridCount = map[models.TimeFrame]int{
	models.Daily:    5,
	models.Intraday: 7,
}

// InferTimeFrame 根据相邻成交时间间隔的中位数判断数据周期
func InferTimeFrame(events []models.TradeEvent) (models.TimeFrame, error) {
	if len(events) < 2 {
		return "", ErrNotEnoughEvents
	}
	diffs := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		diffs = append(diffs, float64(events[i].Timestamp.Sub(events[i-1].Timestamp)))
	}
	slices.Sort(diffs)

	var median float64
	mid := len(diffs) / 2
	if len(diffs)%2 == 1 {
		median = diffs[mid]
	} else {
		median = (diffs[mid-1] + diffs[mid]) / 2
	}

	if time.Duration(median) >= dailyInterval {
		return models.Daily, nil
	}
	return models.Intraday, nil
}

// Analyze 计算价格的统计特征
func Analyze(events []models.TradeEvent, tf models.TimeFrame) (models.PriceStats, error) {
	if len(events) == 0 {
		return models.PriceStats{}, ErrNotEnoughEvents
	}
	prices := make([]float64, len(events))
	for i, ev := range events {
		prices[i] = ev.Price
	}

	s := models.PriceStats{
		Count: len(prices),
		Mean:  stat.Mean(prices, nil),
		Min:   floats.Min(prices),
		Max:   floats.Max(prices),
	}
	if len(prices) > 1 {
		s.Std = stat.StdDev(prices, nil)
	}
	s.Range = s.Max - s.Min
	if s.Mean != 0 {
		s.Volatility = s.Std / s.Mean
	}

	s.DailyVolatility = s.Volatility
	if tf == models.Intraday {
		s.DailyVolatility = intradayVolatility(events)
	}
	return s, nil
}

// intradayVolatility 按自然日分组计算 std/mean，再对各天取平均。
// 成交少于两笔的日子没有样本标准差，跳过。
func intradayVolatility(events []models.TradeEvent) float64 {
	byDay := make(map[string][]float64)
	var days []string
	for _, ev := range events {
		key := ev.Timestamp.Format(time.DateOnly)
		if _, ok := byDay[key]; !ok {
			days = append(days, key)
		}
		byDay[key] = append(byDay[key], ev.Price)
	}

	var vols []float64
	for _, day := range days {
		prices := byDay[day]
		if len(prices) < 2 {
			continue
		}
		mean := stat.Mean(prices, nil)
		if mean == 0 {
			continue
		}
		vols = append(vols, stat.StdDev(prices, nil)/mean)
	}
	if len(vols) == 0 {
		return 0
	}
	return stat.Mean(vols, nil)
}

// Suggestion 是根据历史波动率给出的初始参数建议
type Suggestion struct {
	TimeFrame        models.TimeFrame `json:"time_frame"`
	GridCount        int              `json:"grid_count"`
	SingleGridAmount float64          `json:"single_grid_amount"`
	PositionLimit    int              `json:"position_limit"` // 所有档位合计
	PriceDeviation   float64          `json:"price_deviation"`
	MinProfitRatio   float64          `json:"min_profit_ratio"`
	MinOrderQuantity int              `json:"min_order_quantity"`
}

// Suggest 根据价格统计给出参数建议
func Suggest(stats models.PriceStats, tf models.TimeFrame, cfg *models.Config) Suggestion {
	devMult := 0.3
	if tf == models.Daily {
		devMult = 0.5
	}

	s := Suggestion{
		TimeFrame:        tf,
		GridCount:        defaultGridCount[tf],
		SingleGridAmount: cfg.InitialCapital * cfg.SingleGridMaxRatio,
		PriceDeviation:   grid.RoundRatio(stats.Volatility * devMult),
		MinProfitRatio:   grid.RoundRatio(stats.Volatility * 0.3),
	}
	if stats.Mean > 0 && !math.IsNaN(stats.Mean) {
		s.PositionLimit = int(cfg.InitialCapital * cfg.MaxCapitalUsage / stats.Mean)
	}

	qty := 0
	if stats.Mean > 0 {
		qty = min(int(s.SingleGridAmount/stats.Mean), int(float64(s.PositionLimit)*0.2))
	}
	if cfg.LotSize.Step > 0 {
		qty = qty / cfg.LotSize.Step * cfg.LotSize.Step
	}
	s.MinOrderQuantity = max(cfg.LotSize.Floor, min(qty, cfg.LotSize.Ceiling))
	return s
}

// Params 把建议转换为可直接回测的参数，合计持仓上限平均分到每个网格
func (s Suggestion) Params() models.ParameterConfiguration {
	limit := s.PositionLimit
	if s.GridCount > 0 {
		limit /= s.GridCount
	}
	return models.ParameterConfiguration{
		GridCount:        s.GridCount,
		PriceDeviation:   s.PriceDeviation,
		ProfitRatio:      s.MinProfitRatio,
		PositionLimit:    limit,
		MinOrderQuantity: s.MinOrderQuantity,
	}
}
