package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TradeEvent 是回放使用的一笔历史成交
type TradeEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// GridLevel 代表网格中的一个价格档位，通过 Index 在网格内定位
type GridLevel struct {
	Index int     `json:"index"`
	Price float64 `json:"price"`
}

// TradeRecord 记录回测中的一笔模拟成交
type TradeRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`       // 成交价（即触发事件的价格）
	Quantity   int       `json:"quantity"`    // 成交数量
	LevelIndex int       `json:"level_index"` // 所属网格档位
	LevelPrice float64   `json:"level_price"` // 所属网格档位的价格
}

// Notional 返回成交金额
func (t TradeRecord) Notional() float64 {
	return t.Price * float64(t.Quantity)
}

// SimulationState 是单次回测独占的可变状态
type SimulationState struct {
	Cash           float64       `json:"cash"`
	Positions      []int         `json:"positions"` // 按网格档位下标存放持仓数量
	Trades         []TradeRecord `json:"trades"`
	LastEventPrice float64       `json:"last_event_price"`
	EventCount     int           `json:"event_count"`
}

// OpenQuantity 返回所有档位的持仓总量
func (s *SimulationState) OpenQuantity() int {
	total := 0
	for _, qty := range s.Positions {
		total += qty
	}
	return total
}

// ParameterConfiguration 完整决定一次回测的策略参数
type ParameterConfiguration struct {
	GridCount        int     `json:"grid_count"`
	PriceDeviation   float64 `json:"price_deviation"`
	ProfitRatio      float64 `json:"profit_ratio"`
	PositionStep     float64 `json:"position_step"`
	PositionLimit    int     `json:"position_limit"`
	MinOrderQuantity int     `json:"min_order_quantity"`
}

// Metrics 存储一次回测计算出的性能指标
type Metrics struct {
	TotalProfit float64 `json:"total_profit"`
	ProfitRatio float64 `json:"profit_ratio"`
	TradeCount  int     `json:"trade_count"`
	WinRate     float64 `json:"win_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
	FinalValue  float64 `json:"final_value"`
}

// OptimizationResult 将一组参数与其回测指标配对
type OptimizationResult struct {
	Configuration ParameterConfiguration `json:"params"`
	Metrics       Metrics                `json:"metrics"`
}

// PriceStats 是历史成交价格的统计特征
type PriceStats struct {
	Count           int     `json:"count"`
	Mean            float64 `json:"mean_price"`
	Std             float64 `json:"price_std"`
	Min             float64 `json:"min_price"`
	Max             float64 `json:"max_price"`
	Range           float64 `json:"price_range"`
	Volatility      float64 `json:"volatility"`
	DailyVolatility float64 `json:"daily_volatility"`
}

// OptimizationRun 是一次完整参数搜索的持久化记录
type OptimizationRun struct {
	ID        string               `json:"id"`
	Symbol    string               `json:"symbol"`
	TimeFrame TimeFrame            `json:"time_frame"`
	CreatedAt time.Time            `json:"created_at"`
	Stats     PriceStats           `json:"stats"`
	Evaluated int                  `json:"evaluated"`
	Accepted  int                  `json:"accepted"`
	Rejected  int                  `json:"rejected"`
	NoTrades  int                  `json:"no_trades"`
	Failed    int                  `json:"failed"`
	Results   []OptimizationResult `json:"results"`
}
