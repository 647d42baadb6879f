package grid

import (
	"github.com/shopspring/decimal"

	"grid-optimizer/internal/models"
)

// Ladder 是一次回测使用的固定网格档位，构建后不再增删档位
type Ladder struct {
	Levels    []models.GridLevel
	Requested int // 调用方请求的网格数量
}

// BuildLadder 以参考价为中心，按 deviation 的比例间距生成 2*(gridCount/2)+1 个档位。
// 价格保留两位小数，档位按价格从低到高排列（deviation > 0 时）。
func BuildLadder(reference float64, gridCount int, deviation float64) *Ladder {
	half := gridCount / 2
	levels := make([]models.GridLevel, 0, 2*half+1)
	for i := -half; i <= half; i++ {
		levels = append(levels, models.GridLevel{
			Index: len(levels),
			Price: RoundPrice(reference * (1 + float64(i)*deviation)),
		})
	}
	return &Ladder{Levels: levels, Requested: gridCount}
}

// FromPrices 直接使用给定价格构建网格，用于回放已知档位
func FromPrices(prices ...float64) *Ladder {
	levels := make([]models.GridLevel, len(prices))
	for i, p := range prices {
		levels[i] = models.GridLevel{Index: i, Price: p}
	}
	return &Ladder{Levels: levels, Requested: len(prices)}
}

// Len 返回档位数量
func (l *Ladder) Len() int {
	return len(l.Levels)
}

// Normalized 报告请求的网格数量是否被调整过。
// 偶数网格数会生成奇数个档位，调用方应当给出提示。
func (l *Ladder) Normalized() bool {
	return l.Requested != len(l.Levels)
}

// Prices 返回所有档位价格的副本
func (l *Ladder) Prices() []float64 {
	out := make([]float64, len(l.Levels))
	for i, lv := range l.Levels {
		out[i] = lv.Price
	}
	return out
}

// 小于任何 float64 二进制小数位的指数，NewFromFloatWithExponent 会取精确值
const exactExponent = -1100

// RoundPrice 将价格按两位小数取整。
// 以 float64 的精确二进制值取整，恰好在中点时取偶数，与常见的 round(x, 2) 结果一致。
func RoundPrice(v float64) float64 {
	return roundExact(v, 2)
}

// RoundRatio 将比例按三位小数取整，规则同 RoundPrice
func RoundRatio(v float64) float64 {
	return roundExact(v, 3)
}

func roundExact(v float64, places int32) float64 {
	return decimal.NewFromFloatWithExponent(v, exactExponent).RoundBank(places).InexactFloat64()
}
