package backtest

import (
	"errors"
	"fmt"

	"grid-optimizer/internal/grid"
	"grid-optimizer/internal/models"
)

// ErrDegenerateLevel 表示价格为零的档位持有仓位，无法计算收益比例
var ErrDegenerateLevel = errors.New("grid level priced at zero holds a position")

// Simulator 在固定网格上逐笔回放历史成交，维护现金和各档位持仓。
// 每个 Simulator 只服务一次回测，不能在多个 goroutine 间共享。
type Simulator struct {
	ladder *grid.Ladder
	params models.ParameterConfiguration
	state  models.SimulationState
}

// NewSimulator 创建一个持有初始资金、所有档位空仓的模拟器
func NewSimulator(ladder *grid.Ladder, params models.ParameterConfiguration, initialCapital float64) *Simulator {
	return &Simulator{
		ladder: ladder,
		params: params,
		state: models.SimulationState{
			Cash:      initialCapital,
			Positions: make([]int, ladder.Len()),
			Trades:    make([]models.TradeRecord, 0),
		},
	}
}

// WithPositions 预置各档位持仓，用于从已知状态继续回放
func (s *Simulator) WithPositions(positions []int) *Simulator {
	copy(s.state.Positions, positions)
	return s
}

// Step 处理一笔成交事件：先按档位从低到高扫描买入，再扫描卖出
func (s *Simulator) Step(ev models.TradeEvent) error {
	s.state.EventCount++
	s.state.LastEventPrice = ev.Price

	s.scanBuys(ev)
	return s.scanSells(ev)
}

func (s *Simulator) scanBuys(ev models.TradeEvent) {
	qty := s.params.MinOrderQuantity
	for i, lv := range s.ladder.Levels {
		if ev.Price > lv.Price || s.state.Positions[i] >= s.params.PositionLimit {
			continue
		}
		cost := float64(qty) * ev.Price
		if cost > s.state.Cash {
			// 资金不足时放弃本次买入，该档位在下一笔事件仍可触发
			continue
		}
		s.state.Cash -= cost
		s.state.Positions[i] += qty
		s.record(ev, models.Buy, qty, lv)
	}
}

func (s *Simulator) scanSells(ev models.TradeEvent) error {
	for i, lv := range s.ladder.Levels {
		held := s.state.Positions[i]
		if held <= 0 {
			continue
		}
		if lv.Price == 0 {
			return fmt.Errorf("level %d: %w", i, ErrDegenerateLevel)
		}
		ratio := (ev.Price - lv.Price) / lv.Price
		if ratio < s.params.ProfitRatio {
			continue
		}
		s.state.Cash += float64(held) * ev.Price
		s.state.Positions[i] = 0
		s.record(ev, models.Sell, held, lv)
	}
	return nil
}

func (s *Simulator) record(ev models.TradeEvent, side models.Side, qty int, lv models.GridLevel) {
	s.state.Trades = append(s.state.Trades, models.TradeRecord{
		Timestamp:  ev.Timestamp,
		Side:       side,
		Price:      ev.Price,
		Quantity:   qty,
		LevelIndex: lv.Index,
		LevelPrice: lv.Price,
	})
}

// State 返回当前状态的指针，回放结束后交给指标计算
func (s *Simulator) State() *models.SimulationState {
	return &s.state
}
