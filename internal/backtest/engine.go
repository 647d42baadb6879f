package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"grid-optimizer/internal/grid"
	"grid-optimizer/internal/metrics"
	"grid-optimizer/internal/models"
)

// ErrDegenerateInput 表示参考价不可用（非正数或NaN），无法构建网格
var ErrDegenerateInput = errors.New("reference price must be positive")

// ErrInvalidGridCount 表示网格数量不为正
var ErrInvalidGridCount = errors.New("grid count must be positive")

// 每回放这么多笔事件检查一次 context
const ctxCheckInterval = 1024

// Result 是一次回测的完整输出
type Result struct {
	Ladder  *grid.Ladder
	State   *models.SimulationState
	Metrics *models.Metrics // 没有成交时为 nil
}

// Engine 用固定的初始资金和指标口径执行回测
type Engine struct {
	initialCapital float64
	opts           metrics.Options
}

// NewEngine 创建回测引擎
func NewEngine(initialCapital float64, opts metrics.Options) *Engine {
	return &Engine{initialCapital: initialCapital, opts: opts}
}

// InitialCapital 返回每次回测的起始资金
func (e *Engine) InitialCapital() float64 {
	return e.initialCapital
}

// ReferencePrice 返回事件序列的平均成交价
func ReferencePrice(events []models.TradeEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	prices := make([]float64, len(events))
	for i, ev := range events {
		prices[i] = ev.Price
	}
	return stat.Mean(prices, nil)
}

// Run 以事件均价为参考价构建网格，回放全部事件并计算指标。
// events 必须已按时间升序排列，Run 不会修改它。
func (e *Engine) Run(ctx context.Context, events []models.TradeEvent, params models.ParameterConfiguration) (*Result, error) {
	if params.GridCount <= 0 {
		return nil, fmt.Errorf("grid count %d: %w", params.GridCount, ErrInvalidGridCount)
	}
	if len(events) == 0 {
		ladder := grid.BuildLadder(0, params.GridCount, params.PriceDeviation)
		sim := NewSimulator(ladder, params, e.initialCapital)
		return &Result{Ladder: ladder, State: sim.State()}, nil
	}

	ref := ReferencePrice(events)
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		return nil, fmt.Errorf("reference price %v: %w", ref, ErrDegenerateInput)
	}

	ladder := grid.BuildLadder(ref, params.GridCount, params.PriceDeviation)
	return e.Replay(ctx, ladder, events, params)
}

// Replay 在给定网格上回放事件
func (e *Engine) Replay(ctx context.Context, ladder *grid.Ladder, events []models.TradeEvent, params models.ParameterConfiguration) (*Result, error) {
	sim := NewSimulator(ladder, params, e.initialCapital)
	for i, ev := range events {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := sim.Step(ev); err != nil {
			return nil, err
		}
	}

	state := sim.State()
	m, err := metrics.Calculate(state, e.initialCapital, e.opts)
	if err != nil {
		return nil, err
	}
	return &Result{Ladder: ladder, State: state, Metrics: m}, nil
}
