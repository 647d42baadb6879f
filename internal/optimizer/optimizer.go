package optimizer

import (
	"cmp"
	"context"
	"errors"
	"runtime"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grid-optimizer/internal/backtest"
	"grid-optimizer/internal/metrics"
	"grid-optimizer/internal/models"
)

// Outcome 是单次回测在筛选中的结果
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoTrades Outcome = "no_trades"
	OutcomeFailed   Outcome = "failed"
)

// Observer 接收每次回测的结果和耗时
type Observer interface {
	ObserveRun(outcome Outcome, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(Outcome, time.Duration) {}

// Configurations 是可以按下标访问的参数组合序列
type Configurations interface {
	Len() int
	At(i int) models.ParameterConfiguration
}

// Evaluation 是单个参数组合的回测结果
type Evaluation struct {
	Index   int
	Params  models.ParameterConfiguration
	Metrics *models.Metrics
	Outcome Outcome
	Err     error
}

// Report 汇总一次参数搜索
type Report struct {
	Results   []models.OptimizationResult // 通过筛选的结果，按收益率降序
	Evaluated int
	Accepted  int
	Rejected  int
	NoTrades  int
	Failed    int
	Elapsed   time.Duration
}

// Optimizer 对参数空间中的每个组合独立回测，筛选并排序
type Optimizer struct {
	thresholds models.AcceptanceThresholds
	engine     *backtest.Engine
	workers    int
	runTimeout time.Duration
	logger     *zap.Logger
	observer   Observer
}

// New 根据配置创建优化器。logger 和 observer 可以为 nil。
func New(cfg *models.Config, logger *zap.Logger, observer Observer) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	workers := cfg.Optimizer.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Optimizer{
		thresholds: cfg.Thresholds,
		engine:     backtest.NewEngine(cfg.InitialCapital, metrics.Options{MarkToLastEvent: cfg.Optimizer.MarkToLastEvent}),
		workers:    workers,
		runTimeout: time.Duration(cfg.Optimizer.RunTimeoutMs) * time.Millisecond,
		logger:     logger,
		observer:   observer,
	}
}

// Engine 返回优化器使用的回测引擎
func (o *Optimizer) Engine() *backtest.Engine {
	return o.engine
}

// Accept 判断指标是否同时满足全部四个筛选条件。没有指标时不通过。
func Accept(m *models.Metrics, th models.AcceptanceThresholds) bool {
	if m == nil {
		return false
	}
	return m.ProfitRatio > th.MinProfitRatio &&
		m.MaxDrawdown <= th.MaxDrawdown &&
		m.TradeCount >= th.MinTradeCount &&
		m.WinRate >= th.MinWinRate
}

// Optimize 在有限的 worker 数量下回测全部参数组合。
// 单个组合的失败只会排除该组合；父 context 被取消时整个搜索返回错误。
// 没有组合通过筛选时返回空结果，不是错误。
func (o *Optimizer) Optimize(ctx context.Context, events []models.TradeEvent, space Configurations) (*Report, error) {
	started := time.Now()
	o.warnEvenGridCounts(space)

	evals := make([]Evaluation, space.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i := 0; i < space.Len(); i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			params := space.At(i)
			evals[i] = o.evaluate(gctx, i, events, params)
			// 父 context 已取消时中止整个搜索
			if evals[i].Outcome == OutcomeFailed && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Evaluated: len(evals)}
	for _, ev := range evals {
		switch ev.Outcome {
		case OutcomeAccepted:
			report.Accepted++
			report.Results = append(report.Results, models.OptimizationResult{Configuration: ev.Params, Metrics: *ev.Metrics})
		case OutcomeRejected:
			report.Rejected++
		case OutcomeNoTrades:
			report.NoTrades++
		case OutcomeFailed:
			report.Failed++
		}
	}
	Rank(report.Results)
	if report.Results == nil {
		report.Results = []models.OptimizationResult{}
	}
	report.Elapsed = time.Since(started)

	o.logger.Info("parameter search finished",
		zap.Int("evaluated", report.Evaluated),
		zap.Int("accepted", report.Accepted),
		zap.Int("rejected", report.Rejected),
		zap.Int("no_trades", report.NoTrades),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// Evaluate 回测单个参数组合
func (o *Optimizer) Evaluate(ctx context.Context, events []models.TradeEvent, params models.ParameterConfiguration) Evaluation {
	return o.evaluate(ctx, 0, events, params)
}

func (o *Optimizer) evaluate(ctx context.Context, index int, events []models.TradeEvent, params models.ParameterConfiguration) Evaluation {
	started := time.Now()
	ev := Evaluation{Index: index, Params: params}

	runCtx := ctx
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	res, err := o.engine.Run(runCtx, slices.Clone(events), params)
	switch {
	case err != nil:
		ev.Outcome = OutcomeFailed
		ev.Err = err
		if !errors.Is(err, context.Canceled) {
			o.logger.Debug("backtest run failed", zap.Int("index", index), zap.Any("params", params), zap.Error(err))
		}
	case res.Metrics == nil:
		ev.Outcome = OutcomeNoTrades
	case Accept(res.Metrics, o.thresholds):
		ev.Outcome = OutcomeAccepted
		ev.Metrics = res.Metrics
	default:
		ev.Outcome = OutcomeRejected
		ev.Metrics = res.Metrics
	}

	o.observer.ObserveRun(ev.Outcome, time.Since(started))
	return ev
}

func (o *Optimizer) warnEvenGridCounts(space Configurations) {
	seen := make(map[int]bool)
	for i := 0; i < space.Len(); i++ {
		n := space.At(i).GridCount
		if n%2 != 0 || seen[n] {
			continue
		}
		seen[n] = true
		o.logger.Warn("even grid count builds an odd ladder",
			zap.Int("grid_count", n),
			zap.Int("levels", 2*(n/2)+1),
		)
	}
}

// Rank 按收益率降序稳定排序，收益率相同的保持枚举顺序
func Rank(results []models.OptimizationResult) {
	slices.SortStableFunc(results, func(a, b models.OptimizationResult) int {
		return cmp.Compare(b.Metrics.ProfitRatio, a.Metrics.ProfitRatio)
	})
}
