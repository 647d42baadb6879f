package runner

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"grid-optimizer/internal/analysis"
	"grid-optimizer/internal/backtest"
	"grid-optimizer/internal/models"
	"grid-optimizer/internal/observability"
	"grid-optimizer/internal/optimizer"
	"grid-optimizer/internal/persistence"
	"grid-optimizer/internal/storage"
)

// Runner 把价格分析、参数搜索和结果持久化串成一次完整的优化流程
type Runner struct {
	cfg     *models.Config
	opt     *optimizer.Optimizer
	repo    persistence.RunRepository
	db      *sql.DB
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// Option 配置 Runner 的可选依赖
type Option func(*Runner)

// WithRepository 保存每次优化的完整记录
func WithRepository(repo persistence.RunRepository) Option {
	return func(r *Runner) { r.repo = repo }
}

// WithResultsDB 把排名结果写入 SQLite
func WithResultsDB(db *sql.DB) Option {
	return func(r *Runner) { r.db = db }
}

// WithMetrics 记录 Prometheus 指标
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New 创建 Runner
func New(cfg *models.Config, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{cfg: cfg, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	var observer optimizer.Observer
	if r.metrics != nil {
		observer = r.metrics
	}
	r.opt = optimizer.New(cfg, logger, observer)
	return r
}

// Config 返回 Runner 使用的配置
func (r *Runner) Config() *models.Config {
	return r.cfg
}

// Backtest 用给定参数回测一次
func (r *Runner) Backtest(ctx context.Context, events []models.TradeEvent, params models.ParameterConfiguration) (*backtest.Result, error) {
	return r.opt.Engine().Run(ctx, events, params)
}

// Optimize 分析价格、生成参数空间并搜索。tf 为空时根据成交间隔推断。
// 配置了存储时会保存运行记录和结果表。
func (r *Runner) Optimize(ctx context.Context, symbol string, tf models.TimeFrame, events []models.TradeEvent) (*models.OptimizationRun, error) {
	if tf == "" {
		inferred, err := analysis.InferTimeFrame(events)
		if err != nil {
			return nil, fmt.Errorf("infer time frame: %w", err)
		}
		tf = inferred
	}

	stats, err := analysis.Analyze(events, tf)
	if err != nil {
		return nil, fmt.Errorf("analyze prices: %w", err)
	}

	space := optimizer.NewSpace(stats, tf, r.cfg)
	r.logger.Info("开始参数优化",
		zap.String("symbol", symbol),
		zap.String("time_frame", string(tf)),
		zap.Int("events", len(events)),
		zap.Int("combinations", space.Len()),
		zap.Float64("volatility", stats.Volatility),
	)

	report, err := r.opt.Optimize(ctx, events, space)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.Optimizations.Inc()
	}

	now := r.now().UTC()
	run := &models.OptimizationRun{
		ID:        persistence.NewRunID(symbol, now),
		Symbol:    symbol,
		TimeFrame: tf,
		CreatedAt: now,
		Stats:     stats,
		Evaluated: report.Evaluated,
		Accepted:  report.Accepted,
		Rejected:  report.Rejected,
		NoTrades:  report.NoTrades,
		Failed:    report.Failed,
		Results:   report.Results,
	}

	if r.repo != nil {
		if err := r.repo.SaveRun(run); err != nil {
			return nil, fmt.Errorf("save run %s: %w", run.ID, err)
		}
	}
	if r.db != nil {
		if err := storage.SaveResults(r.db, run.ID, symbol, run.Results); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// Run 读取已保存的运行记录，不存在或没有配置存储时返回 (nil, nil)
func (r *Runner) Run(id string) (*models.OptimizationRun, error) {
	if r.repo == nil {
		return nil, nil
	}
	return r.repo.LoadRun(id)
}

// Runs 列出已保存的运行记录
func (r *Runner) Runs() ([]*models.OptimizationRun, error) {
	if r.repo == nil {
		return []*models.OptimizationRun{}, nil
	}
	runs, err := r.repo.ListRuns()
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*models.OptimizationRun{}
	}
	return runs, nil
}
