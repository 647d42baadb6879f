package reporter

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"grid-optimizer/internal/analysis"
	"grid-optimizer/internal/models"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// RenderResults 打印排名前 topN 的参数组合，topN <= 0 时打印全部
func RenderResults(w io.Writer, results []models.OptimizationResult, topN int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "没有参数组合通过筛选")
		return
	}
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}

	t := newTable(w, "参数优化结果")
	t.AppendHeader(table.Row{"#", "网格数", "间距", "止盈", "步长", "单格上限", "下单量", "收益率", "总利润", "交易次数", "胜率", "最大回撤"})
	for i, r := range results {
		p, m := r.Configuration, r.Metrics
		t.AppendRow(table.Row{
			i + 1, p.GridCount, p.PriceDeviation, p.ProfitRatio, p.PositionStep, p.PositionLimit, p.MinOrderQuantity,
			pct(m.ProfitRatio), fmt.Sprintf("%.2f", m.TotalProfit), m.TradeCount, pct(m.WinRate), pct(m.MaxDrawdown),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
	})
	t.Render()
}

// RenderMetrics 打印单次回测的指标；没有成交时给出提示而不是零值
func RenderMetrics(w io.Writer, params models.ParameterConfiguration, m *models.Metrics) {
	t := newTable(w, "回测结果报告")
	t.AppendRows([]table.Row{
		{"网格数", params.GridCount},
		{"网格间距", params.PriceDeviation},
		{"止盈比例", params.ProfitRatio},
		{"单格持仓上限", params.PositionLimit},
		{"单次下单量", params.MinOrderQuantity},
	})
	t.AppendSeparator()
	if m == nil {
		t.AppendRow(table.Row{"结果", "没有成交，无法评估"})
		t.Render()
		return
	}
	t.AppendRows([]table.Row{
		{"期末价值", fmt.Sprintf("%.2f", m.FinalValue)},
		{"总利润", fmt.Sprintf("%.2f", m.TotalProfit)},
		{"收益率", pct(m.ProfitRatio)},
		{"交易次数", m.TradeCount},
		{"胜率", pct(m.WinRate)},
		{"最大回撤", pct(m.MaxDrawdown)},
	})
	t.Render()
}

// RenderStats 打印价格统计
func RenderStats(w io.Writer, tf models.TimeFrame, s models.PriceStats) {
	t := newTable(w, "价格分析")
	t.AppendRows([]table.Row{
		{"时间周期", string(tf)},
		{"成交笔数", s.Count},
		{"均价", fmt.Sprintf("%.4f", s.Mean)},
		{"标准差", fmt.Sprintf("%.4f", s.Std)},
		{"价格区间", fmt.Sprintf("%.4f - %.4f (%.4f)", s.Min, s.Max, s.Range)},
		{"波动率", pct(s.Volatility)},
		{"日内波动率", pct(s.DailyVolatility)},
	})
	t.Render()
}

// RenderSuggestion 打印建议参数
func RenderSuggestion(w io.Writer, s analysis.Suggestion) {
	t := newTable(w, "参数建议")
	t.AppendRows([]table.Row{
		{"时间周期", string(s.TimeFrame)},
		{"网格数", s.GridCount},
		{"单网格资金", fmt.Sprintf("%.2f", s.SingleGridAmount)},
		{"总持仓上限", s.PositionLimit},
		{"网格间距", s.PriceDeviation},
		{"最小止盈", s.MinProfitRatio},
		{"单次下单量", s.MinOrderQuantity},
	})
	t.Render()
}

// resultRow 是导出 CSV 的一行
type resultRow struct {
	Rank             int     `csv:"rank"`
	GridCount        int     `csv:"grid_count"`
	PriceDeviation   float64 `csv:"price_deviation"`
	TargetProfit     float64 `csv:"target_profit_ratio"`
	PositionStep     float64 `csv:"position_step"`
	PositionLimit    int     `csv:"position_limit"`
	MinOrderQuantity int     `csv:"min_order_quantity"`
	TotalProfit      float64 `csv:"total_profit"`
	ProfitRatio      float64 `csv:"profit_ratio"`
	TradeCount       int     `csv:"trade_count"`
	WinRate          float64 `csv:"win_rate"`
	MaxDrawdown      float64 `csv:"max_drawdown"`
	FinalValue       float64 `csv:"final_value"`
}

// WriteResultsCSV 按排名导出结果
func WriteResultsCSV(w io.Writer, results []models.OptimizationResult) error {
	rows := make([]*resultRow, len(results))
	for i, r := range results {
		p, m := r.Configuration, r.Metrics
		rows[i] = &resultRow{
			Rank:             i + 1,
			GridCount:        p.GridCount,
			PriceDeviation:   p.PriceDeviation,
			TargetProfit:     p.ProfitRatio,
			PositionStep:     p.PositionStep,
			PositionLimit:    p.PositionLimit,
			MinOrderQuantity: p.MinOrderQuantity,
			TotalProfit:      m.TotalProfit,
			ProfitRatio:      m.ProfitRatio,
			TradeCount:       m.TradeCount,
			WinRate:          m.WinRate,
			MaxDrawdown:      m.MaxDrawdown,
			FinalValue:       m.FinalValue,
		}
	}
	return gocsv.Marshal(&rows, w)
}

// LogSummary 把一次参数搜索的摘要写入日志
func LogSummary(logger *zap.Logger, run *models.OptimizationRun) {
	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("symbol", run.Symbol),
		zap.String("time_frame", string(run.TimeFrame)),
		zap.Float64("volatility", run.Stats.Volatility),
		zap.Int("evaluated", run.Evaluated),
		zap.Int("accepted", run.Accepted),
		zap.Int("no_trades", run.NoTrades),
		zap.Int("failed", run.Failed),
	}
	if len(run.Results) > 0 {
		best := run.Results[0]
		fields = append(fields,
			zap.Int("best_grid_count", best.Configuration.GridCount),
			zap.Float64("best_profit_ratio", best.Metrics.ProfitRatio),
			zap.Float64("best_max_drawdown", best.Metrics.MaxDrawdown),
		)
	}
	logger.Info("========== 参数优化完成 ==========", fields...)
}
