package models

import "fmt"

// TimeFrame 标识历史成交记录的时间周期
type TimeFrame string

const (
	Daily    TimeFrame = "daily"
	Intraday TimeFrame = "intraday"
)

// ParseTimeFrame 解析命令行或请求中的时间周期字符串。
// "30min" 是旧数据文件使用的写法，视为日内周期。
func ParseTimeFrame(s string) (TimeFrame, error) {
	switch s {
	case "daily", "1d":
		return Daily, nil
	case "intraday", "30min", "30m":
		return Intraday, nil
	default:
		return "", fmt.Errorf("unknown time frame %q", s)
	}
}

// Config 结构体定义了优化器的所有配置参数
type Config struct {
	Symbol             string               `json:"symbol" yaml:"symbol"`                               // 交易代码，仅用于报告和存储
	InitialCapital     float64              `json:"initial_capital" yaml:"initial_capital"`             // 初始资金
	MaxCapitalUsage    float64              `json:"max_capital_usage" yaml:"max_capital_usage"`         // 最大资金使用率
	SingleGridMaxRatio float64              `json:"single_grid_max_ratio" yaml:"single_grid_max_ratio"` // 单网格最大资金占比
	LotSize            LotSizeConfig        `json:"lot_size" yaml:"lot_size"`                           // 下单数量约束
	Thresholds         AcceptanceThresholds `json:"thresholds" yaml:"thresholds"`                       // 回测评估标准
	ParameterGrids     ParameterGrids       `json:"parameter_grids" yaml:"parameter_grids"`             // 参数搜索范围
	Optimizer          OptimizerConfig      `json:"optimizer" yaml:"optimizer"`
	Storage            StorageConfig        `json:"storage" yaml:"storage"`
	Server             ServerConfig         `json:"server" yaml:"server"`
	LogConfig          LogConfig            `json:"log" yaml:"log"`
}

// LotSizeConfig 定义了订单数量的下限、上限与步长
type LotSizeConfig struct {
	Floor   int `json:"floor" yaml:"floor"`     // 最小交易数量
	Ceiling int `json:"ceiling" yaml:"ceiling"` // 最大交易数量
	Step    int `json:"step" yaml:"step"`       // 数量步长
}

// AcceptanceThresholds 是参数组合必须全部满足的筛选条件
type AcceptanceThresholds struct {
	MinProfitRatio float64 `json:"min_profit_ratio" yaml:"min_profit_ratio"` // 严格大于
	MaxDrawdown    float64 `json:"max_drawdown" yaml:"max_drawdown"`
	MinTradeCount  int     `json:"min_trade_count" yaml:"min_trade_count"`
	MinWinRate     float64 `json:"min_win_rate" yaml:"min_win_rate"`
}

// ParameterGrid 描述一个时间周期下各参数轴的取值。
// 间距和止盈比例以波动率的倍数给出。
type ParameterGrid struct {
	GridCounts           []int     `json:"grid_counts" yaml:"grid_counts"`
	DeviationMultipliers []float64 `json:"deviation_multipliers" yaml:"deviation_multipliers"`
	ProfitMultipliers    []float64 `json:"profit_multipliers" yaml:"profit_multipliers"`
	PositionSteps        []float64 `json:"position_steps" yaml:"position_steps"`
}

// ParameterGrids 按时间周期分组的搜索范围
type ParameterGrids struct {
	Daily    ParameterGrid `json:"daily" yaml:"daily"`
	Intraday ParameterGrid `json:"intraday" yaml:"intraday"`
}

// For 返回指定时间周期的搜索范围
func (g ParameterGrids) For(tf TimeFrame) ParameterGrid {
	if tf == Daily {
		return g.Daily
	}
	return g.Intraday
}

// OptimizerConfig 控制参数搜索的执行方式
type OptimizerConfig struct {
	Workers         int  `json:"workers" yaml:"workers"`                       // 并行回测数量, <=0 表示使用CPU核数
	RunTimeoutMs    int  `json:"run_timeout_ms" yaml:"run_timeout_ms"`         // 单次回测超时, 0 表示不限制
	MarkToLastEvent bool `json:"mark_to_last_event" yaml:"mark_to_last_event"` // 期末持仓按最后一笔行情计价
	TopN            int  `json:"top_n" yaml:"top_n"`                           // 报告中展示的结果数量
}

// StorageConfig 定义了结果持久化的位置
type StorageConfig struct {
	BadgerPath string `json:"badger_path" yaml:"badger_path"` // 为空时使用内存模式
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"` // 为空时不写入结果表
}

// ServerConfig 定义了 HTTP API 的监听参数
type ServerConfig struct {
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" yaml:"level"`             // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" yaml:"output"`           // 输出模式: "console", "file", "both"
	File       string `json:"file" yaml:"file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" yaml:"max_size"`       // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" yaml:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" yaml:"max_age"`         // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" yaml:"compress"`       // 是否压缩旧日志文件
}
