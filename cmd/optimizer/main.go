package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"grid-optimizer/internal/analysis"
	"grid-optimizer/internal/api"
	"grid-optimizer/internal/config"
	"grid-optimizer/internal/logger"
	"grid-optimizer/internal/models"
	"grid-optimizer/internal/observability"
	"grid-optimizer/internal/persistence"
	"grid-optimizer/internal/reporter"
	"grid-optimizer/internal/runner"
	"grid-optimizer/internal/storage"
	"grid-optimizer/internal/tradelog"
)

type options struct {
	configPath string
	mode       string
	dataPath   string
	timeFrame  string
	outPath    string
	top        int
	symbol     string
	startDate  string
	endDate    string
	workers    int

	gridCount int
	deviation float64
	profit    float64
	limit     int
	quantity  int
}

// extractSymbolFromPath 从数据文件路径中提取交易代码
// 例如: "data/MARA-2024-01-01-2024-03-01.csv" -> "MARA"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	symbol, _, _ := strings.Cut(name, "-")
	return symbol
}

func main() {
	// --- 命令行参数定义 ---
	var o options
	flag.StringVar(&o.configPath, "config", "config.json", "path to the config file (.json or .yaml)")
	flag.StringVar(&o.mode, "mode", "optimize", "running mode: backtest, optimize, suggest, download or serve")
	flag.StringVar(&o.dataPath, "data", "", "path to the trade log CSV")
	flag.StringVar(&o.timeFrame, "timeframe", "", "daily or intraday; inferred from the data when empty")
	flag.StringVar(&o.outPath, "out", "", "write ranked results to this CSV file")
	flag.IntVar(&o.top, "top", 0, "number of results to print (default from config)")
	flag.StringVar(&o.symbol, "symbol", "", "symbol to download (e.g., BTCUSDT)")
	flag.StringVar(&o.startDate, "start", "", "download start date (YYYY-MM-DD)")
	flag.StringVar(&o.endDate, "end", "", "download end date (YYYY-MM-DD)")
	flag.IntVar(&o.workers, "workers", 0, "parallel backtests (default from config)")
	flag.IntVar(&o.gridCount, "grid", 0, "backtest: grid count (suggested when 0)")
	flag.Float64Var(&o.deviation, "deviation", 0, "backtest: grid spacing ratio")
	flag.Float64Var(&o.profit, "profit", 0, "backtest: take-profit ratio")
	flag.IntVar(&o.limit, "limit", 0, "backtest: position limit per level")
	flag.IntVar(&o.quantity, "qty", 0, "backtest: order quantity")
	flag.Parse()

	// --- 初始化日志 (提前) ---
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	// --- 加载 .env 文件 ---
	if err := godotenv.Load(); err != nil {
		logger.S().Debug("未找到 .env 文件，将从系统环境变量中读取。")
	}

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	if o.workers > 0 {
		cfg.Optimizer.Workers = o.workers
	}

	// --- 使用文件中的配置重新初始化日志 ---
	logger.InitLogger(cfg.LogConfig)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch o.mode {
	case "backtest":
		err = runBacktest(ctx, cfg, o)
	case "optimize":
		err = runOptimize(ctx, cfg, o)
	case "suggest":
		err = runSuggest(ctx, cfg, o)
	case "download":
		_, err = download(ctx, o)
	case "serve":
		err = runServe(ctx, cfg)
	default:
		err = fmt.Errorf("未知的运行模式: %s。请选择 backtest, optimize, suggest, download 或 serve。", o.mode)
	}
	if err != nil {
		logger.S().Fatal(err)
	}
}

// loadConfig 加载配置文件；默认路径不存在时使用内置配置
func loadConfig(path string) (*models.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) && path == "config.json" {
		logger.S().Infof("未找到 %s，使用默认配置。", path)
		return config.Default(), nil
	}
	return cfg, err
}

// download 下载币安成交数据并返回文件路径
func download(ctx context.Context, o options) (string, error) {
	if o.symbol == "" || o.startDate == "" || o.endDate == "" {
		return "", errors.New("download 需要 -symbol, -start 和 -end 参数")
	}
	startTime, err1 := time.Parse(time.DateOnly, o.startDate)
	endTime, err2 := time.Parse(time.DateOnly, o.endDate)
	if err1 != nil || err2 != nil {
		return "", fmt.Errorf("日期格式错误，请使用 YYYY-MM-DD 格式。start: %v, end: %v", err1, err2)
	}

	fileName := filepath.Join("data", fmt.Sprintf("%s-%s-%s.csv", o.symbol, o.startDate, o.endDate))
	d := tradelog.NewDownloader(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"), logger.L())
	if err := d.Download(ctx, o.symbol, fileName, startTime, endTime); err != nil {
		return "", fmt.Errorf("下载数据失败: %w", err)
	}
	return fileName, nil
}

// loadTrades 读取成交记录。提供了 symbol/start/end 时先下载。
func loadTrades(ctx context.Context, o options) (*tradelog.Log, string, error) {
	dataPath := o.dataPath
	if o.symbol != "" && o.startDate != "" && o.endDate != "" {
		path, err := download(ctx, o)
		if err != nil {
			return nil, "", err
		}
		dataPath = path
	}
	if dataPath == "" {
		return nil, "", errors.New("必须通过 -data 提供成交记录文件，或通过 -symbol, -start, -end 下载")
	}

	l, err := tradelog.LoadFile(dataPath)
	if err != nil {
		return nil, "", err
	}
	logger.S().Infof("加载了 %d 笔全部成交记录 (跳过 %d 行无效记录, %d 行未成交记录)", len(l.Fills), l.Skipped, l.Unfilled)

	symbol := o.symbol
	if symbol == "" {
		symbol = l.Symbol
	}
	if symbol == "" {
		symbol = extractSymbolFromPath(dataPath)
	}
	return l, symbol, nil
}

func resolveTimeFrame(flagValue string, events []models.TradeEvent) (models.TimeFrame, error) {
	if flagValue != "" {
		return models.ParseTimeFrame(flagValue)
	}
	return analysis.InferTimeFrame(events)
}

func runSuggest(ctx context.Context, cfg *models.Config, o options) error {
	l, _, err := loadTrades(ctx, o)
	if err != nil {
		return err
	}
	events := l.Events()
	tf, err := resolveTimeFrame(o.timeFrame, events)
	if err != nil {
		return err
	}
	stats, err := analysis.Analyze(events, tf)
	if err != nil {
		return err
	}
	reporter.RenderStats(os.Stdout, tf, stats)
	reporter.RenderSuggestion(os.Stdout, analysis.Suggest(stats, tf, cfg))
	return nil
}

func runBacktest(ctx context.Context, cfg *models.Config, o options) error {
	if o.gridCount < 0 {
		return fmt.Errorf("-grid must not be negative, got %d", o.gridCount)
	}
	l, _, err := loadTrades(ctx, o)
	if err != nil {
		return err
	}
	events := l.Events()

	params := models.ParameterConfiguration{
		GridCount:        o.gridCount,
		PriceDeviation:   o.deviation,
		ProfitRatio:      o.profit,
		PositionLimit:    o.limit,
		MinOrderQuantity: o.quantity,
	}
	if params.GridCount == 0 {
		// 未指定参数时使用建议参数
		tf, err := resolveTimeFrame(o.timeFrame, events)
		if err != nil {
			return err
		}
		stats, err := analysis.Analyze(events, tf)
		if err != nil {
			return err
		}
		params = analysis.Suggest(stats, tf, cfg).Params()
		logger.S().Infof("使用建议参数: %+v", params)
	}
	if params.GridCount%2 == 0 {
		logger.S().Warnf("网格数 %d 为偶数，实际生成 %d 个档位", params.GridCount, 2*(params.GridCount/2)+1)
	}

	res, err := runner.New(cfg, logger.L()).Backtest(ctx, events, params)
	if err != nil {
		return err
	}
	reporter.RenderMetrics(os.Stdout, params, res.Metrics)
	return nil
}

func runOptimize(ctx context.Context, cfg *models.Config, o options) error {
	l, symbol, err := loadTrades(ctx, o)
	if err != nil {
		return err
	}
	var tf models.TimeFrame
	if o.timeFrame != "" {
		if tf, err = models.ParseTimeFrame(o.timeFrame); err != nil {
			return err
		}
	}

	opts, closeAll, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeAll()

	run, err := runner.New(cfg, logger.L(), opts...).Optimize(ctx, symbol, tf, l.Events())
	if err != nil {
		return err
	}

	top := o.top
	if top == 0 {
		top = cfg.Optimizer.TopN
	}
	reporter.RenderResults(os.Stdout, run.Results, top)
	reporter.LogSummary(logger.L(), run)

	if o.outPath != "" {
		f, err := os.Create(o.outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := reporter.WriteResultsCSV(f, run.Results); err != nil {
			return fmt.Errorf("导出结果失败: %w", err)
		}
		logger.S().Infof("结果已导出到 %s", o.outPath)
	}
	return nil
}

// openStorage 按配置打开 Badger 和 SQLite，没有配置路径的存储不启用
func openStorage(cfg *models.Config) ([]runner.Option, func(), error) {
	var opts []runner.Option
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Storage.BadgerPath != "" {
		repo, err := persistence.NewBadgerRepository(cfg.Storage.BadgerPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, runner.WithRepository(repo))
		closers = append(closers, func() { repo.Close() })
	}
	if cfg.Storage.SQLitePath != "" {
		db, err := storage.InitDB(cfg.Storage.SQLitePath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, runner.WithResultsDB(db))
		closers = append(closers, func() { db.Close() })
	}
	return opts, closeAll, nil
}

func runServe(ctx context.Context, cfg *models.Config) error {
	// API 服务总是保存运行记录，未配置路径时使用内存模式
	repo, err := persistence.NewBadgerRepository(cfg.Storage.BadgerPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	opts := []runner.Option{runner.WithRepository(repo)}
	if cfg.Storage.SQLitePath != "" {
		db, err := storage.InitDB(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, runner.WithResultsDB(db))
	}

	metrics := observability.NewMetrics("")
	opts = append(opts, runner.WithMetrics(metrics))
	srv := api.NewServer(runner.New(cfg, logger.L(), opts...), metrics, logger.L())

	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
