package tradelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"
)

// 币安归集交易接口要求 startTime 和 endTime 相差不超过一小时
const (
	aggTradeWindow = time.Hour
	aggTradeLimit  = 1000
)

// AggTradeFetcher 抽象了归集交易的查询，方便在测试中替换
type AggTradeFetcher interface {
	AggTrades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*binance.AggTrade, error)
}

type binanceFetcher struct {
	client *binance.Client
}

func (f *binanceFetcher) AggTrades(ctx context.Context, symbol string, start, end time.Time, limit int) ([]*binance.AggTrade, error) {
	return f.client.NewAggTradesService().
		Symbol(symbol).
		StartTime(start.UnixMilli()).
		EndTime(end.UnixMilli()).
		Limit(limit).
		Do(ctx)
}

// Downloader 从币安下载历史成交并保存为成交记录文件
type Downloader struct {
	fetcher AggTradeFetcher
	logger  *zap.Logger
	pause   time.Duration
}

// NewDownloader 创建一个使用币安公共接口的下载器，apiKey 可以为空
func NewDownloader(apiKey, secretKey string, logger *zap.Logger) *Downloader {
	return NewDownloaderWithFetcher(&binanceFetcher{client: binance.NewClient(apiKey, secretKey)}, logger, 200*time.Millisecond)
}

// NewDownloaderWithFetcher 使用自定义的数据源创建下载器
func NewDownloaderWithFetcher(fetcher AggTradeFetcher, logger *zap.Logger, pause time.Duration) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{fetcher: fetcher, logger: logger, pause: pause}
}

// Download 下载指定交易对在 [start, end) 内的成交并写入 filePath。
// 如果文件已存在，则会跳过下载，直接使用缓存。
func (d *Downloader) Download(ctx context.Context, symbol, filePath string, start, end time.Time) error {
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		d.logger.Info("从缓存加载数据", zap.String("file", filePath))
		return nil
	}
	if !start.Before(end) {
		return fmt.Errorf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	d.logger.Info("开始下载成交数据",
		zap.String("symbol", symbol),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	fills, err := d.fetch(ctx, symbol, start, end)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", filePath, err)
	}
	// 先写临时文件，完整写入后再改名，避免中断时留下被当作缓存的半个文件
	tmp := filePath + ".part"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	rows := make([]*Row, len(fills))
	for i, f := range fills {
		rows[i] = FillRow(f)
	}
	if err := WriteRows(file, rows); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write trade log: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return err
	}

	d.logger.Info("成功下载成交数据", zap.String("file", filePath), zap.Int("fills", len(fills)))
	return nil
}

func (d *Downloader) fetch(ctx context.Context, symbol string, start, end time.Time) ([]Fill, error) {
	var fills []Fill
	for windowStart := start; windowStart.Before(end); {
		windowEnd := windowStart.Add(aggTradeWindow)
		if windowEnd.After(end) {
			windowEnd = end
		}

		trades, err := d.fetcher.AggTrades(ctx, symbol, windowStart, windowEnd.Add(-time.Millisecond), aggTradeLimit)
		if err != nil {
			return nil, fmt.Errorf("download agg trades from %s: %w", windowStart.Format(time.RFC3339), err)
		}

		for _, t := range trades {
			fill, err := aggTradeFill(symbol, t)
			if err != nil {
				return nil, err
			}
			fills = append(fills, fill)
		}

		// 单次返回达到上限时，从最后一笔之后继续请求同一窗口
		if len(trades) == aggTradeLimit {
			windowStart = time.UnixMilli(trades[len(trades)-1].Timestamp + 1).UTC()
		} else {
			windowStart = windowEnd
		}
		d.logger.Debug("已下载数据", zap.Time("until", windowStart), zap.Int("fills", len(fills)))

		if d.pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.pause): // 避免过于频繁的请求
			}
		}
	}
	return fills, nil
}

func aggTradeFill(symbol string, t *binance.AggTrade) (Fill, error) {
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("agg trade %d price %q: %w", t.AggTradeID, t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("agg trade %d quantity %q: %w", t.AggTradeID, t.Quantity, err)
	}
	return Fill{
		Symbol:   symbol,
		Time:     time.UnixMilli(t.Timestamp).UTC(),
		Price:    price,
		Quantity: qty,
	}, nil
}
