package tradelog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"go.uber.org/zap"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	start, end time.Time
}

// fakeFetcher 按请求窗口返回预置的成交
type fakeFetcher struct {
	trades  []*binance.AggTrade
	calls   []window
	failing bool
}

func (f *fakeFetcher) AggTrades(_ context.Context, _ string, start, end time.Time, limit int) ([]*binance.AggTrade, error) {
	f.calls = append(f.calls, window{start, end})
	if f.failing {
		return nil, errors.New("service unavailable")
	}
	var out []*binance.AggTrade
	for _, t := range f.trades {
		if t.Timestamp >= start.UnixMilli() && t.Timestamp <= end.UnixMilli() {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

var dlStart = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

func aggTrade(id int64, offset time.Duration, price string) *binance.AggTrade {
	return &binance.AggTrade{AggTradeID: id, Price: price, Quantity: "0.5", Timestamp: dlStart.Add(offset).UnixMilli()}
}

// TestDownloadWritesHourlyWindows verifies the range is split into hourly requests and saved as a trade log.
func TestDownloadWritesHourlyWindows(t *testing.T) {
	fetcher := &fakeFetcher{trades: []*binance.AggTrade{
		aggTrade(1, 10*time.Minute, "100.5"),
		aggTrade(2, 70*time.Minute, "101.25"),
		aggTrade(3, 150*time.Minute, "99.75"),
	}}
	d := NewDownloaderWithFetcher(fetcher, zap.NewNop(), 0)
	path := filepath.Join(t.TempDir(), "data", "BTCUSDT.csv")

	require.NoError(t, d.Download(context.Background(), "BTCUSDT", path, dlStart, dlStart.Add(150*time.Minute+time.Second)))

	require.Len(t, fetcher.calls, 3)
	assert.Equal(t, dlStart, fetcher.calls[0].start)
	assert.Equal(t, dlStart.Add(time.Hour), fetcher.calls[1].start)
	assert.Equal(t, dlStart.Add(time.Hour-time.Millisecond), fetcher.calls[0].end)

	l, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", l.Symbol)
	require.Len(t, l.Fills, 3)
	assert.Equal(t, 101.25, l.Fills[1].Price)
	assert.Equal(t, 0.5, l.Fills[1].Quantity)

	// 文件已存在时不再请求
	require.NoError(t, d.Download(context.Background(), "BTCUSDT", path, dlStart, dlStart.Add(time.Hour)))
	assert.Len(t, fetcher.calls, 3)
}

// TestDownloadPaginatesFullWindows verifies a full page continues within the same window.
func TestDownloadPaginatesFullWindows(t *testing.T) {
	var trades []*binance.AggTrade
	for i := 0; i < aggTradeLimit+5; i++ {
		trades = append(trades, aggTrade(int64(i), time.Duration(i)*time.Second, "10"))
	}
	fetcher := &fakeFetcher{trades: trades}
	d := NewDownloaderWithFetcher(fetcher, nil, 0)

	fills, err := d.fetch(context.Background(), "ETHUSDT", dlStart, dlStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, fills, aggTradeLimit+5)
	require.Len(t, fetcher.calls, 2)
	assert.Equal(t, time.UnixMilli(trades[aggTradeLimit-1].Timestamp+1).UTC(), fetcher.calls[1].start)
}

func TestDownloadErrors(t *testing.T) {
	d := NewDownloaderWithFetcher(&fakeFetcher{failing: true}, zap.NewNop(), 0)
	path := filepath.Join(t.TempDir(), "x.csv")

	err := d.Download(context.Background(), "BTCUSDT", path, dlStart, dlStart.Add(time.Hour))
	assert.ErrorContains(t, err, "service unavailable")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	err = d.Download(context.Background(), "BTCUSDT", path, dlStart, dlStart)
	assert.Error(t, err)

	bad := NewDownloaderWithFetcher(&fakeFetcher{trades: []*binance.AggTrade{{Price: "abc", Quantity: "1", Timestamp: dlStart.UnixMilli()}}}, nil, 0)
	_, err = bad.fetch(context.Background(), "BTCUSDT", dlStart, dlStart.Add(time.Hour))
	assert.ErrorContains(t, err, "price")
}
