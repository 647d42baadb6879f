package tradelog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"grid-optimizer/internal/models"
)

// 成交记录文件的列名
const (
	ColumnSymbol   = "代码"
	ColumnTime     = "成交时间"
	ColumnPrice    = "成交价格"
	ColumnQuantity = "成交数量"
	ColumnStatus   = "交易状态"

	// StatusFilled 全部成交，只有这种状态的记录参与回测
	StatusFilled = "全部成交"
)

// TimeLayout 是写入文件时使用的时间格式
const TimeLayout = "2006/01/02 15:04:05"

var timeLayouts = []string{
	TimeLayout,
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrMissingColumns 表示文件缺少必需的列
var ErrMissingColumns = errors.New("trade log is missing required columns")

// Row 是成交记录文件中的一行，所有字段按原文读取
type Row struct {
	Symbol   string `csv:"代码"`
	Time     string `csv:"成交时间"`
	Price    string `csv:"成交价格"`
	Quantity string `csv:"成交数量"`
	Status   string `csv:"交易状态"`
}

// Fill 是一笔解析后的全部成交记录
type Fill struct {
	Symbol   string
	Time     time.Time
	Price    float64
	Quantity float64
}

// Log 是加载后的成交记录，已按时间升序排列
type Log struct {
	Symbol   string
	Fills    []Fill
	Skipped  int // 状态为全部成交但无法解析或价格非正的行数
	Unfilled int // 其他状态的行数
}

// LoadFile 从 CSV 文件加载成交记录
func LoadFile(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("load trade log %s: %w", path, err)
	}
	return l, nil
}

// Parse 解析成交记录，只保留全部成交且价格为正的记录
func Parse(r io.Reader) (*Log, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if err := checkHeader(raw); err != nil {
		return nil, err
	}

	var rows []*Row
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}

	l := &Log{Fills: make([]Fill, 0, len(rows))}
	for _, row := range rows {
		if strings.TrimSpace(row.Status) != StatusFilled {
			l.Unfilled++
			continue
		}
		fill, ok := row.parse()
		if !ok {
			l.Skipped++
			continue
		}
		if l.Symbol == "" {
			l.Symbol = fill.Symbol
		}
		l.Fills = append(l.Fills, fill)
	}

	slices.SortStableFunc(l.Fills, func(a, b Fill) int {
		return a.Time.Compare(b.Time)
	})
	return l, nil
}

func checkHeader(raw []byte) error {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	header := string(line)
	var missing []string
	for _, col := range []string{ColumnTime, ColumnPrice, ColumnStatus} {
		if !strings.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Row) parse() (Fill, bool) {
	ts, err := ParseTime(r.Time)
	if err != nil {
		return Fill{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(r.Price), 64)
	if err != nil || price <= 0 {
		return Fill{}, false
	}
	qty := 0.0
	if q := strings.TrimSpace(r.Quantity); q != "" {
		if qty, err = strconv.ParseFloat(q, 64); err != nil {
			return Fill{}, false
		}
	}
	return Fill{
		Symbol:   strings.TrimSpace(r.Symbol),
		Time:     ts,
		Price:    price,
		Quantity: qty,
	}, true
}

// ParseTime 按支持的几种格式解析成交时间，没有时区信息的按 UTC 处理
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// Events 返回回测使用的事件序列
func (l *Log) Events() []models.TradeEvent {
	events := make([]models.TradeEvent, len(l.Fills))
	for i, f := range l.Fills {
		events[i] = models.TradeEvent{Timestamp: f.Time, Price: f.Price}
	}
	return events
}

// Normalize 去掉价格非正的事件并按时间稳定排序，返回新的切片
func Normalize(events []models.TradeEvent) []models.TradeEvent {
	out := make([]models.TradeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Price > 0 {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b models.TradeEvent) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out
}

// WriteRows 把成交记录按文件格式写出
func WriteRows(w io.Writer, rows []*Row) error {
	return gocsv.Marshal(&rows, w)
}

// FillRow 把一笔成交转换为文件中的一行
func FillRow(f Fill) *Row {
	return &Row{
		Symbol:   f.Symbol,
		Time:     f.Time.UTC().Format(TimeLayout),
		Price:    strconv.FormatFloat(f.Price, 'f', -1, 64),
		Quantity: strconv.FormatFloat(f.Quantity, 'f', -1, 64),
		Status:   StatusFilled,
	}
}
