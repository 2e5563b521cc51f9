package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"backlab/internal/backtest"
	"backlab/internal/market"
)

// Source 从本地 CSV 文件读取 K 线，用于离线数据或单元测试。
// 文件名约定为 <SYMBOL>_<interval>.csv，列依次是
// open_time,open,high,low,close,volume[,close_time,trades]，首行可为表头。
type Source struct {
	root string
}

func New(root string) (*Source, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("csv root is required: %w", market.ErrInvalidParameter)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("csv root %s is not a directory: %w", root, market.ErrInvalidParameter)
	}
	return &Source{root: root}, nil
}

func (s *Source) Name() string { return "csvfile" }

func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol/interval is required: %w", market.ErrInvalidParameter)
	}
	path := filepath.Join(s.root, fmt.Sprintf("%s_%s.csv", symbol, interval))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	var out []market.Candle
	line := 0
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv %s line %d: %w", path, line+1, err)
		}
		line++
		if line == 1 && looksLikeHeader(record) {
			continue
		}
		candle, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: %w", path, line, err)
		}
		if req.Start > 0 && candle.OpenTime < req.Start {
			continue
		}
		if req.End > 0 && candle.OpenTime > req.End {
			continue
		}
		out = append(out, candle)
	}
	return out, nil
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}

func parseRow(record []string) (market.Candle, error) {
	if len(record) < 6 {
		return market.Candle{}, fmt.Errorf("expected at least 6 columns, got %d: %w", len(record), market.ErrInvalidData)
	}
	fields := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("column %d: %v: %w", i, err, market.ErrInvalidData)
		}
		fields[i] = v
	}
	c := market.Candle{
		OpenTime: int64(fields[0]),
		Open:     fields[1],
		High:     fields[2],
		Low:      fields[3],
		Close:    fields[4],
		Volume:   fields[5],
	}
	if len(record) > 6 {
		if v, err := strconv.ParseInt(strings.TrimSpace(record[6]), 10, 64); err == nil {
			c.CloseTime = v
		}
	}
	if len(record) > 7 {
		if v, err := strconv.ParseInt(strings.TrimSpace(record[7]), 10, 64); err == nil {
			c.Trades = v
		}
	}
	if c.CloseTime == 0 {
		c.CloseTime = c.OpenTime
	}
	return c, nil
}
