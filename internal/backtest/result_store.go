package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type runModel struct {
	ID             string `gorm:"primaryKey;column:id"`
	Symbol         string `gorm:"column:symbol;index"`
	Strategy       string `gorm:"column:strategy;index"`
	Timeframe      string `gorm:"column:timeframe"`
	Status         string `gorm:"column:status;index"`
	Message        string `gorm:"column:message"`
	StartTS        int64  `gorm:"column:start_ts"`
	EndTS          int64  `gorm:"column:end_ts"`
	InitialCapital float64
	FinalEquity    float64
	ConfigJSON     datatypes.JSON `gorm:"column:config_json;type:TEXT"`
	ReportJSON     datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	CreatedAt      int64          `gorm:"column:created_at"`
	UpdatedAt      int64          `gorm:"column:updated_at"`
	CompletedAt    int64          `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID         int64  `gorm:"primaryKey;autoIncrement;column:id"`
	RunID      string `gorm:"column:run_id;index"`
	Symbol     string `gorm:"column:symbol"`
	Side       string `gorm:"column:side"`
	EntryTS    int64  `gorm:"column:entry_ts"`
	ExitTS     int64  `gorm:"column:exit_ts"`
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64 `gorm:"column:pnl"`
	PnLPct     float64 `gorm:"column:pnl_pct"`
	Open       bool    `gorm:"column:open"`
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityPointModel struct {
	ID       int64   `gorm:"primaryKey;autoIncrement;column:id"`
	RunID    string  `gorm:"column:run_id;index:idx_equity_run_ts"`
	TS       int64   `gorm:"column:ts;index:idx_equity_run_ts"`
	Equity   float64 `gorm:"column:equity"`
	Drawdown float64 `gorm:"column:drawdown"`
}

func (equityPointModel) TableName() string { return "backtest_equity" }

// ResultStore 持久化回测结果：run 摘要、成交日志、资金曲线。
type ResultStore struct {
	db *gorm.DB
}

func NewResultStore(root string) (*ResultStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("result store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(root, "runs.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// CGO_ENABLED=0 builds: route the gorm sqlite dialect through the pure-Go
	// modernc.org/sqlite driver (registered as "sqlite" in store.go) instead of
	// the default cgo-only mattn binding. The DSN already uses modernc's
	// _pragma query syntax.
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityPointModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little read parallelism for the HTTP layer.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入一条新建的 run 记录。
func (s *ResultStore) InsertRun(ctx context.Context, run Run) error {
	cfgJSON, err := run.MarshalConfig()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	model := runModel{
		ID:             run.ID,
		Symbol:         run.Symbol,
		Strategy:       run.Strategy,
		Timeframe:      run.Timeframe,
		Status:         run.Status,
		Message:        run.Message,
		StartTS:        run.StartTS,
		EndTS:          run.EndTS,
		InitialCapital: run.InitialCapital,
		FinalEquity:    run.FinalEquity,
		ConfigJSON:     datatypes.JSON(cfgJSON),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateRunStatus 更新状态与提示；done/failed 时补记完成时间。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	now := time.Now().UnixMilli()
	updates := map[string]any{
		"status":     status,
		"message":    message,
		"updated_at": now,
	}
	if status == RunStatusDone || status == RunStatusFailed {
		updates["completed_at"] = now
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

// SaveOutcome 一次性落库某个 run 的曲线、成交与绩效报告。
func (s *ResultStore) SaveOutcome(ctx context.Context, runID string, curve EquityCurve, trades []Trade, report MetricsReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, tr := range trades {
			model := tradeModel{
				RunID:      runID,
				Symbol:     tr.Symbol,
				Side:       tr.Side,
				EntryTS:    tr.EntryTS,
				ExitTS:     tr.ExitTS,
				EntryPrice: tr.EntryPrice,
				ExitPrice:  tr.ExitPrice,
				Quantity:   tr.Quantity,
				PnL:        tr.PnL,
				PnLPct:     tr.PnLPct,
				Open:       tr.Open,
			}
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		}
		points := make([]equityPointModel, 0, len(curve))
		for _, p := range curve {
			points = append(points, equityPointModel{RunID: runID, TS: p.TS, Equity: p.Equity, Drawdown: p.Drawdown})
		}
		if len(points) > 0 {
			if err := tx.CreateInBatches(points, 500).Error; err != nil {
				return err
			}
		}
		return tx.Model(&runModel{}).Where("id = ?", runID).Updates(map[string]any{
			"final_equity": report.FinalEquity,
			"report_json":  datatypes.JSON(reportJSON),
			"updated_at":   now,
		}).Error
	})
}

// GetRun 按 ID 读取 run。
func (s *ResultStore) GetRun(ctx context.Context, id string) (Run, error) {
	var model runModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return Run{}, err
	}
	return modelToRun(model)
}

// ListRuns 按创建时间倒序列出 run。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(models))
	for _, m := range models {
		run, err := modelToRun(m)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// ListTrades 返回某 run 的成交日志（入场时间升序）。
func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]Trade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("entry_ts ASC, id ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(models))
	for _, m := range models {
		out = append(out, Trade{
			Symbol:     m.Symbol,
			Side:       m.Side,
			EntryTS:    m.EntryTS,
			ExitTS:     m.ExitTS,
			EntryPrice: m.EntryPrice,
			ExitPrice:  m.ExitPrice,
			Quantity:   m.Quantity,
			PnL:        m.PnL,
			PnLPct:     m.PnLPct,
			Open:       m.Open,
		})
	}
	return out, nil
}

// ListEquity 返回某 run 的资金曲线（时间升序）。
// limit <= 0 表示全量，供图表渲染与导出使用。
func (s *ResultStore) ListEquity(ctx context.Context, runID string, limit int) (EquityCurve, error) {
	q := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []equityPointModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make(EquityCurve, 0, len(models))
	for _, m := range models {
		out = append(out, EquityPoint{TS: m.TS, Equity: m.Equity, Drawdown: m.Drawdown})
	}
	return out, nil
}

func modelToRun(m runModel) (Run, error) {
	run := Run{
		ID:             m.ID,
		Symbol:         m.Symbol,
		Strategy:       m.Strategy,
		Timeframe:      m.Timeframe,
		Status:         m.Status,
		Message:        m.Message,
		StartTS:        m.StartTS,
		EndTS:          m.EndTS,
		InitialCapital: m.InitialCapital,
		FinalEquity:    m.FinalEquity,
		CreatedAt:      timeFromMillis(m.CreatedAt),
		UpdatedAt:      timeFromMillis(m.UpdatedAt),
		CompletedAt:    timeFromMillis(m.CompletedAt),
	}
	if len(m.ConfigJSON) > 0 {
		if err := json.Unmarshal(m.ConfigJSON, &run.Config); err != nil {
			return Run{}, err
		}
	}
	if len(m.ReportJSON) > 0 {
		if err := json.Unmarshal(m.ReportJSON, &run.Report); err != nil {
			return Run{}, err
		}
	}
	return run, nil
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond))
}
