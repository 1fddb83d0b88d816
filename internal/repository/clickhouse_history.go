package repository

import (
	"context"
	"database/sql"
	"fmt"

	"SignalRelay/internal/domain/models"
	domrepo "SignalRelay/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// execer is the subset of *sql.DB the history writer needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// ClickHouseHistory appends one row per inbound alert. Inserts rely on the
// connection's async_insert setting for batching.
type ClickHouseHistory struct {
	db    execer
	table string
}

func NewClickHouseHistory(db execer, table string) *ClickHouseHistory {
	if table == "" {
		table = "alert_history"
	}
	return &ClickHouseHistory{db: db, table: table}
}

// HistorySchema returns the idempotent DDL for the history table.
func HistorySchema(table string) []string {
	if table == "" {
		table = "alert_history"
	}
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id              String,
	received_at     DateTime64(3, 'UTC'),
	status          LowCardinality(String),
	reason          String,
	setup_class     LowCardinality(String),
	direction       LowCardinality(String),
	action          LowCardinality(String),
	format          LowCardinality(String),
	entry_price     Nullable(Decimal(18, 6)),
	target          Nullable(Decimal(18, 6)),
	partial_target  Nullable(Decimal(18, 6)),
	stop_loss       Nullable(Decimal(18, 6)),
	exit_price      Nullable(Decimal(18, 6)),
	win_rate        Nullable(Decimal(9, 4)),
	expected_value  Nullable(Decimal(18, 6)),
	risk_reward     Nullable(Decimal(18, 6)),
	sample_size     Nullable(UInt32),
	session         LowCardinality(String),
	volatility_mode LowCardinality(String),
	timeframe       LowCardinality(String),
	total           UInt32,
	notified        UInt32,
	skipped         UInt32,
	raw_payload     String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(received_at)
ORDER BY (received_at, id)`, table)}
}

const historyColumns = `id, received_at, status, reason, setup_class, direction, action, format,
	entry_price, target, partial_target, stop_loss, exit_price,
	win_rate, expected_value, risk_reward, sample_size,
	session, volatility_mode, timeframe, total, notified, skipped, raw_payload`

func (h *ClickHouseHistory) Record(ctx context.Context, rec *models.AlertRecord) error {
	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, h.table, historyColumns)

	a := rec.Alert
	if a == nil {
		a = &models.Alert{}
	}
	var sampleSize *uint32
	if a.SampleSize != nil {
		n := uint32(*a.SampleSize)
		sampleSize = &n
	}

	_, err := h.db.ExecContext(ctx, q,
		rec.ID,
		rec.ReceivedAt.UTC(),
		string(rec.Status),
		rec.Reason,
		string(a.SetupClass),
		string(a.Direction),
		a.Action,
		string(a.Format),
		nullable(a.EntryPrice),
		nullable(a.Target),
		nullable(a.PartialTarget),
		nullable(a.StopLoss),
		nullable(a.ExitPrice),
		nullable(a.WinRatePct),
		nullable(a.ExpectedValue),
		nullable(a.RiskReward),
		sampleSize,
		a.SessionLabel,
		a.VolatilityModeLabel,
		a.TimeframeDisplay,
		uint32(rec.Total),
		uint32(rec.Notified),
		uint32(rec.Skipped),
		rec.RawPayload,
	)
	if err != nil {
		return fmt.Errorf("clickhouse: insert alert %s: %w", rec.ID, err)
	}
	return nil
}

func (h *ClickHouseHistory) Health(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

var _ domrepo.AlertHistory = (*ClickHouseHistory)(nil)
