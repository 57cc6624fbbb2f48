package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CryptoCast/internal/domain/models"
	pkgch "CryptoCast/pkg/clickhouse"
	applogger "CryptoCast/pkg/logger"
)

// ClickHouseRecorder appends prediction events to a MergeTree table.
type ClickHouseRecorder struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseRecorder(ch *pkgch.Client, table string, l *applogger.Logger) *ClickHouseRecorder {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseRecorder{db: ch.DB(), table: table, l: l}
}

// Schema returns the DDL for the prediction table.
func (r *ClickHouseRecorder) Schema() []string {
	return []string{fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                    String,
			ts                    DateTime64(3, 'UTC'),
			symbol                LowCardinality(String),
			predicted_price       Float64,
			normalized_prediction Float64,
			policy                LowCardinality(String),
			model_generation      UInt64,
			raw_features          String,
			normalized_features   String,
			latency_ms            Int64
		) ENGINE = MergeTree
		ORDER BY (symbol, ts)`, r.table)}
}

func (r *ClickHouseRecorder) Record(ctx context.Context, e *models.PredictionEvent) error {
	raw, norm, err := encodeFeatures(e)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, ts, symbol, predicted_price, normalized_prediction,
		policy, model_generation, raw_features, normalized_features, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, r.table)
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.Timestamp, e.Symbol, e.PredictedPrice, e.NormalizedPrediction,
		e.Policy, e.ModelGeneration, raw, norm, e.LatencyMs,
	); err != nil {
		r.l.Error("clickhouse insert prediction failed",
			applogger.String("table", r.table),
			applogger.String("symbol", e.Symbol),
			applogger.Error(err),
		)
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *ClickHouseRecorder) Recent(ctx context.Context, symbol string, limit int) ([]*models.PredictionEvent, error) {
	q, args := recentQuery(r.table, symbol, limit)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PredictionEvent, 0, limit)
	for rows.Next() {
		var (
			e         models.PredictionEvent
			ts        time.Time
			raw, norm string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Symbol, &e.PredictedPrice, &e.NormalizedPrediction, &e.Policy,
			&e.ModelGeneration, &raw, &norm, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		e.Timestamp = ts.UTC()
		if err := decodeFeatures(&e, raw, norm); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close is a no-op; the client is owned by the caller.
func (r *ClickHouseRecorder) Close() error { return nil }

func recentQuery(table, symbol string, limit int) (string, []any) {
	q := fmt.Sprintf(`SELECT id, ts, symbol, predicted_price, normalized_prediction, policy,
		model_generation, raw_features, normalized_features, latency_ms FROM %s`, table)
	var args []any
	if symbol != "" {
		q += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	q += " ORDER BY ts DESC LIMIT ?"
	args = append(args, limit)
	return q, args
}
