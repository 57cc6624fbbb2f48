package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"CryptoCast/internal/domain/models"
	applogger "CryptoCast/pkg/logger"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder keeps the prediction audit trail in a local SQLite file.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the database at path and migrates it.
func NewSQLiteRecorder(path string, l *applogger.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// WAL lets history reads run while predictions are being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if l != nil {
		l.Info("sqlite recorder opened", applogger.String("path", path))
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS predictions (
			id                    TEXT PRIMARY KEY,
			timestamp             INTEGER NOT NULL,
			symbol                TEXT NOT NULL,
			predicted_price       REAL,
			normalized_prediction REAL,
			policy                TEXT,
			model_generation      INTEGER,
			raw_features          TEXT,
			normalized_features   TEXT,
			latency_ms            INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_symbol_ts ON predictions(symbol, timestamp)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Record(ctx context.Context, e *models.PredictionEvent) error {
	raw, norm, err := encodeFeatures(e)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO predictions (id, timestamp, symbol, predicted_price, normalized_prediction,
			policy, model_generation, raw_features, normalized_features, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.Symbol, e.PredictedPrice, e.NormalizedPrediction,
		e.Policy, int64(e.ModelGeneration), raw, norm, e.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Recent(ctx context.Context, symbol string, limit int) ([]*models.PredictionEvent, error) {
	q := `SELECT id, timestamp, symbol, predicted_price, normalized_prediction, policy,
		model_generation, raw_features, normalized_features, latency_ms FROM predictions`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY timestamp DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.PredictionEvent, 0, limit)
	for rows.Next() {
		var (
			e         models.PredictionEvent
			ts, gen   int64
			raw, norm string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Symbol, &e.PredictedPrice, &e.NormalizedPrediction, &e.Policy,
			&gen, &raw, &norm, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		e.ModelGeneration = uint64(gen)
		if err := decodeFeatures(&e, raw, norm); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func encodeFeatures(e *models.PredictionEvent) (string, string, error) {
	raw, err := json.Marshal(e.RawFeatures)
	if err != nil {
		return "", "", fmt.Errorf("encode raw features: %w", err)
	}
	norm, err := json.Marshal(e.NormalizedFeatures)
	if err != nil {
		return "", "", fmt.Errorf("encode normalized features: %w", err)
	}
	return string(raw), string(norm), nil
}

func decodeFeatures(e *models.PredictionEvent, raw, norm string) error {
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &e.RawFeatures); err != nil {
			return fmt.Errorf("decode raw features of %s: %w", e.ID, err)
		}
	}
	if norm != "" {
		if err := json.Unmarshal([]byte(norm), &e.NormalizedFeatures); err != nil {
			return fmt.Errorf("decode normalized features of %s: %w", e.ID, err)
		}
	}
	return nil
}
