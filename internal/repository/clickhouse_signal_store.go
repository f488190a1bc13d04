package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"IgniteX/internal/domain/models"
	domrepo "IgniteX/internal/domain/repository"
)

// SignalSchema returns the DDL for the signal and tick tables in database.
func SignalSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signals (
	id String,
	symbol LowCardinality(String),
	direction LowCardinality(String),
	status LowCardinality(String),
	tier LowCardinality(String),
	created_at DateTime64(3, 'UTC'),
	version UInt64,
	payload String,
	saved_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(version) ORDER BY id`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ticks (
	ts DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	price Float64,
	volume Float64,
	source LowCardinality(String)
) ENGINE = MergeTree ORDER BY (symbol, ts) TTL toDateTime(ts) + INTERVAL 30 DAY`, database),
	}
}

// ClickHouseSignalStore appends one row per record version. Reads take the
// highest version per id, so results never depend on merge timing.
type ClickHouseSignalStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

func NewClickHouseSignalStore(db *sql.DB, table string) *ClickHouseSignalStore {
	return &ClickHouseSignalStore{db: db, table: table, now: time.Now}
}

// Init is a no-op; DDL runs when the client is provided.
func (s *ClickHouseSignalStore) Init(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalStore) Save(ctx context.Context, rec models.SignalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode signal %s: %w", rec.Signal.ID, err)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, symbol, direction, status, tier, created_at, version, payload, saved_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err = s.db.ExecContext(ctx, q,
		rec.Signal.ID,
		rec.Signal.Symbol,
		string(rec.Signal.Direction),
		string(rec.Signal.Status),
		string(rec.Signal.Tier),
		rec.Signal.CreatedAt.UTC(),
		rec.Version,
		string(payload),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", rec.Signal.ID, err)
	}
	return nil
}

func (s *ClickHouseSignalStore) Get(ctx context.Context, id string) (models.SignalRecord, error) {
	q := fmt.Sprintf("SELECT payload FROM %s WHERE id = ? ORDER BY version DESC LIMIT 1", s.table)
	var payload string
	if err := s.db.QueryRowContext(ctx, q, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SignalRecord{}, fmt.Errorf("signal %s: %w", id, domrepo.ErrNotFound)
		}
		return models.SignalRecord{}, fmt.Errorf("select signal %s: %w", id, err)
	}
	return decodeRecord(payload)
}

func (s *ClickHouseSignalStore) ListOpen(ctx context.Context) ([]models.SignalRecord, error) {
	q := fmt.Sprintf(`SELECT p FROM (
	SELECT argMax(payload, version) AS p, argMax(status, version) AS st, min(created_at) AS c
	FROM %s GROUP BY id
) WHERE st IN (?, ?) ORDER BY c ASC`, s.table)
	return s.query(ctx, q, string(models.StatusPendingDelivery), string(models.StatusActive))
}

func (s *ClickHouseSignalStore) History(ctx context.Context, limit int) ([]models.SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q := fmt.Sprintf(`SELECT argMax(payload, version) AS p FROM %s GROUP BY id ORDER BY min(created_at) DESC LIMIT ?`, s.table)
	return s.query(ctx, q, limit)
}

func (s *ClickHouseSignalStore) query(ctx context.Context, q string, args ...interface{}) ([]models.SignalRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []models.SignalRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close leaves the pool to pkg/clickhouse.
func (s *ClickHouseSignalStore) Close() error { return nil }

func decodeRecord(payload string) (models.SignalRecord, error) {
	var rec models.SignalRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.SignalRecord{}, fmt.Errorf("decode signal payload: %w", err)
	}
	return rec, nil
}
