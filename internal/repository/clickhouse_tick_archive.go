package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"IgniteX/internal/domain/models"
)

// ClickHouseTickArchive stores raw ingested ticks for replay and audit.
type ClickHouseTickArchive struct {
	db    *sql.DB
	table string
}

func NewClickHouseTickArchive(db *sql.DB, table string) *ClickHouseTickArchive {
	return &ClickHouseTickArchive{db: db, table: table}
}

// rows per INSERT statement
const tickChunk = 2000

// StoreBatch inserts ticks with multi-row VALUES, tickChunk rows per statement.
func (a *ClickHouseTickArchive) StoreBatch(ctx context.Context, ticks []models.Tick) error {
	for start := 0; start < len(ticks); start += tickChunk {
		end := start + tickChunk
		if end > len(ticks) {
			end = len(ticks)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, t := range ticks[start:end] {
			if t.Symbol == "" || t.TimestampMs <= 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, time.UnixMilli(t.TimestampMs).UTC(), t.Symbol, t.Price, t.Volume, t.SourceID)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, volume, source) VALUES %s", a.table, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %d ticks: %w", len(values), err)
		}
	}
	return nil
}

// Query returns archived ticks of symbol in [from, to], newest first.
func (a *ClickHouseTickArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error) {
	q := fmt.Sprintf("SELECT ts, symbol, price, volume, source FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", a.table)
	rows, err := a.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []models.Tick
	for rows.Next() {
		var t models.Tick
		var ts time.Time
		if err := rows.Scan(&ts, &t.Symbol, &t.Price, &t.Volume, &t.SourceID); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.TimestampMs = ts.UnixMilli()
		out = append(out, t)
	}
	return out, rows.Err()
}
