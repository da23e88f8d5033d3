// Package store provides the SQLite-backed custody ledger store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/carelink/medfleet/core/custody"
)

// SQLiteStore persists custody entries to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS custody_entries (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        entry_id TEXT NOT NULL,
        delivery_id TEXT NOT NULL,
        kind TEXT NOT NULL,
        ts INTEGER NOT NULL,
        entry TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_custody_delivery ON custody_entries(delivery_id, seq);`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append writes the entry to the database. Entries are never updated or
// deleted.
func (s *SQLiteStore) Append(ctx context.Context, e custody.Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custody_entries (entry_id, delivery_id, kind, ts, entry) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.DeliveryID, e.Kind, e.Timestamp.UnixNano(), string(b))
	return err
}

// ByDelivery returns the delivery's entries in append order.
func (s *SQLiteStore) ByDelivery(ctx context.Context, deliveryID string) ([]custody.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry FROM custody_entries WHERE delivery_id = ? ORDER BY seq`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []custody.Entry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e custody.Entry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		res = append(res, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
