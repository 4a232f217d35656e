// Copyright 2025 QuantumGrid
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresStore persists ledger records to PostgreSQL. Inserts commit before
// Append returns, satisfying the durability contract.
//
// Columns store the exact representation the chain hashes were computed over:
// detail is the canonical JSON text (NULL when the event carried none) and the
// timestamp is epoch nanoseconds. JSONB or TIMESTAMPTZ would normalize those
// values on the way in, and a verify after a round trip would recompute
// different hashes over intact records.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle and ensures
// the ledger table exists.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return s, nil
}

// ensureSchema creates the ledger table if it doesn't exist.
func (s *PostgresStore) ensureSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_records (
		sequence BIGINT PRIMARY KEY,
		id VARCHAR(255) NOT NULL,
		request_id VARCHAR(255) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		backend_id VARCHAR(255),
		error_kind VARCHAR(50),
		detail TEXT,
		payload_hash VARCHAR(64) NOT NULL,
		prev_hash VARCHAR(64) NOT NULL,
		timestamp_ns BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_records_request_id ON ledger_records(request_id);
	CREATE INDEX IF NOT EXISTS idx_ledger_records_event_type ON ledger_records(event_type);
	`

	_, err := s.db.Exec(query)
	return err
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_records (
			sequence, id, request_id, event_type, backend_id, error_kind,
			detail, payload_hash, prev_hash, timestamp_ns
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
	`,
		rec.Sequence, rec.ID, rec.RequestID, string(rec.Type),
		rec.BackendID, rec.ErrorKind,
		string(rec.Detail), rec.PayloadHash, rec.PrevHash, rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger record: %w", err)
	}
	return nil
}

// Last implements Store.
func (s *PostgresStore) Last(ctx context.Context) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT sequence, id, request_id, event_type,
		       COALESCE(backend_id, ''), COALESCE(error_kind, ''),
		       detail, payload_hash, prev_hash, timestamp_ns
		FROM ledger_records
		ORDER BY sequence DESC
		LIMIT 1
	`)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last ledger record: %w", err)
	}
	return rec, nil
}

// Range implements Store.
func (s *PostgresStore) Range(ctx context.Context, fromSeq, toSeq uint64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, request_id, event_type,
		       COALESCE(backend_id, ''), COALESCE(error_kind, ''),
		       detail, payload_hash, prev_hash, timestamp_ns
		FROM ledger_records
		WHERE sequence >= $1 AND sequence <= $2
		ORDER BY sequence ASC
	`, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger range: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// ByRequest implements Store.
func (s *PostgresStore) ByRequest(ctx context.Context, requestID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, id, request_id, event_type,
		       COALESCE(backend_id, ''), COALESCE(error_kind, ''),
		       detail, payload_hash, prev_hash, timestamp_ns
		FROM ledger_records
		WHERE request_id = $1
		ORDER BY sequence ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger by request: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRecords(rows)
}

// Ping reports whether the underlying database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var eventType string
	var detail sql.NullString
	var timestampNs int64
	err := row.Scan(
		&rec.Sequence, &rec.ID, &rec.RequestID, &eventType,
		&rec.BackendID, &rec.ErrorKind,
		&detail, &rec.PayloadHash, &rec.PrevHash, &timestampNs,
	)
	if err != nil {
		return nil, err
	}
	rec.Type = EventType(eventType)
	if detail.Valid {
		rec.Detail = []byte(detail.String)
	}
	rec.Timestamp = time.Unix(0, timestampNs).UTC()
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
