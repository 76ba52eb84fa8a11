package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"webhook-recorder/internal/calls"

	"github.com/google/uuid"
)

// NOTE: Postgres keeps each record as a JSONB document next to the columns
// reads are addressed by. The table is bootstrapped with EnsureSchema:
//
//	webhook_calls (seq bigserial, id text pk, service text, created_at timestamptz, document jsonb, raw_body bytea)
//
// seq gives FindAll its insertion order. JSONB normalizes the body it
// stores, so raw_body keeps the captured payload bytes for reads and replay.

const createCallsTable = `
CREATE TABLE IF NOT EXISTS webhook_calls (
  seq        BIGSERIAL,
  id         TEXT PRIMARY KEY,
  service    TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  document   JSONB NOT NULL,
  raw_body   BYTEA
)
`

const addRawBodyColumn = `
ALTER TABLE webhook_calls ADD COLUMN IF NOT EXISTS raw_body BYTEA
`

const createCallsServiceIndex = `
CREATE INDEX IF NOT EXISTS webhook_calls_service_seq_idx ON webhook_calls (service, seq)
`

// Postgres opens one dedicated connection per session from a database/sql
// handle (driver "pgx") and hands it back on Close.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the calls table if it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{createCallsTable, addRawBodyColumn, createCallsServiceIndex} {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Open(ctx context.Context) (Session, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, connectionFailed(err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, connectionFailed(err)
	}
	return &postgresSession{conn: conn}, nil
}

type postgresSession struct {
	conn *sql.Conn
}

func (s *postgresSession) Insert(ctx context.Context, rec calls.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", writeFailed(err)
	}
	rec.ID = uuid.NewString()
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", writeFailed(err)
	}

	const q = `
INSERT INTO webhook_calls (id, service, created_at, document, raw_body)
VALUES ($1, $2, $3, $4::jsonb, $5)
`
	if _, err := s.conn.ExecContext(ctx, q, rec.ID, rec.Service, rec.CreatedAt, string(doc), rec.Body.Raw); err != nil {
		return "", writeFailed(err)
	}
	return rec.ID, nil
}

func (s *postgresSession) FindAll(ctx context.Context, service string) ([]calls.Record, error) {
	const q = `
SELECT document, raw_body
FROM webhook_calls
WHERE service = $1
ORDER BY seq
`
	rows, err := s.conn.QueryContext(ctx, q, service)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Record, 0)
	for rows.Next() {
		var doc, raw []byte
		if err := rows.Scan(&doc, &raw); err != nil {
			return nil, err
		}
		rec, err := decodeRow(doc, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *postgresSession) FindOne(ctx context.Context, service, id string) (calls.Record, bool, error) {
	const q = `
SELECT document, raw_body
FROM webhook_calls
WHERE service = $1 AND id = $2
`
	var doc, raw []byte
	if err := s.conn.QueryRowContext(ctx, q, service, id).Scan(&doc, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Record{}, false, nil
		}
		return calls.Record{}, false, err
	}
	rec, err := decodeRow(doc, raw)
	if err != nil {
		return calls.Record{}, false, err
	}
	return rec, true, nil
}

func decodeRow(doc, raw []byte) (calls.Record, error) {
	var rec calls.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return calls.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return withRawBody(rec, raw)
}

func (s *postgresSession) Close(ctx context.Context) error {
	return s.conn.Close()
}
