// Package journal provides optional, best-effort persistence of fan-out
// events to Postgres. It is ambient observability infrastructure: its
// absence or failure never alters the gateway's observable behavior toward
// Ws subscribers — see gatewaycore for the authoritative in-memory path.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coldbell/drift-gateway/internal/gatewaycore"
)

// Store persists an append-only log of delivered AccountEvents, keyed by
// transaction signature, for the GET /transactionEvent/{sig} lookup.
type Store struct {
	db *sql.DB
}

// NewStore opens dbDSN and runs the journal's single migration. Returns
// (nil, nil) when dbDSN is empty: the journal is optional, and callers
// should treat a nil *Store as "persistence disabled" rather than an error.
func NewStore(dbDSN string) (*Store, error) {
	if strings.TrimSpace(dbDSN) == "" {
		return nil, nil
	}

	db, err := sql.Open("pgx", dbDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(30 * time.Second)
	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(8)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS account_events (
	id BIGSERIAL PRIMARY KEY,
	signature TEXT NOT NULL,
	sub_account_id SMALLINT NOT NULL,
	channel TEXT NOT NULL,
	payload JSONB NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS account_events_signature_idx ON account_events (signature);
`
	_, err := s.db.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("migrate account_events: %w", err)
	}
	return nil
}

// Record appends one delivered event to the journal. Failures are the
// caller's to log and absorb — journaling never blocks or fails event
// delivery to Ws subscribers.
func (s *Store) Record(ctx context.Context, signature string, subAccountID uint8, channel string, event gatewaycore.AccountEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal account event: %w", err)
	}

	const stmt = `INSERT INTO account_events (signature, sub_account_id, channel, payload) VALUES ($1, $2, $3, $4)`
	_, err = s.db.ExecContext(ctx, stmt, signature, subAccountID, channel, payload)
	if err != nil {
		return fmt.Errorf("insert account event: %w", err)
	}
	return nil
}

// ErrNotFound is returned by ForSignature when no events were ever recorded
// for the given signature, distinguishing a genuinely unknown tx from an
// RPC/SDK failure when rendering GET /transactionEvent/{sig}.
var ErrNotFound = fmt.Errorf("journal: no events recorded for signature")

// ForSignature returns every event recorded against signature, ordered by
// the events' tx_idx and then by insertion (records are written from
// concurrent goroutines, so insertion order alone does not follow tx_idx).
func (s *Store) ForSignature(ctx context.Context, signature string) ([]gatewaycore.AccountEvent, error) {
	const stmt = `SELECT payload FROM account_events WHERE signature = $1 ORDER BY (payload->>'txIdx')::int ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, stmt, signature)
	if err != nil {
		return nil, fmt.Errorf("query account events: %w", err)
	}
	defer rows.Close()

	var events []gatewaycore.AccountEvent
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan account event: %w", err)
		}
		var event gatewaycore.AccountEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return nil, fmt.Errorf("unmarshal account event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return events, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
