package pgstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billsync/pkg/billing"
	"github.com/dmitrymomot/billsync/pkg/pg"
)

// Ledger records webhook deliveries in the webhook_events table.
// The event_id primary key makes Record the idempotence gate.
type Ledger struct {
	db DBTX
}

// NewLedger creates a Ledger.
func NewLedger(db DBTX) *Ledger {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &Ledger{db: db}
}

const ledgerColumns = `event_id, event_type, provider, payload, processed, last_error, received_at, processed_at`

type ledgerRow struct {
	EventID     string     `db:"event_id"`
	EventType   string     `db:"event_type"`
	Provider    string     `db:"provider"`
	Payload     []byte     `db:"payload"`
	Processed   bool       `db:"processed"`
	LastError   *string    `db:"last_error"`
	ReceivedAt  time.Time  `db:"received_at"`
	ProcessedAt *time.Time `db:"processed_at"`
}

func (r ledgerRow) toDomain() billing.LedgerEntry {
	return billing.LedgerEntry{
		EventID:     r.EventID,
		EventType:   r.EventType,
		Provider:    r.Provider,
		Payload:     r.Payload,
		Processed:   r.Processed,
		LastError:   deref(r.LastError),
		ReceivedAt:  r.ReceivedAt.UTC(),
		ProcessedAt: utcPtr(r.ProcessedAt),
	}
}

func (l *Ledger) Record(ctx context.Context, e *billing.LedgerEntry) error {
	received := e.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO webhook_events (event_id, event_type, provider, payload, processed, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.EventID, e.EventType, e.Provider, e.Payload, e.Processed, received,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return billing.ErrDuplicateEvent
		}
		return fmt.Errorf("pgstore: record event: %w", err)
	}
	return nil
}

func (l *Ledger) Get(ctx context.Context, eventID string) (*billing.LedgerEntry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+ledgerColumns+` FROM webhook_events WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query event: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[ledgerRow])
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrEventNotFound
		}
		return nil, fmt.Errorf("pgstore: scan event: %w", err)
	}
	e := row.toDomain()
	return &e, nil
}

func (l *Ledger) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return l.update(ctx, `UPDATE webhook_events SET processed = TRUE, processed_at = $2, last_error = NULL WHERE event_id = $1`, eventID, at)
}

func (l *Ledger) MarkFailed(ctx context.Context, eventID, reason string) error {
	return l.update(ctx, `UPDATE webhook_events SET last_error = $2 WHERE event_id = $1`, eventID, reason)
}

func (l *Ledger) update(ctx context.Context, query string, args ...any) error {
	tag, err := l.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgstore: update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrEventNotFound
	}
	return nil
}

// List returns entries newest first.
func (l *Ledger) List(ctx context.Context, f billing.LedgerFilter) ([]billing.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EventType != "" {
		args = append(args, f.EventType)
		where = append(where, "event_type = $"+strconv.Itoa(len(args)))
	}
	if f.Processed != nil {
		args = append(args, *f.Processed)
		where = append(where, "processed = $"+strconv.Itoa(len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + ledgerColumns + ` FROM webhook_events`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY received_at DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := l.db.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list events: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[ledgerRow])
	if err != nil {
		return nil, fmt.Errorf("pgstore: scan events: %w", err)
	}

	out := make([]billing.LedgerEntry, 0, len(found))
	for _, r := range found {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (l *Ledger) Stats(ctx context.Context) (billing.LedgerStats, error) {
	stats := billing.LedgerStats{ByType: make(map[string]int64)}

	rows, err := l.db.Query(ctx, `SELECT event_type, processed, count(*) FROM webhook_events GROUP BY event_type, processed`)
	if err != nil {
		return stats, fmt.Errorf("pgstore: event stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			typ       string
			processed bool
			n         int64
		)
		if err := rows.Scan(&typ, &processed, &n); err != nil {
			return stats, fmt.Errorf("pgstore: scan event stats: %w", err)
		}
		stats.Total += n
		stats.ByType[typ] += n
		if processed {
			stats.Processed += n
		} else {
			stats.Unprocessed += n
		}
	}
	return stats, rows.Err()
}

func (l *Ledger) Clear(ctx context.Context) (int64, error) {
	tag, err := l.db.Exec(ctx, `DELETE FROM webhook_events`)
	if err != nil {
		return 0, fmt.Errorf("pgstore: clear events: %w", err)
	}
	return tag.RowsAffected(), nil
}
