package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JournalEntry is one finished sequence as stored in sequence_journal.
type JournalEntry struct {
	Session    string
	SequenceID uuid.UUID
	Name       string
	Owner      string
	Outcome    string // "completed", "cancelled"
	Reason     string
	Steps      int
	StartFrame uint64
	EndFrame   uint64
	RecordedAt time.Time // set by the database
}

type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

// WriteBatch writes all entries in a single transaction. On error nothing is
// written and the caller keeps the batch.
func (r *JournalRepo) WriteBatch(ctx context.Context, entries []JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sequence_journal (session, sequence_id, name, owner, outcome, reason, steps, start_frame, end_frame)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.Session, e.SequenceID.String(), e.Name, e.Owner, e.Outcome, e.Reason,
			e.Steps, int64(e.StartFrame), int64(e.EndFrame),
		); err != nil {
			return fmt.Errorf("journal insert %s: %w", e.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// Recent returns the newest entries of a session, newest first.
func (r *JournalRepo) Recent(ctx context.Context, session string, limit int) ([]JournalEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT session, sequence_id::text, name, owner, outcome, reason, steps, start_frame, end_frame, recorded_at
		 FROM sequence_journal WHERE session = $1
		 ORDER BY id DESC LIMIT $2`,
		session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e          JournalEntry
			id         string
			start, end int64
		)
		if err := rows.Scan(&e.Session, &id, &e.Name, &e.Owner, &e.Outcome, &e.Reason,
			&e.Steps, &start, &end, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		if e.SequenceID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("journal sequence id %q: %w", id, err)
		}
		e.StartFrame, e.EndFrame = uint64(start), uint64(end)
		out = append(out, e)
	}
	return out, rows.Err()
}
