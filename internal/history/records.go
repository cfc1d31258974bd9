package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Outcome names how a transfer left its queue.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeRemoved   Outcome = "removed"
)

// Entry is one recorded transfer outcome.
type Entry struct {
	ID         int64
	Direction  string
	Key        string
	Path       string
	Size       uint64
	Outcome    Outcome
	Reason     string
	FinishedAt time.Time
}

// Ticket is an issued outbound redemption ticket.
type Ticket struct {
	ID        int64
	Ticket    string
	FileCount int
	CreatedAt time.Time
}

// ListOptions filters List results.
type ListOptions struct {
	Direction string
	Outcome   Outcome
	Limit     int
}

// RecordTransfer appends a transfer outcome.
func (s *Store) RecordTransfer(ctx context.Context, entry Entry) (int64, error) {
	if strings.TrimSpace(entry.Key) == "" {
		return 0, fmt.Errorf("record transfer: key is required")
	}
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	res, err := s.exec(ctx,
		`INSERT INTO transfers (direction, item_key, path, size_bytes, outcome, reason, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Direction,
		entry.Key,
		nullableString(entry.Path),
		int64(entry.Size),
		string(entry.Outcome),
		nullableString(entry.Reason),
		finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// RecordTicket stores an issued ticket.
func (s *Store) RecordTicket(ctx context.Context, ticket string, fileCount int) error {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return fmt.Errorf("record ticket: ticket is required")
	}
	_, err := s.exec(ctx,
		`INSERT INTO tickets (ticket, file_count, created_at) VALUES (?, ?, ?)`,
		ticket, fileCount, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// List returns transfer outcomes, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)
	if opts.Direction != "" {
		clauses = append(clauses, "direction = ?")
		args = append(args, opts.Direction)
	}
	if opts.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(opts.Outcome))
	}
	query := `SELECT id, direction, item_key, path, size_bytes, outcome, reason, finished_at FROM transfers`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY finished_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			path     sql.NullString
			reason   sql.NullString
			size     int64
			outcome  string
			finished string
		)
		if err := rows.Scan(&entry.ID, &entry.Direction, &entry.Key, &path, &size, &outcome, &reason, &finished); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		entry.Path = path.String
		entry.Reason = reason.String
		entry.Size = uint64(size)
		entry.Outcome = Outcome(outcome)
		entry.FinishedAt = parseTime(finished)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Tickets returns issued tickets, newest first.
func (s *Store) Tickets(ctx context.Context, limit int) ([]Ticket, error) {
	query := `SELECT id, ticket, file_count, created_at FROM tickets ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var (
			ticket  Ticket
			created string
		)
		if err := rows.Scan(&ticket.ID, &ticket.Ticket, &ticket.FileCount, &created); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		ticket.CreatedAt = parseTime(created)
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

// Prune deletes transfer and ticket rows older than cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	stamp := cutoff.UTC().Format(time.RFC3339Nano)
	res, err := s.exec(ctx, `DELETE FROM transfers WHERE finished_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("prune transfers: %w", err)
	}
	removed, _ := res.RowsAffected()
	if _, err := s.exec(ctx, `DELETE FROM tickets WHERE created_at < ?`, stamp); err != nil {
		return removed, fmt.Errorf("prune tickets: %w", err)
	}
	return removed, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTime(value string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}
