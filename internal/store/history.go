package store

import (
	"context"
	"fmt"
	"time"
)

type HistoryEntry struct {
	ID              int64
	RunID           string
	Method          string
	URL             string
	Headers         string
	Body            string
	Response        string
	ResponseHeaders string
	StatusCode      int
	ResponseTime    time.Duration
	CreatedAt       time.Time
}

func (s *Store) SaveHistory(ctx context.Context, e HistoryEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (run_id, method, url, headers, body, response, response_headers, status_code, response_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Method, e.URL, e.Headers, e.Body, e.Response, e.ResponseHeaders,
		e.StatusCode, e.ResponseTime.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("saving history: %w", err)
	}
	return res.LastInsertId()
}

// History returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, COALESCE(run_id, ''), method, url,
		COALESCE(headers, ''), COALESCE(body, ''), COALESCE(response, ''), COALESCE(response_headers, ''),
		COALESCE(status_code, 0), COALESCE(response_time, 0), CAST(strftime('%s', created_at) AS INTEGER)
		FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ms, created int64
		err := rows.Scan(&e.ID, &e.RunID, &e.Method, &e.URL, &e.Headers, &e.Body,
			&e.Response, &e.ResponseHeaders, &e.StatusCode, &ms, &created)
		if err != nil {
			return nil, err
		}
		e.ResponseTime = time.Duration(ms) * time.Millisecond
		e.CreatedAt = unix(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ClearHistory(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM history")
	if err != nil {
		return fmt.Errorf("clearing history: %w", err)
	}
	n, _ := res.RowsAffected()
	s.log.Printf("store: cleared history rows=%d", n)
	return nil
}
