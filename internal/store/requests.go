package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Request is a saved request. Headers holds one "Name: Value" per line.
type Request struct {
	ID           int64
	CollectionID int64
	Name         string
	Method       string
	URL          string
	Headers      string
	Body         string
	Parameters   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const requestColumns = `id, COALESCE(collection_id, 0), name, method, url,
	COALESCE(headers, ''), COALESCE(body, ''), COALESCE(parameters, ''),
	CAST(strftime('%s', created_at) AS INTEGER), CAST(strftime('%s', updated_at) AS INTEGER)`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var r Request
	var created, updated int64
	err := row.Scan(&r.ID, &r.CollectionID, &r.Name, &r.Method, &r.URL,
		&r.Headers, &r.Body, &r.Parameters, &created, &updated)
	if err != nil {
		return Request{}, err
	}
	r.CreatedAt = unix(created)
	r.UpdatedAt = unix(updated)
	return r, nil
}

// SaveRequest stores r in its collection and returns the new id.
func (s *Store) SaveRequest(ctx context.Context, r Request) (int64, error) {
	if r.Name == "" {
		return 0, errors.New("request name must not be empty")
	}
	if _, err := s.Collection(ctx, r.CollectionID); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO requests (collection_id, name, method, url, headers, body, parameters) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.CollectionID, r.Name, r.Method, r.URL, r.Headers, r.Body, r.Parameters)
	if err != nil {
		return 0, fmt.Errorf("saving request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.log.Printf("store: saved request id=%d collection=%d name=%q", id, r.CollectionID, r.Name)
	return id, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r Request) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE requests SET name = ?, method = ?, url = ?, headers = ?, body = ?, parameters = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		r.Name, r.Method, r.URL, r.Headers, r.Body, r.Parameters, r.ID)
	if err != nil {
		return fmt.Errorf("updating request: %w", err)
	}
	return checkAffected(res, "request", r.ID)
}

func (s *Store) DeleteRequest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting request: %w", err)
	}
	return checkAffected(res, "request", id)
}

func (s *Store) Request(ctx context.Context, id int64) (Request, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	return r, err
}

// Requests lists the requests of a collection in the order they were saved.
func (s *Store) Requests(ctx context.Context, collectionID int64) ([]Request, error) {
	if _, err := s.Collection(ctx, collectionID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE collection_id = ? ORDER BY id", collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
