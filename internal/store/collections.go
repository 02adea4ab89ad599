package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Collection struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const collectionColumns = `id, name, COALESCE(description, ''),
	CAST(strftime('%s', created_at) AS INTEGER), CAST(strftime('%s', updated_at) AS INTEGER)`

func scanCollection(row interface{ Scan(...any) error }) (Collection, error) {
	var c Collection
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &created, &updated); err != nil {
		return Collection{}, err
	}
	c.CreatedAt = unix(created)
	c.UpdatedAt = unix(updated)
	return c, nil
}

func (s *Store) CreateCollection(ctx context.Context, name, description string) (int64, error) {
	if name == "" {
		return 0, errors.New("collection name must not be empty")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (name, description) VALUES (?, ?)", name, description)
	if err != nil {
		return 0, fmt.Errorf("creating collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.log.Printf("store: created collection id=%d name=%q", id, name)
	return id, nil
}

func (s *Store) UpdateCollection(ctx context.Context, id int64, name, description string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE collections SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		name, description, id)
	if err != nil {
		return fmt.Errorf("updating collection: %w", err)
	}
	return checkAffected(res, "collection", id)
}

// DeleteCollection removes a collection together with its requests.
func (s *Store) DeleteCollection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM collections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if err := checkAffected(res, "collection", id); err != nil {
		return err
	}
	s.log.Printf("store: deleted collection id=%d", id)
	return nil
}

func (s *Store) Collection(ctx context.Context, id int64) (Collection, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+collectionColumns+" FROM collections WHERE id = ?", id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fmt.Errorf("collection %d: %w", id, ErrNotFound)
	}
	return c, err
}

func (s *Store) Collections(ctx context.Context) ([]Collection, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+collectionColumns+" FROM collections ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
