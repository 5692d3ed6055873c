package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TypeStamp returns the modification counter for a type. Zero for types
// never touched.
func (s *Store) TypeStamp(ctx context.Context, typ int) (int64, error) {
	var stamp int64
	err := s.db.QueryRowContext(ctx, `
		SELECT modified FROM type_stamps WHERE type = ?
	`, typ).Scan(&stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("type stamp %d: %w", typ, err)
	}
	return stamp, nil
}

// TouchType bumps a type's modification counter inside the commit
// transaction. Caches holding an older stamp refresh on next read.
func TouchType(ctx context.Context, tx *sql.Tx, typ int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO type_stamps (type, modified) VALUES (?, 1)
		ON CONFLICT(type) DO UPDATE SET modified = modified + 1
	`, typ)
	if err != nil {
		return fmt.Errorf("touch type %d: %w", typ, err)
	}
	return nil
}
