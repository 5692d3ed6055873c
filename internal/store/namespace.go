package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// NamespaceOwner reports who holds a committed namespace value.
// ok is false when the value is unclaimed.
func (s *Store) NamespaceOwner(ctx context.Context, namespace, value string) (ownerType, ownerNum int, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT owner_type, owner_num FROM namespace_marks
		WHERE namespace = ? AND value = ?
	`, namespace, value).Scan(&ownerType, &ownerNum)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("namespace owner %s/%s: %w", namespace, value, err)
	}
	return ownerType, ownerNum, true, nil
}

// Mark is a namespace claim to be promoted at commit.
type Mark struct {
	Namespace string
	Value     string
	OwnerType int
	OwnerNum  int
}

// PromoteMarks moves an editset's namespace reservations into committed
// state inside the commit transaction. Replaced values are cleared in
// the same statement batch, so a rename atomically trades old for new.
func PromoteMarks(ctx context.Context, tx *sql.Tx, claims []Mark, releases []Mark) error {
	for _, m := range releases {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM namespace_marks
			WHERE namespace = ? AND value = ? AND owner_type = ? AND owner_num = ?
		`, m.Namespace, m.Value, m.OwnerType, m.OwnerNum)
		if err != nil {
			return fmt.Errorf("release mark %s/%s: %w", m.Namespace, m.Value, err)
		}
	}

	for _, m := range claims {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO namespace_marks (namespace, value, owner_type, owner_num)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(namespace, value) DO UPDATE SET
				owner_type = excluded.owner_type,
				owner_num  = excluded.owner_num
		`, m.Namespace, m.Value, m.OwnerType, m.OwnerNum)
		if err != nil {
			return fmt.Errorf("claim mark %s/%s: %w", m.Namespace, m.Value, err)
		}
	}

	return nil
}
