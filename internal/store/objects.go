package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound reports a lookup for an object that is not in the store.
var ErrNotFound = errors.New("object not found")

// ObjectRec is the committed form of a directory object. Field values
// are kept in their wire encoding; the engine's codec interprets them.
type ObjectRec struct {
	Type   int
	Num    int
	Label  string
	Fields map[int][]string
}

// LoadObject reads one committed object with all its field values.
// Vector elements come back in index order.
func (s *Store) LoadObject(ctx context.Context, typ, num int) (*ObjectRec, error) {
	rec := &ObjectRec{Type: typ, Num: num, Fields: make(map[int][]string)}

	err := s.db.QueryRowContext(ctx, `
		SELECT label FROM objects WHERE type = ? AND num = ?
	`, typ, num).Scan(&rec.Label)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load object %d:%d: %w", typ, num, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load object %d:%d: %w", typ, num, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT field, value FROM field_values
		WHERE type = ? AND num = ?
		ORDER BY field ASC, idx ASC
	`, typ, num)
	if err != nil {
		return nil, fmt.Errorf("load object %d:%d: fields: %w", typ, num, err)
	}
	defer rows.Close()

	for rows.Next() {
		var field int
		var value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("load object %d:%d: scan: %w", typ, num, err)
		}
		rec.Fields[field] = append(rec.Fields[field], value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load object %d:%d: rows: %w", typ, num, err)
	}

	return rec, nil
}

// ListObjects returns (num, label) pairs for every committed object of a
// type, ordered by num for deterministic iteration.
func (s *Store) ListObjects(ctx context.Context, typ int) (map[int]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT num, label FROM objects WHERE type = ? ORDER BY num ASC
	`, typ)
	if err != nil {
		return nil, fmt.Errorf("list objects type %d: %w", typ, err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var num int
		var label string
		if err := rows.Scan(&num, &label); err != nil {
			return nil, fmt.Errorf("list objects type %d: scan: %w", typ, err)
		}
		out[num] = label
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list objects type %d: rows: %w", typ, err)
	}
	return out, nil
}

// FindByField returns the nums of committed objects of the given type
// holding value in the given field, ordered by num.
func (s *Store) FindByField(ctx context.Context, typ, field int, value string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT num FROM field_values
		WHERE type = ? AND field = ? AND value = ?
		ORDER BY num ASC
	`, typ, field, value)
	if err != nil {
		return nil, fmt.Errorf("find type %d field %d: %w", typ, field, err)
	}
	defer rows.Close()

	var nums []int
	for rows.Next() {
		var num int
		if err := rows.Scan(&num); err != nil {
			return nil, fmt.Errorf("find type %d field %d: scan: %w", typ, field, err)
		}
		nums = append(nums, num)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find type %d field %d: rows: %w", typ, field, err)
	}
	return nums, nil
}

// NextNum hands out the next object number for a type. Callers hold the
// engine's allocator lock, so no two sessions race here.
func (s *Store) NextNum(ctx context.Context, typ int) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(num) FROM objects WHERE type = ?
	`, typ).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next num type %d: %w", typ, err)
	}
	return int(max.Int64) + 1, nil
}

// ApplyObject upserts one object and replaces all its field values
// inside the caller's transaction. Delete-then-insert keeps vector
// ordering exact without diffing against the previous rows.
func ApplyObject(ctx context.Context, tx *sql.Tx, rec *ObjectRec) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO objects (type, num, label) VALUES (?, ?, ?)
		ON CONFLICT(type, num) DO UPDATE SET label = excluded.label
	`, rec.Type, rec.Num, rec.Label)
	if err != nil {
		return fmt.Errorf("apply object %d:%d: %w", rec.Type, rec.Num, err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM field_values WHERE type = ? AND num = ?
	`, rec.Type, rec.Num)
	if err != nil {
		return fmt.Errorf("apply object %d:%d: clear fields: %w", rec.Type, rec.Num, err)
	}

	for field, values := range rec.Fields {
		for idx, value := range values {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO field_values (type, num, field, idx, value)
				VALUES (?, ?, ?, ?, ?)
			`, rec.Type, rec.Num, field, idx, value)
			if err != nil {
				return fmt.Errorf("apply object %d:%d: field %d: %w", rec.Type, rec.Num, field, err)
			}
		}
	}

	return nil
}

// DeleteObject removes one object, its field values, and any namespace
// marks it owns, inside the caller's transaction.
func DeleteObject(ctx context.Context, tx *sql.Tx, typ, num int) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM namespace_marks WHERE owner_type = ? AND owner_num = ?
	`, typ, num)
	if err != nil {
		return fmt.Errorf("delete object %d:%d: marks: %w", typ, num, err)
	}

	// field_values rows go with the object via ON DELETE CASCADE.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM objects WHERE type = ? AND num = ?
	`, typ, num)
	if err != nil {
		return fmt.Errorf("delete object %d:%d: %w", typ, num, err)
	}

	return nil
}
