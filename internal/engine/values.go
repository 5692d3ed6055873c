package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ganymede-dms/ganymede/internal/schema"
)

// Field values cross the store boundary as strings. The in-memory forms
// are: string (String/Password), int (Number), time.Time (Date),
// schema.Invid (Invid), bool (Boolean).

// EncodeValue converts an in-memory field value to its stored form.
func EncodeValue(kind schema.FieldKind, v any) (string, error) {
	switch kind {
	case schema.KindString, schema.KindPassword:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("encode: want string, got %T", v)
		}
		return s, nil
	case schema.KindNumber:
		n, ok := v.(int)
		if !ok {
			return "", fmt.Errorf("encode: want int, got %T", v)
		}
		return strconv.Itoa(n), nil
	case schema.KindDate:
		t, ok := v.(time.Time)
		if !ok {
			return "", fmt.Errorf("encode: want time.Time, got %T", v)
		}
		return t.UTC().Format(time.RFC3339), nil
	case schema.KindInvid:
		inv, ok := v.(schema.Invid)
		if !ok {
			return "", fmt.Errorf("encode: want Invid, got %T", v)
		}
		return inv.String(), nil
	case schema.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("encode: want bool, got %T", v)
		}
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("encode: unknown field kind %d", kind)
}

// markValue encodes a value for namespace marking. String-valued
// namespaces are stored case-folded so that two spellings of the same
// name collide.
func markValue(def schema.FieldDef, v any) (string, error) {
	enc, err := EncodeValue(def.Kind, v)
	if err != nil {
		return "", err
	}
	if def.Kind == schema.KindString {
		enc = schema.FoldLabel(enc)
	}
	return enc, nil
}

// DecodeValue converts a stored field value back to its in-memory form.
func DecodeValue(kind schema.FieldKind, s string) (any, error) {
	switch kind {
	case schema.KindString, schema.KindPassword:
		return s, nil
	case schema.KindNumber:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", s, err)
		}
		return n, nil
	case schema.KindDate:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("decode date %q: %w", s, err)
		}
		return t, nil
	case schema.KindInvid:
		inv, err := schema.ParseInvid(s)
		if err != nil {
			return nil, fmt.Errorf("decode invid %q: %w", s, err)
		}
		return inv, nil
	case schema.KindBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("decode bool %q: %w", s, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("decode: unknown field kind %d", kind)
}
