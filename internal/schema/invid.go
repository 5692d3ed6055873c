package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Invid is the immutable unique identifier for an object: a type tag plus
// a numeric id. The zero value is not a valid identity; use IsValid to
// distinguish "no object" from a real reference.
type Invid struct {
	Type ObjectType
	Num  int
}

// NilInvid is the zero Invid, used to signal "no object".
var NilInvid = Invid{}

// IsValid reports whether the Invid refers to an actual object slot.
func (i Invid) IsValid() bool {
	return i.Type != TypeNone && i.Num > 0
}

// String renders the Invid in its canonical "type:num" form, e.g. "3:101".
func (i Invid) String() string {
	return fmt.Sprintf("%d:%d", int(i.Type), i.Num)
}

// ParseInvid parses the canonical "type:num" form produced by String.
func ParseInvid(s string) (Invid, error) {
	t, n, ok := strings.Cut(s, ":")
	if !ok {
		return NilInvid, fmt.Errorf("parse invid %q: missing separator", s)
	}
	typ, err := strconv.Atoi(t)
	if err != nil {
		return NilInvid, fmt.Errorf("parse invid %q: bad type: %w", s, err)
	}
	num, err := strconv.Atoi(n)
	if err != nil {
		return NilInvid, fmt.Errorf("parse invid %q: bad num: %w", s, err)
	}
	inv := Invid{Type: ObjectType(typ), Num: num}
	if !inv.IsValid() {
		return NilInvid, fmt.Errorf("parse invid %q: not a valid identity", s)
	}
	return inv, nil
}
