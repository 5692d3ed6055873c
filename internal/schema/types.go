package schema

// ObjectType tags a category of object in the directory database.
type ObjectType int

const (
	TypeNone ObjectType = iota
	TypeUser
	TypeGroup
	TypeShell
	TypeVolume
	TypeMapEntry
	TypeAutomounterMap
	TypePersona
	TypeSystem
	TypeUserCategory
)

// String returns the human-readable type name used in logs and queries.
func (t ObjectType) String() string {
	switch t {
	case TypeUser:
		return "User"
	case TypeGroup:
		return "Group"
	case TypeShell:
		return "Shell Choice"
	case TypeVolume:
		return "Volume"
	case TypeMapEntry:
		return "Map Entry"
	case TypeAutomounterMap:
		return "Automounter Map"
	case TypePersona:
		return "Admin Persona"
	case TypeSystem:
		return "System"
	case TypeUserCategory:
		return "User Category"
	default:
		return "Unknown"
	}
}

// FieldID identifies a field within an object type's schema.
type FieldID int

// FieldKind is the value type of a field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindDate
	KindPassword
	KindInvid
	KindBoolean
)

// Status is the lifecycle state of a checked-out object within a
// transaction. The edit-hook only reacts to the terminal value at
// commit-phase-2 time; transitions are driven by the session.
type Status int

const (
	// StatusCreating marks an object created within the open transaction.
	StatusCreating Status = iota
	// StatusEditing marks a pre-existing object checked out for editing.
	StatusEditing
	// StatusDeleting marks a pre-existing object slated for removal.
	StatusDeleting
	// StatusDropping marks an object created and then discarded before
	// commit; it never existed outside the transaction.
	StatusDropping
)

// String returns the lifecycle state name.
func (s Status) String() string {
	switch s {
	case StatusCreating:
		return "creating"
	case StatusEditing:
		return "editing"
	case StatusDeleting:
		return "deleting"
	case StatusDropping:
		return "dropping"
	default:
		return "unknown"
	}
}
