package schema

// User object fields.
const (
	UserUsername    FieldID = 100
	UserUID         FieldID = 101
	UserGUID        FieldID = 102
	UserPassword    FieldID = 103
	UserLoginShell  FieldID = 104
	UserHomeDir     FieldID = 105
	UserHomeGroup   FieldID = 106
	UserGroupList   FieldID = 107
	UserVolumes     FieldID = 108
	UserAliases     FieldID = 109
	UserSignature   FieldID = 110
	UserEmailTarget FieldID = 111
	UserPersonae    FieldID = 112
	UserExpiration  FieldID = 113
	UserRemoval     FieldID = 114
	UserCategory    FieldID = 115
)

// Map entry (embedded volume mapping) fields.
const (
	MapEntryMap    FieldID = 200
	MapEntryVolume FieldID = 201
)

// Volume fields.
const (
	VolumeLabel FieldID = 300
	VolumeHost  FieldID = 301
	VolumePath  FieldID = 302
)

// Persona fields.
const (
	PersonaName FieldID = 400
)

// Group fields.
const (
	GroupName FieldID = 500
	GroupGID  FieldID = 501
)

// Shell choice fields.
const (
	ShellName FieldID = 600
)

// Automounter map fields.
const (
	AutomounterMapName FieldID = 700
)

// System fields.
const (
	SystemName FieldID = 800
)

// User category fields.
const (
	UserCategoryName FieldID = 900
)

// Uniqueness namespaces shared across the database.
const (
	NamespaceUID      = "uid"
	NamespaceUsername = "username"
	NamespacePersona  = "persona"
)

// FieldDef describes one field of an object type.
type FieldDef struct {
	ID     FieldID
	Name   string
	Kind   FieldKind
	Vector bool

	// Namespace, when non-empty, names the uniqueness domain this
	// field's committed values live in.
	Namespace string

	// TargetType restricts the object type an Invid field may point at.
	// TypeNone means unrestricted (treated as a schema bug by
	// embedded-object creation, see the edit-hook contract).
	TargetType ObjectType

	// Embedded marks an Invid vector field whose targets are embedded
	// child objects owned by this object.
	Embedded bool
}

var fieldDefs = map[ObjectType][]FieldDef{
	TypeUser: {
		{ID: UserUsername, Name: "Username", Kind: KindString, Namespace: NamespaceUsername},
		{ID: UserUID, Name: "UID", Kind: KindNumber, Namespace: NamespaceUID},
		{ID: UserGUID, Name: "GUID", Kind: KindString},
		{ID: UserPassword, Name: "Password", Kind: KindPassword},
		{ID: UserLoginShell, Name: "Login Shell", Kind: KindString},
		{ID: UserHomeDir, Name: "Home Directory", Kind: KindString},
		{ID: UserHomeGroup, Name: "Home Group", Kind: KindInvid, TargetType: TypeGroup},
		{ID: UserGroupList, Name: "Groups", Kind: KindInvid, Vector: true, TargetType: TypeGroup},
		{ID: UserVolumes, Name: "Volumes", Kind: KindInvid, Vector: true, TargetType: TypeMapEntry, Embedded: true},
		{ID: UserAliases, Name: "Email Aliases", Kind: KindString, Vector: true},
		{ID: UserSignature, Name: "Signature Alias", Kind: KindString},
		{ID: UserEmailTarget, Name: "Email Target", Kind: KindString, Vector: true},
		{ID: UserPersonae, Name: "Personae", Kind: KindInvid, Vector: true, TargetType: TypePersona},
		{ID: UserExpiration, Name: "Expiration Date", Kind: KindDate},
		{ID: UserRemoval, Name: "Removal Date", Kind: KindDate},
		{ID: UserCategory, Name: "Category", Kind: KindInvid, TargetType: TypeUserCategory},
	},
	TypeMapEntry: {
		{ID: MapEntryMap, Name: "Map", Kind: KindInvid, TargetType: TypeAutomounterMap},
		{ID: MapEntryVolume, Name: "Volume", Kind: KindInvid, TargetType: TypeVolume},
	},
	TypeVolume: {
		{ID: VolumeLabel, Name: "Label", Kind: KindString},
		{ID: VolumeHost, Name: "Host", Kind: KindInvid, TargetType: TypeSystem},
		{ID: VolumePath, Name: "Path", Kind: KindString},
	},
	TypePersona: {
		{ID: PersonaName, Name: "Name", Kind: KindString, Namespace: NamespacePersona},
	},
	TypeGroup: {
		{ID: GroupName, Name: "Name", Kind: KindString},
		{ID: GroupGID, Name: "GID", Kind: KindNumber},
	},
	TypeShell: {
		{ID: ShellName, Name: "Name", Kind: KindString},
	},
	TypeAutomounterMap: {
		{ID: AutomounterMapName, Name: "Name", Kind: KindString},
	},
	TypeSystem: {
		{ID: SystemName, Name: "Name", Kind: KindString},
	},
	TypeUserCategory: {
		{ID: UserCategoryName, Name: "Name", Kind: KindString},
	},
}

var labelFields = map[ObjectType]FieldID{
	TypeUser:           UserUsername,
	TypeGroup:          GroupName,
	TypeShell:          ShellName,
	TypeVolume:         VolumeLabel,
	TypeMapEntry:       MapEntryVolume,
	TypeAutomounterMap: AutomounterMapName,
	TypePersona:        PersonaName,
	TypeSystem:         SystemName,
	TypeUserCategory:   UserCategoryName,
}

// Fields returns the field definitions for an object type in declaration
// order. The returned slice must not be mutated.
func Fields(t ObjectType) []FieldDef {
	return fieldDefs[t]
}

// Lookup returns the definition of the given field, if the type declares it.
func Lookup(t ObjectType, id FieldID) (FieldDef, bool) {
	for _, def := range fieldDefs[t] {
		if def.ID == id {
			return def, true
		}
	}
	return FieldDef{}, false
}

// LabelField returns the field whose value labels objects of the given type.
func LabelField(t ObjectType) FieldID {
	return labelFields[t]
}

// RemovalField returns the scheduled-removal date field for types that
// support inactivation. ok is false for types that do not.
func RemovalField(t ObjectType) (FieldID, bool) {
	if t == TypeUser {
		return UserRemoval, true
	}
	return 0, false
}

// ExpirationField returns the expiration date field for types that have
// one.
func ExpirationField(t ObjectType) (FieldID, bool) {
	if t == TypeUser {
		return UserExpiration, true
	}
	return 0, false
}
