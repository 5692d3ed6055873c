// Package schema defines the static object schema for the Ganymede
// directory server: object types, field definitions, field kinds, and
// the Invid identity type.
//
// The schema is a closed, compiled-in table. Adding a new object type or
// field is a data addition to the tables in fields.go; runtime code looks
// definitions up by (ObjectType, FieldID) and never hard-codes structural
// knowledge about a type outside its edit-hook.
//
// INVARIANTS:
//   - Field IDs are unique within an object type and never reused.
//   - Every object type has exactly one label field (LabelField).
//   - A vector field is never a namespace field.
package schema
