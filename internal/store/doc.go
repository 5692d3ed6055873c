// Package store provides SQLite-backed durable storage for committed
// directory objects.
//
// The store holds only COMMITTED state. In-flight edits live in the
// engine's transaction overlay and reach the store in a single SQLite
// transaction at commit time, so readers never observe a half-applied
// transaction.
//
// Tables:
//   - objects: one row per live object (type, num, label)
//   - field_values: one row per scalar value or vector element
//   - namespace_marks: committed claims on unique values (uid, username, persona)
//   - type_stamps: per-type modification counters for cache invalidation
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Field values are stored as strings; the engine's codec in
// internal/engine/values.go defines the encoding per field kind.
package store
