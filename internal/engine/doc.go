// Package engine implements the transactional object-edit pipeline:
// per-session edit sets with named checkpoints, the per-type edit-hook
// contract, namespace reservation, and two-phase commit against the
// SQLite store.
//
// # Critical Patterns
//
// CP-1: Overlay Isolation
//   - Pending values live only in the owning session's EditSet
//   - Other sessions read committed state until commit
//
// CP-2: Expected Conditions Are Results, Not Errors
//   - Validation rejections and wizard deferrals travel as *dialog.Result
//   - Go errors are reserved for store and infrastructure faults
//   - Schema configuration bugs panic: they are deployment errors
//
// CP-3: Ordered Mutation Sequences
//   - Multi-step operations (inactivation, rename cascade) run their
//     steps in documented order and stop at the first failure
//
// CP-4: Commit Atomicity
//   - Phase 1 validates; the write lands in ONE SQLite transaction
//   - Phase 2 side effects are fire-and-forget: failures are logged
//     and never unwind the committed transaction
package engine
