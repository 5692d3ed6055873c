// Package wizard implements the multi-round-trip interaction engine used
// to guard sensitive mutations (rename, inactivate, reactivate, home-group
// removal).
//
// A Wizard is a tagged-state record plus a table of step functions, not a
// polled stateful object: each client round trip calls Respond once, which
// dispatches to the step registered for the current state and then either
// advances the state, jumps to an explicitly set next state, or terminates.
// A nil parameter map is the cancel signal.
//
// The Registry enforces the cross-cutting discipline: at most one active
// wizard per session. A second registration fails, and edit-hooks treat an
// unexpected active wizard as a protocol error.
//
// State DONE (99) is the terminal sentinel an edit-hook checks for when an
// operation re-enters it from a wizard's completion step.
package wizard
