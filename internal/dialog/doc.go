// Package dialog implements the result protocol spoken between the edit
// pipeline and its callers.
//
// Every mutating operation returns a tri-state *Result:
//
//   - nil, or a Result with Success set and no Dialog: unconditional
//     success;
//   - Success with Rescan hints: the mutation went through and the caller
//     should re-fetch the named fields;
//   - failure with a Dialog: the operation did not (yet) happen. If the
//     Result carries a Callback, the dialog is resumable: the caller
//     collects the prompted values and feeds them to Callback.Respond to
//     continue a multi-step interaction. Without a Callback the failure is
//     final.
//
// Expected conditions always travel as Results, never as Go errors; Go
// errors are reserved for infrastructure faults underneath the store.
package dialog
