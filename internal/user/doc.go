// Package user implements the edit-hook for user objects: default-value
// initialization, required-field policy, dynamic choice lists, the
// username rename cascade, wizard interposition for sensitive
// operations (rename, inactivate, reactivate, home-group removal), and
// the commit-phase-2 external side effects.
//
// The hook brokers between the generic edit pipeline in
// internal/engine and the interactive wizards in internal/wizard. All
// expected conditions travel as *dialog.Result values; the hook never
// raises Go errors for user-facing rejections.
package user
