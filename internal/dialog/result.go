package dialog

import "github.com/ganymede-dms/ganymede/internal/schema"

// Responder resumes a multi-step interaction. A nil params map means the
// user canceled the dialog.
type Responder interface {
	Respond(params map[string]any) *Result
}

// FieldRef names one field of one object for a client rescan hint.
type FieldRef struct {
	Object schema.Invid   `json:"object"`
	Field  schema.FieldID `json:"field"`
}

// Result is the tri-state outcome of a mutating operation. A nil *Result
// is shorthand for unconditional success.
type Result struct {
	Success  bool
	Dialog   *Dialog
	Callback Responder
	Rescan   []FieldRef
}

// OK returns a bare success result.
func OK() *Result {
	return &Result{Success: true}
}

// OKRescan returns a success result hinting that the named fields of obj
// should be re-fetched by the client.
func OKRescan(obj schema.Invid, fields ...schema.FieldID) *Result {
	r := &Result{Success: true}
	return r.AddRescan(obj, fields...)
}

// Failure returns a terminal failure carrying a dialog.
func Failure(d *Dialog) *Result {
	return &Result{Success: false, Dialog: d}
}

// Error builds the standard hard-error dialog result.
func Error(title, body string) *Result {
	return Failure(NewDialog(title, body, "OK", "", "error.gif"))
}

// Defer returns a non-success result that carries a dialog plus a callback:
// the caller must stop, present the dialog, and resume through the callback.
func Defer(d *Dialog, cb Responder) *Result {
	return &Result{Success: false, Dialog: d, Callback: cb}
}

// DidSucceed reports success, treating a nil result as success per the
// protocol.
func (r *Result) DidSucceed() bool {
	return r == nil || r.Success
}

// Resumable reports whether a failed result can be continued via Respond.
func (r *Result) Resumable() bool {
	return r != nil && !r.Success && r.Callback != nil
}

// AddRescan appends rescan hints for the named fields of obj.
func (r *Result) AddRescan(obj schema.Invid, fields ...schema.FieldID) *Result {
	for _, f := range fields {
		r.Rescan = append(r.Rescan, FieldRef{Object: obj, Field: f})
	}
	return r
}

// MergeRescan copies rescan hints from another result, if any.
func (r *Result) MergeRescan(other *Result) *Result {
	if other != nil {
		r.Rescan = append(r.Rescan, other.Rescan...)
	}
	return r
}
