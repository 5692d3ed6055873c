package wizard

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Registry tracks the active wizard per session. At most one wizard may
// be registered for a session at a time; a second registration fails
// until the first unregisters.
type Registry struct {
	active *xsync.MapOf[string, *Wizard]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: xsync.NewMapOf[string, *Wizard]()}
}

// Active returns the wizard currently registered for the session, or nil.
func (r *Registry) Active(sessionID string) *Wizard {
	w, _ := r.active.Load(sessionID)
	return w
}

func (r *Registry) register(w *Wizard) bool {
	_, loaded := r.active.LoadOrStore(w.sessionID, w)
	return !loaded
}

// unregister removes w if and only if it is the registered wizard for its
// session. Reports whether a removal happened.
func (r *Registry) unregister(w *Wizard) bool {
	cur, ok := r.active.Load(w.sessionID)
	if !ok || cur != w {
		return false
	}
	r.active.Delete(w.sessionID)
	return true
}
