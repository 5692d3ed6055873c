package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
	"github.com/ganymede-dms/ganymede/internal/wizard"
)

// labelCacheSize bounds the per-session label lookup cache.
const labelCacheSize = 512

// Server owns the process-wide collaborators shared by all sessions.
type Server struct {
	Store   *store.Store
	Alloc   *Allocator
	Shells  *ShellCache
	Wizards *wizard.Registry

	// Now supplies timestamps for removal-date computation; tests pin it.
	Now func() time.Time

	// LabelCacheSize overrides the per-session label cache bound when
	// positive.
	LabelCacheSize int

	hooks map[schema.ObjectType]HookFactory
}

// NewServer assembles a server around an open store.
func NewServer(st *store.Store) *Server {
	return &Server{
		Store:   st,
		Alloc:   NewAllocator(st),
		Shells:  NewShellCache(st),
		Wizards: wizard.NewRegistry(),
		Now:     time.Now,
		hooks:   make(map[schema.ObjectType]HookFactory),
	}
}

// RegisterHook installs the edit-hook factory for an object type.
func (srv *Server) RegisterHook(typ schema.ObjectType, f HookFactory) {
	srv.hooks[typ] = f
}

func (srv *Server) hookFor(o *EditObject) EditHook {
	if f, ok := srv.hooks[o.Type()]; ok {
		return f(o)
	}
	return &BaseHook{Obj: o}
}

// Session is one client's identity and its single open transaction.
type Session struct {
	id     string
	server *Server
	es     *EditSet

	// EnableWizards turns wizard interposition off for bulk operations.
	EnableWizards bool
	// EnableOversight turns default-value computation and creation
	// checkpointing off for bulk loads.
	EnableOversight bool
	// Supergash marks the super-privileged identity.
	Supergash bool

	labels *lru.Cache[string, string]
}

// NewSession opens a session with wizards and oversight enabled.
func (srv *Server) NewSession(id string) *Session {
	size := labelCacheSize
	if srv.LabelCacheSize > 0 {
		size = srv.LabelCacheSize
	}
	labels, err := lru.New[string, string](size)
	if err != nil {
		panic(fmt.Sprintf("label cache: %v", err))
	}
	s := &Session{
		id:              id,
		server:          srv,
		EnableWizards:   true,
		EnableOversight: true,
		labels:          labels,
	}
	s.es = newEditSet(s)
	return s
}

// ID returns the session identity.
func (s *Session) ID() string { return s.id }

// Server returns the owning server.
func (s *Session) Server() *Server { return s.server }

// EditSet returns the session's open transaction.
func (s *Session) EditSet() *EditSet { return s.es }

// Wizards returns the process-wide wizard registry.
func (s *Session) Wizards() *wizard.Registry { return s.server.Wizards }

// ActiveWizard returns this session's active wizard, nil when none.
func (s *Session) ActiveWizard() *wizard.Wizard {
	return s.server.Wizards.Active(s.id)
}

// Now returns the server clock reading.
func (s *Session) Now() time.Time { return s.server.Now() }

// EditObject checks out an object for editing within the session's
// transaction, returning the existing working copy if already checked
// out.
func (s *Session) EditObject(ctx context.Context, invid schema.Invid) (*EditObject, *dialog.Result) {
	if o := s.es.Object(invid); o != nil {
		return o, nil
	}

	rec, err := s.server.Store.LoadObject(ctx, int(invid.Type), invid.Num)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dialog.Error("Object Not Found",
				fmt.Sprintf("no committed object %s", invid))
		}
		return nil, dialog.Error("Store Error", err.Error())
	}

	o := &EditObject{
		session:  s,
		invid:    invid,
		status:   schema.StatusEditing,
		original: rec,
		fields:   make(map[schema.FieldID][]any),
	}
	for _, def := range schema.Fields(invid.Type) {
		for _, raw := range rec.Fields[int(def.ID)] {
			v, derr := DecodeValue(def.Kind, raw)
			if derr != nil {
				return nil, dialog.Error("Store Error",
					fmt.Sprintf("corrupt value in %s field %s: %v", invid, def.Name, derr))
			}
			o.fields[def.ID] = append(o.fields[def.ID], v)
		}
	}
	o.hook = s.server.hookFor(o)
	s.es.add(o)
	return o, nil
}

// CreateObject creates a new object of the given type inside the
// transaction and runs its hook's default initialization. With oversight
// enabled the creation runs under a checkpoint so a failed
// initialization leaves no trace.
func (s *Session) CreateObject(ctx context.Context, typ schema.ObjectType) (*EditObject, *dialog.Result) {
	if !s.EnableOversight {
		return s.createObject(ctx, typ)
	}

	name := fmt.Sprintf("create %s", typ)
	s.es.Checkpoint(name)
	o, res := s.createObject(ctx, typ)
	if !res.DidSucceed() {
		s.es.Rollback(name)
		return nil, res
	}
	s.es.PopCheckpoint(name)
	return o, res
}

func (s *Session) createObject(ctx context.Context, typ schema.ObjectType) (*EditObject, *dialog.Result) {
	num, err := s.server.Alloc.AllocNum(ctx, typ)
	if err != nil {
		return nil, dialog.Error("Store Error", err.Error())
	}

	o := &EditObject{
		session: s,
		invid:   schema.Invid{Type: typ, Num: num},
		status:  schema.StatusCreating,
		fields:  make(map[schema.FieldID][]any),
	}
	o.hook = s.server.hookFor(o)
	s.es.add(o)

	if res := o.hook.InitializeNewObject(ctx); !res.DidSucceed() {
		s.es.remove(o.invid)
		return nil, res
	}
	return o, nil
}

// DeleteObject marks an object for teardown at commit. An object created
// inside this same transaction is dropped instead: it never existed
// externally.
func (s *Session) DeleteObject(ctx context.Context, invid schema.Invid) *dialog.Result {
	o, res := s.EditObject(ctx, invid)
	if !res.DidSucceed() {
		return res
	}
	if o.status == schema.StatusCreating {
		o.status = schema.StatusDropping
	} else {
		o.status = schema.StatusDeleting
	}
	o.deleting = true

	// Embedded children die with their parent.
	for _, def := range schema.Fields(o.Type()) {
		if !def.Embedded {
			continue
		}
		for _, v := range o.GetValues(def.ID) {
			if child, ok := v.(schema.Invid); ok {
				if res := s.DeleteObject(ctx, child); !res.DidSucceed() {
					return res
				}
			}
		}
	}
	return nil
}

// InactivateObject starts (or completes, when wizards are disabled) the
// inactivation sequence for an object.
func (s *Session) InactivateObject(ctx context.Context, invid schema.Invid, forward string) *dialog.Result {
	o, res := s.EditObject(ctx, invid)
	if !res.DidSucceed() {
		return res
	}
	if !o.hook.CanBeInactivated() || !o.hook.CanInactivate(ctx) {
		return dialog.Failure(dialog.NewDialog(
			"Inactivate Error",
			fmt.Sprintf("object %s cannot be inactivated", o.Label()),
			"OK", "", "error.gif"))
	}
	return o.hook.Inactivate(ctx, forward, false)
}

// ReactivateObject starts the wizard-driven reactivation of an object.
func (s *Session) ReactivateObject(ctx context.Context, invid schema.Invid) *dialog.Result {
	o, res := s.EditObject(ctx, invid)
	if !res.DidSucceed() {
		return res
	}
	return o.hook.Reactivate(ctx)
}

// ViewObjectLabel resolves an invid to its human-readable label, looking
// through this transaction's pending state first, then a bounded
// per-session cache over committed state.
func (s *Session) ViewObjectLabel(ctx context.Context, invid schema.Invid) string {
	if o := s.es.Object(invid); o != nil {
		return o.Label()
	}

	key := invid.String()
	if label, ok := s.labels.Get(key); ok {
		return label
	}

	rec, err := s.server.Store.LoadObject(ctx, int(invid.Type), invid.Num)
	if err != nil {
		slog.Debug("label lookup failed", "invid", key, "err", err)
		return ""
	}
	s.labels.Add(key, rec.Label)
	return rec.Label
}

// Query selects committed objects by type, optionally filtered on one
// field value.
type Query struct {
	Type   schema.ObjectType
	Field  schema.FieldID // zero: every object of the type
	Equals any
}

// InternalQuery runs a privileged, unfiltered query against committed
// state.
func (s *Session) InternalQuery(ctx context.Context, q Query) ([]schema.Invid, error) {
	if q.Field == 0 {
		nums, err := s.server.Store.ListObjects(ctx, int(q.Type))
		if err != nil {
			return nil, err
		}
		out := make([]schema.Invid, 0, len(nums))
		for num := range nums {
			out = append(out, schema.Invid{Type: q.Type, Num: num})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
		return out, nil
	}

	def, ok := schema.Lookup(q.Type, q.Field)
	if !ok {
		return nil, fmt.Errorf("internal query: type %s has no field %d", q.Type, q.Field)
	}
	enc, err := EncodeValue(def.Kind, q.Equals)
	if err != nil {
		return nil, fmt.Errorf("internal query: %w", err)
	}
	nums, err := s.server.Store.FindByField(ctx, int(q.Type), int(q.Field), enc)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Invid, 0, len(nums))
	for _, num := range nums {
		out = append(out, schema.Invid{Type: q.Type, Num: num})
	}
	return out, nil
}

// Commit commits the session's transaction.
func (s *Session) Commit(ctx context.Context) *dialog.Result {
	return s.es.Commit(ctx)
}

// Abort abandons the session's transaction, releasing all reservations.
func (s *Session) Abort() {
	if w := s.ActiveWizard(); w != nil {
		w.Unregister()
	}
	s.es.Abort()
}
