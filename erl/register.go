package erl

import (
	"sort"
	"sync"
)

type RegistrationErrorKind string

type RegistrationError struct {
	Kind RegistrationErrorKind
	Name Name
}

func (e *RegistrationError) Error() string {
	if e.Name == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + string(e.Name)
}

// Is makes errors.Is match on [Kind] only.
func (e *RegistrationError) Is(target error) bool {
	t, ok := target.(*RegistrationError)
	return ok && t.Kind == e.Kind
}

const (
	// process is already registered with a name. Caller should consider calling [Unregister] and retry
	AlreadyRegistered RegistrationErrorKind = "already_registered"
	// another process already registered given name
	NameInUse RegistrationErrorKind = "name_in_use"
	// the process you're trying to register doesn't exist/is dead
	NoProc RegistrationErrorKind = "noproc"
	// name is invalid and cannot be registered.
	BadArg RegistrationErrorKind = "badarg"
	// the name is not registered
	NotRegistered RegistrationErrorKind = "not_registered"
)

type registryOpts struct {
	multipleNames bool
}

type RegistryOpt func(o registryOpts) registryOpts

// AllowMultipleNames lets a process hold more than one name in the registry.
func AllowMultipleNames() RegistryOpt {
	return func(o registryOpts) registryOpts {
		o.multipleNames = true
		return o
	}
}

// A Registry maps names to live processes. Entries are removed when their
// process exits, before any of its links or monitors are notified, so a
// process that others have seen die is never found through the registry.
type Registry struct {
	mx    sync.RWMutex
	opts  registryOpts
	names map[Name]PID
	byPID map[PID][]Name
}

func NewRegistry(opts ...RegistryOpt) *Registry {
	o := registryOpts{}
	for _, opt := range opts {
		o = opt(o)
	}
	return &Registry{
		opts:  o,
		names: make(map[Name]PID),
		byPID: make(map[PID][]Name),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry is the registry used by [Register], [WhereIs] and [Name].
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// SetDefaultRegistryPolicy replaces the policy of the default registry.
// Existing registrations are kept.
func SetDefaultRegistryPolicy(opts ...RegistryOpt) {
	o := registryOpts{}
	for _, opt := range opts {
		o = opt(o)
	}
	defaultRegistry.mx.Lock()
	defer defaultRegistry.mx.Unlock()
	defaultRegistry.opts = o
}

func reservedName(name Name) bool {
	return name == "" || name == "nil" || name == "undefined"
}

// Register associates [name] with the local process [pid].
func (r *Registry) Register(name Name, pid PID) error {
	if reservedName(name) || pid.IsNil() || pid.IsRemote() {
		return &RegistrationError{Kind: BadArg, Name: name}
	}

	r.mx.Lock()
	defer r.mx.Unlock()

	if holder, ok := r.names[name]; ok {
		switch {
		case holder.Equals(pid):
			return &RegistrationError{Kind: AlreadyRegistered, Name: name}
		case IsAlive(holder):
			return &RegistrationError{Kind: NameInUse, Name: name}
		}
		// holder is exiting and its exit hook hasn't run yet
		r.dropLocked(holder)
	}

	held := r.byPID[pid]
	if len(held) > 0 && !r.opts.multipleNames {
		return &RegistrationError{Kind: AlreadyRegistered, Name: name}
	}

	if !IsAlive(pid) {
		return &RegistrationError{Kind: NoProc, Name: name}
	}
	if len(held) == 0 {
		if !pid.p.addExitHook(r, func() { r.processExited(pid) }) {
			return &RegistrationError{Kind: NoProc, Name: name}
		}
	}

	r.names[name] = pid
	r.byPID[pid] = append(held, name)
	return nil
}

func (r *Registry) processExited(pid PID) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.dropLocked(pid)
}

// removes the names still held by [pid]; a name already taken over is left alone
func (r *Registry) dropLocked(pid PID) {
	for _, name := range r.byPID[pid] {
		if holder, ok := r.names[name]; ok && holder.Equals(pid) {
			DebugPrintf("%v unregistering name: %s", pid, name)
			delete(r.names, name)
		}
	}
	delete(r.byPID, pid)
}

// Unregister removes [name]. Returns a [NotRegistered] error if it was not registered.
func (r *Registry) Unregister(name Name) error {
	r.mx.Lock()
	defer r.mx.Unlock()

	pid, ok := r.names[name]
	if !ok {
		return &RegistrationError{Kind: NotRegistered, Name: name}
	}
	delete(r.names, name)

	remaining := make([]Name, 0, len(r.byPID[pid]))
	for _, n := range r.byPID[pid] {
		if n != name {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == 0 {
		delete(r.byPID, pid)
		pid.p.removeExitHook(r)
	} else {
		r.byPID[pid] = remaining
	}
	return nil
}

// WhereIs returns the process registered as [name]. A process that has begun
// exiting is never returned.
func (r *Registry) WhereIs(name Name) (PID, bool) {
	r.mx.RLock()
	defer r.mx.RUnlock()

	pid, ok := r.names[name]
	if !ok || !IsAlive(pid) {
		return UndefinedPID, false
	}
	return pid, true
}

type Registration struct {
	Name Name
	PID  PID
}

// Registered lists every registration, sorted by name.
func (r *Registry) Registered() []Registration {
	r.mx.RLock()
	defer r.mx.RUnlock()

	registrations := make([]Registration, 0, len(r.names))
	for name, pid := range r.names {
		if IsAlive(pid) {
			registrations = append(registrations, Registration{Name: name, PID: pid})
		}
	}
	sort.Slice(registrations, func(i, j int) bool {
		return registrations[i].Name < registrations[j].Name
	})
	return registrations
}

func (r *Registry) namesOf(pid PID) []Name {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return append([]Name(nil), r.byPID[pid]...)
}

// Register [pid] as [name] in the default registry. See [Registry.Register].
func Register(name Name, pid PID) error {
	return defaultRegistry.Register(name, pid)
}

// WhereIs looks up [name] in the default registry.
func WhereIs(name Name) (pid PID, exists bool) {
	return defaultRegistry.WhereIs(name)
}

// Unregister [name] from the default registry.
func Unregister(name Name) error {
	return defaultRegistry.Unregister(name)
}

// Registered lists the default registry.
func Registered() []Registration {
	return defaultRegistry.Registered()
}
