package bonjour

// ResolveHooks are optional notifications from a Resolver.
type ResolveHooks struct {
	Stopped  func(s *Resolver, err error)
	Resolved func(s *Resolver, fullname, host string, port uint16, complete bool)
}

// Resolver resolves one service instance to its full name, host and port.
// Resolution is one-shot: the operation stops after the first answer, and
// Resolve may be called again to refresh the values.
type Resolver struct {
	lifecycle
	hooks ResolveHooks

	fullname string
	host     string
	port     uint16
	resolved bool
}

// NewResolver creates a resolver for id and starts resolving straight away
// when id carries a name.
func NewResolver(p Provider, id Identity, hooks ResolveHooks, opts ...Option) *Resolver {
	s := newResolver(p, id, hooks, buildOptions(opts))
	if id.name != "" {
		s.Resolve()
	}
	return s
}

// NewResolverFor is NewResolver for an identity given by its parts.
func NewResolverFor(p Provider, name, regtype, domain string, hooks ResolveHooks, opts ...Option) *Resolver {
	return NewResolver(p, NewIdentity(name, regtype, domain), hooks, opts...)
}

func newResolver(p Provider, id Identity, hooks ResolveHooks, o options) *Resolver {
	s := &Resolver{hooks: hooks}
	s.init(KindResolve, p, id, o)
	s.stopped = func(err error) {
		s.mu.Lock()
		hook := s.hooks.Stopped
		s.mu.Unlock()
		if hook != nil {
			hook(s, err)
		}
	}
	return s
}

// Resolve begins a resolve operation. Calling it while one is running is a
// no-op that reports true.
func (s *Resolver) Resolve() bool {
	id := s.identity()
	return s.start(func(r *runner) (Operation, error) {
		return s.provider.Resolve(id.name, id.regtype, id.domain,
			func(flags Flags, fullname, host string, port uint16, err error) {
				s.resolveReply(r, flags, fullname, host, port, err)
			})
	})
}

func (s *Resolver) Stop()        { s.stop() }
func (s *Resolver) Active() bool { return s.active() }

func (s *Resolver) Identity() Identity { return s.identity() }
func (s *Resolver) Name() string       { return s.identity().name }
func (s *Resolver) Regtype() string    { return s.identity().regtype }
func (s *Resolver) Domain() string     { return s.identity().domain }

func (s *Resolver) Fullname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fullname
}

func (s *Resolver) Host() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

func (s *Resolver) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Resolved reports whether at least one answer has been received.
func (s *Resolver) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// CopyFrom stops s and then copies the identity, resolved values and hooks
// of src into it. A running operation is never copied.
func (s *Resolver) CopyFrom(src *Resolver) {
	if s == src {
		return
	}
	s.Stop()

	src.mu.Lock()
	id, hooks := src.id, src.hooks
	fullname, host, port, resolved := src.fullname, src.host, src.port, src.resolved
	src.mu.Unlock()

	s.mu.Lock()
	s.id, s.hooks = id, hooks
	s.fullname, s.host, s.port, s.resolved = fullname, host, port, resolved
	s.mu.Unlock()
}

// Clone returns an idle copy of s.
func (s *Resolver) Clone() *Resolver {
	c := newResolver(s.provider, Identity{}, ResolveHooks{}, s.opts)
	c.CopyFrom(s)
	return c
}

func (s *Resolver) resolveReply(r *runner, flags Flags, fullname, host string, port uint16, err error) {
	s.dispatch(r, err, func() func() {
		return s.onResolved(flags, fullname, host, port)
	})
}

func (s *Resolver) onResolved(flags Flags, fullname, host string, port uint16) func() {
	s.fullname, s.host, s.port = fullname, host, port
	s.resolved = true
	s.stop()

	hook := s.hooks.Resolved
	complete := flags.Complete()
	return func() {
		if hook != nil {
			hook(s, fullname, host, port, complete)
		}
	}
}
