package bonjour

// RegisterHooks are optional notifications from a Registration.
type RegisterHooks struct {
	Stopped func(reg *Registration, err error)
	Added   func(reg *Registration, id Identity, complete bool)
	Removed func(reg *Registration, id Identity, complete bool)
}

// Registration advertises a single service instance.
type Registration struct {
	lifecycle
	hooks RegisterHooks
	port  uint16

	// registered is the name the provider confirmed, which may differ from
	// the requested one after conflict resolution.
	registered string
}

// NewRegistration creates a registration for (name, regtype, domain) on port.
// Nothing is advertised until Start is called.
func NewRegistration(p Provider, name, regtype, domain string, port uint16, hooks RegisterHooks, opts ...Option) *Registration {
	reg := &Registration{hooks: hooks, port: port}
	reg.init(KindRegister, p, NewIdentity(name, regtype, domain), buildOptions(opts))
	reg.stopped = func(err error) {
		if reg.hooks.Stopped != nil {
			reg.hooks.Stopped(reg, err)
		}
	}
	return reg
}

// Start advertises the instance with no host override and no TXT data.
func (reg *Registration) Start() bool {
	return reg.start(func(r *runner) (Operation, error) {
		return reg.provider.Register(reg.id.name, reg.id.regtype, reg.id.domain, reg.port,
			func(flags Flags, name, regtype, domain string, err error) {
				reg.registerReply(r, flags, name, regtype, domain, err)
			})
	})
}

func (reg *Registration) Stop()        { reg.stop() }
func (reg *Registration) Active() bool { return reg.active() }

func (reg *Registration) Identity() Identity { return reg.id }
func (reg *Registration) Name() string       { return reg.id.name }
func (reg *Registration) Regtype() string    { return reg.id.regtype }
func (reg *Registration) Domain() string     { return reg.id.domain }
func (reg *Registration) Port() uint16       { return reg.port }

// RegisteredName returns the instance name last confirmed by the provider,
// or an empty string if no registration has been confirmed.
func (reg *Registration) RegisteredName() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.registered
}

func (reg *Registration) registerReply(r *runner, flags Flags, name, regtype, domain string, err error) {
	reg.dispatch(r, err, func() func() {
		return reg.onUpdate(flags, NewIdentity(name, regtype, domain))
	})
}

func (reg *Registration) onUpdate(flags Flags, id Identity) func() {
	complete := flags.Complete()

	if flags.Added() {
		reg.registered = id.name
		return func() {
			if reg.hooks.Added != nil {
				reg.hooks.Added(reg, id, complete)
			}
		}
	}

	if reg.registered == id.name {
		reg.registered = ""
	}
	return func() {
		if reg.hooks.Removed != nil {
			reg.hooks.Removed(reg, id, complete)
		}
	}
}
