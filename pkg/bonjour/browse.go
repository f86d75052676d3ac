package bonjour

import "slices"

// BrowseHooks are optional notifications from a Browser. They run on the
// runner goroutine after the browser's lock has been released.
type BrowseHooks struct {
	Stopped func(b *Browser, err error)
	Added   func(b *Browser, id Identity, complete bool)
	Removed func(b *Browser, id Identity, complete bool)
}

// Browser tracks the instances of one registration type in one domain.
type Browser struct {
	lifecycle
	hooks    BrowseHooks
	services []Identity
}

// NewBrowser creates a browser. It does not start browsing until Start is called.
func NewBrowser(p Provider, regtype, domain string, hooks BrowseHooks, opts ...Option) *Browser {
	b := &Browser{hooks: hooks}
	b.init(KindBrowse, p, NewIdentity("", regtype, domain), buildOptions(opts))
	b.stopped = func(err error) {
		if b.hooks.Stopped != nil {
			b.hooks.Stopped(b, err)
		}
	}
	return b
}

// Start empties the snapshot and begins browsing. It returns whether a
// browse operation is running afterwards.
func (b *Browser) Start() bool {
	b.Clear()
	return b.start(func(r *runner) (Operation, error) {
		return b.provider.Browse(b.id.regtype, b.id.domain, func(flags Flags, name, regtype, domain string, err error) {
			b.browseReply(r, flags, name, regtype, domain, err)
		})
	})
}

func (b *Browser) Stop()        { b.stop() }
func (b *Browser) Active() bool { return b.active() }

func (b *Browser) Regtype() string { return b.id.regtype }
func (b *Browser) Domain() string  { return b.id.domain }

// Clear empties the snapshot without stopping the browse.
func (b *Browser) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services = nil
}

// ListServices returns a copy of the instances currently known.
func (b *Browser) ListServices() []Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.services)
}

func (b *Browser) browseReply(r *runner, flags Flags, name, regtype, domain string, err error) {
	b.dispatch(r, err, func() func() {
		return b.onUpdate(flags, NewIdentity(name, regtype, domain))
	})
}

// onUpdate runs with b.mu held.
func (b *Browser) onUpdate(flags Flags, id Identity) func() {
	i := IndexOf(b.services, id)
	complete := flags.Complete()

	if flags.Added() {
		if i < 0 {
			b.services = append(b.services, id)
		}
		return func() {
			if b.hooks.Added != nil {
				b.hooks.Added(b, id, complete)
			}
		}
	}

	if i >= 0 {
		b.services = slices.Delete(b.services, i, i+1)
	}
	return func() {
		if b.hooks.Removed != nil {
			b.hooks.Removed(b, id, complete)
		}
	}
}
