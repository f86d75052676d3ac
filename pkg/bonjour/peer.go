package bonjour

import (
	"log/slog"
	"sync"
)

// Mode selects which halves of a Peer run.
type Mode int

const (
	ModeBoth Mode = iota
	ModeBrowseOnly
	ModeRegisterOnly
)

func (m Mode) String() string {
	switch m {
	case ModeBoth:
		return "both"
	case ModeBrowseOnly:
		return "browse"
	case ModeRegisterOnly:
		return "register"
	default:
		return "unknown"
	}
}

// PeerOptions configures a Peer. The zero value advertises and browses
// and hides the peer's own registration from ListPeers.
type PeerOptions struct {
	Mode         Mode
	SelfDiscover bool
}

// Peer advertises itself and discovers other instances of the same
// registration type. It has no notifications; callers poll ListPeers.
type Peer struct {
	options  PeerOptions
	provider Provider
	entity   []Option
	tracer   Tracer
	log      *slog.Logger

	register *Registration
	browse   *Browser
	self     *Resolver

	mu    sync.Mutex
	peers []*Resolver
}

// NewPeer creates a peer and starts resolving its own identity so that
// ResolvedHost becomes available once the registration is visible.
func NewPeer(p Provider, name, regtype, domain string, port uint16, options PeerOptions, opts ...Option) *Peer {
	o := buildOptions(opts)
	peer := &Peer{
		options:  options,
		provider: p,
		entity:   opts,
		tracer:   o.tracer,
		register: NewRegistration(p, name, regtype, domain, port, RegisterHooks{}, opts...),
		browse:   NewBrowser(p, regtype, domain, BrowseHooks{}, opts...),
	}
	peer.log = o.logger.With("peer", peer.register.Identity().String())
	peer.self = NewResolver(p, peer.register.Identity(), ResolveHooks{}, opts...)
	return peer
}

// Start runs the halves selected by the mode. In ModeBoth both must start.
func (p *Peer) Start() bool {
	switch p.options.Mode {
	case ModeBrowseOnly:
		return p.browse.Start()
	case ModeRegisterOnly:
		return p.register.Start()
	default:
		return p.register.Start() && p.browse.Start()
	}
}

// Stop withdraws the registration and stops browsing. Tracked peers keep
// their resolved values.
func (p *Peer) Stop() {
	p.register.Stop()
	p.browse.Stop()
}

// Close stops everything the peer owns, including outstanding resolves.
func (p *Peer) Close() {
	p.Stop()
	p.self.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, peer := range p.peers {
		peer.Stop()
	}
}

// Clear empties the browse snapshot. The next ListPeers drops every peer
// that is not rediscovered.
func (p *Peer) Clear() {
	p.browse.Clear()
}

func (p *Peer) Identity() Identity { return p.register.Identity() }
func (p *Peer) Name() string       { return p.register.Name() }
func (p *Peer) Regtype() string    { return p.register.Regtype() }
func (p *Peer) Domain() string     { return p.register.Domain() }
func (p *Peer) Port() uint16       { return p.register.Port() }
func (p *Peer) Options() PeerOptions {
	return p.options
}

// Active reports whether any half of the peer is running.
func (p *Peer) Active() bool {
	return p.register.Active() || p.browse.Active()
}

// Resolve refreshes every tracked peer.
func (p *Peer) Resolve() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, peer := range p.peers {
		peer.Resolve()
	}
}

// ResolveIdentity refreshes the tracked peer equal to id. It reports
// whether such a peer exists.
func (p *Peer) ResolveIdentity(id Identity) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := IndexOf(p.peers, id)
	if i < 0 {
		return false
	}
	p.peers[i].Resolve()
	return true
}

// ListPeers reconciles the browse snapshot with the tracked peers and
// returns idle copies of the result.
//
// Tracked peers that are no longer discovered are dropped. Peers still
// discovered are kept as they are, resolved values included. Discovered
// instances not tracked yet get a new Resolver, which starts resolving on
// construction; the peer's own registration is skipped unless
// SelfDiscover is set.
func (p *Peer) ListPeers() []*Resolver {
	p.mu.Lock()
	defer p.mu.Unlock()

	discovered := p.browse.ListServices()

	kept := p.peers[:0]
	removed := 0
	for _, peer := range p.peers {
		i := IndexOf(discovered, peer.Identity())
		if i < 0 {
			peer.Stop()
			removed++
			continue
		}
		discovered = append(discovered[:i], discovered[i+1:]...)
		kept = append(kept, peer)
	}
	clear(p.peers[len(kept):])
	p.peers = kept

	self := p.register.Identity()
	added := 0
	for _, id := range discovered {
		if !p.options.SelfDiscover && id.Equal(self) {
			continue
		}
		p.peers = append(p.peers, NewResolver(p.provider, id, ResolveHooks{}, p.entity...))
		added++
	}

	if added > 0 || removed > 0 {
		p.log.Debug("Peers reconciled", "added", added, "removed", removed, "total", len(p.peers))
	}
	p.tracer.PeersReconciled(added, removed, len(p.peers))

	out := make([]*Resolver, len(p.peers))
	for i, peer := range p.peers {
		out[i] = peer.Clone()
	}
	return out
}

// ResolvedHost returns the host the peer's own registration resolved to,
// or an empty string until that resolution has completed.
func (p *Peer) ResolvedHost() string {
	return p.self.Host()
}
