// Package memory is an in-process DNS-SD provider.
//
// A Network stands in for the local link: registrations made through any
// of its Providers, and instances published directly with Publish, are
// visible to every browse and resolve on the same Network. Fault injection
// hooks make it the test double for pkg/bonjour.
package memory

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/naming"
	"github.com/rescp17/lanpeer/pkg/provider/pending"
)

type record struct {
	id   bonjour.Identity
	host string
	port uint16
}

type browseSub struct {
	regtype string
	domain  string
	op      *pending.Op
	reply   bonjour.BrowseReply
}

type resolveSub struct {
	id    bonjour.Identity
	op    *pending.Op
	reply bonjour.ResolveReply
}

// Network is a shared, in-memory service registry.
type Network struct {
	mu        sync.Mutex
	records   []record
	browses   map[*browseSub]struct{}
	resolves  map[*resolveSub]struct{}
	ops       map[*pending.Op]bonjour.Kind
	started   map[bonjour.Kind]int
	failStart map[bonjour.Kind]error
	failReply map[bonjour.Kind]error
}

func NewNetwork() *Network {
	return &Network{
		browses:   make(map[*browseSub]struct{}),
		resolves:  make(map[*resolveSub]struct{}),
		ops:       make(map[*pending.Op]bonjour.Kind),
		started:   make(map[bonjour.Kind]int),
		failStart: make(map[bonjour.Kind]error),
		failReply: make(map[bonjour.Kind]error),
	}
}

// Provider returns a provider whose registrations resolve to host.
func (n *Network) Provider(host string) *Provider {
	return &Provider{net: n, host: naming.HostName(host, naming.DefaultDomain)}
}

// Publish makes an instance visible as if another host had registered it.
// Publishing an existing identity updates its host and port.
func (n *Network) Publish(name, regtype, domain, host string, port uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.publishLocked(record{
		id:   bonjour.NewIdentity(name, regtype, domain),
		host: naming.HostName(host, domain),
		port: port,
	})
}

// Withdraw removes a published instance. It reports whether it existed.
func (n *Network) Withdraw(name, regtype, domain string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.withdrawLocked(bonjour.NewIdentity(name, regtype, domain))
}

// Instances lists every visible instance.
func (n *Network) Instances() []bonjour.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]bonjour.Identity, len(n.records))
	for i, rec := range n.records {
		ids[i] = rec.id
	}
	return ids
}

// FailStarts makes every later operation of kind fail to begin with err.
// A nil err clears the fault.
func (n *Network) FailStarts(kind bonjour.Kind, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setFault(n.failStart, kind, err)
}

// FailReplies makes every later reply of kind carry err. A nil err clears the fault.
func (n *Network) FailReplies(kind bonjour.Kind, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.setFault(n.failReply, kind, err)
}

// Break fails every live operation of kind with err, as an I/O failure
// of the provider connection would.
func (n *Network) Break(kind bonjour.Kind, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for op, k := range n.ops {
		if k == kind {
			op.Fail(err)
		}
	}
}

// Started counts the operations of kind begun so far.
func (n *Network) Started(kind bonjour.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started[kind]
}

// Live counts the operations of kind that have not been released.
func (n *Network) Live(kind bonjour.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, k := range n.ops {
		if k == kind {
			count++
		}
	}
	return count
}

func (n *Network) setFault(faults map[bonjour.Kind]error, kind bonjour.Kind, err error) {
	if err == nil {
		delete(faults, kind)
		return
	}
	faults[kind] = err
}

// begin accounts for a new operation. It must be called with n.mu held.
func (n *Network) begin(kind bonjour.Kind) (*pending.Op, error) {
	if err := n.failStart[kind]; err != nil {
		return nil, fmt.Errorf("memory %s: %w", kind, err)
	}
	op := pending.NewOp()
	n.ops[op] = kind
	n.started[kind]++
	op.OnRelease(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.ops, op)
	})
	return op, nil
}

func (n *Network) indexLocked(id bonjour.Identity) int {
	return slices.IndexFunc(n.records, func(rec record) bool { return rec.id.Equal(id) })
}

func (n *Network) publishLocked(rec record) {
	if i := n.indexLocked(rec.id); i >= 0 {
		n.records[i] = rec
	} else {
		n.records = append(n.records, rec)
		for sub := range n.browses {
			if sub.regtype == rec.id.Regtype() && sub.domain == rec.id.Domain() {
				n.postBrowse(sub, bonjour.FlagAdd, rec.id)
			}
		}
	}
	for sub := range n.resolves {
		if sub.id.Equal(rec.id) {
			n.postResolve(sub, rec)
		}
	}
}

func (n *Network) withdrawLocked(id bonjour.Identity) bool {
	i := n.indexLocked(id)
	if i < 0 {
		return false
	}
	n.records = slices.Delete(n.records, i, i+1)
	for sub := range n.browses {
		if sub.regtype == id.Regtype() && sub.domain == id.Domain() {
			n.postBrowse(sub, 0, id)
		}
	}
	return true
}

func (n *Network) postBrowse(sub *browseSub, flags bonjour.Flags, id bonjour.Identity) {
	err := n.failReply[bonjour.KindBrowse]
	sub.op.Post(func(more bool) {
		f := flags
		if more {
			f |= bonjour.FlagMoreComing
		}
		sub.reply(f, id.Name(), id.Regtype(), id.Domain(), err)
	})
}

func (n *Network) postResolve(sub *resolveSub, rec record) {
	err := n.failReply[bonjour.KindResolve]
	fullname := naming.InstanceName(rec.id.Name(), rec.id.Regtype(), rec.id.Domain())
	sub.op.Post(func(more bool) {
		var f bonjour.Flags
		if more {
			f |= bonjour.FlagMoreComing
		}
		sub.reply(f, fullname, rec.host, rec.port, err)
	})
}

// Provider implements bonjour.Provider on a Network.
type Provider struct {
	net  *Network
	host string
}

func (p *Provider) Browse(regtype, domain string, reply bonjour.BrowseReply) (bonjour.Operation, error) {
	n := p.net
	n.mu.Lock()
	defer n.mu.Unlock()

	op, err := n.begin(bonjour.KindBrowse)
	if err != nil {
		return nil, err
	}

	target := bonjour.NewIdentity("", regtype, domain)
	sub := &browseSub{regtype: target.Regtype(), domain: target.Domain(), op: op, reply: reply}
	n.browses[sub] = struct{}{}
	op.OnRelease(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.browses, sub)
	})

	for _, rec := range n.records {
		if rec.id.Regtype() == sub.regtype && rec.id.Domain() == sub.domain {
			n.postBrowse(sub, bonjour.FlagAdd, rec.id)
		}
	}
	return op, nil
}

// Register publishes the instance. A name already taken on the network is
// renamed to "name (2)", "name (3)" and so on.
func (p *Provider) Register(name, regtype, domain string, port uint16, reply bonjour.RegisterReply) (bonjour.Operation, error) {
	n := p.net
	n.mu.Lock()
	defer n.mu.Unlock()

	op, err := n.begin(bonjour.KindRegister)
	if err != nil {
		return nil, err
	}

	id := bonjour.NewIdentity(name, regtype, domain)
	for i := 2; n.indexLocked(id) >= 0; i++ {
		id = bonjour.NewIdentity(fmt.Sprintf("%s (%d)", name, i), regtype, domain)
	}
	n.publishLocked(record{id: id, host: p.host, port: port})
	op.OnRelease(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.withdrawLocked(id)
	})

	replyErr := n.failReply[bonjour.KindRegister]
	op.Post(func(more bool) {
		flags := bonjour.FlagAdd
		if more {
			flags |= bonjour.FlagMoreComing
		}
		reply(flags, id.Name(), id.Regtype(), id.Domain(), replyErr)
	})
	return op, nil
}

// Resolve answers as soon as the instance is visible, immediately if it already is.
func (p *Provider) Resolve(name, regtype, domain string, reply bonjour.ResolveReply) (bonjour.Operation, error) {
	n := p.net
	n.mu.Lock()
	defer n.mu.Unlock()

	op, err := n.begin(bonjour.KindResolve)
	if err != nil {
		return nil, err
	}

	sub := &resolveSub{id: bonjour.NewIdentity(name, regtype, domain), op: op, reply: reply}
	n.resolves[sub] = struct{}{}
	op.OnRelease(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.resolves, sub)
	})

	if i := n.indexLocked(sub.id); i >= 0 {
		n.postResolve(sub, n.records[i])
	}
	return op, nil
}
