// Package zeroconf provides a bonjour.Provider backed by
// github.com/grandcat/zeroconf.
package zeroconf

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/grandcat/zeroconf"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/naming"
	"github.com/rescp17/lanpeer/pkg/provider/pending"
)

// lookuper is the part of *zeroconf.Resolver the provider uses.
type lookuper interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type Provider struct {
	ifaces []net.Interface
	text   []string
	log    *slog.Logger

	newResolver func() (lookuper, error)
	register    func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error)
}

type shutdowner interface{ Shutdown() }

type Option func(*Provider)

// WithInterfaces restricts browsing and registration to ifaces.
func WithInterfaces(ifaces ...net.Interface) Option {
	return func(p *Provider) { p.ifaces = ifaces }
}

func WithText(text ...string) Option {
	return func(p *Provider) { p.text = text }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.log = logger }
}

func New(opts ...Option) *Provider {
	p := &Provider{log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("provider", "zeroconf")
	p.newResolver = func() (lookuper, error) {
		var copts []zeroconf.ClientOption
		if len(p.ifaces) > 0 {
			copts = append(copts, zeroconf.SelectIfaces(p.ifaces))
		}
		return zeroconf.NewResolver(copts...)
	}
	p.register = func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error) {
		return zeroconf.Register(instance, service, domain, port, text, ifaces)
	}
	return p
}

func withMore(flags bonjour.Flags, more bool) bonjour.Flags {
	if more {
		flags |= bonjour.FlagMoreComing
	}
	return flags
}

func (p *Provider) Browse(regtype, domain string, reply bonjour.BrowseReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	resolver, err := p.newResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	op := pending.NewOp()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(op.Context(), regtype, domain, entries); err != nil {
		op.Release()
		return nil, fmt.Errorf("failed to browse %s: %w", regtype, err)
	}

	op.Go(func(ctx context.Context) error {
		// A TTL of zero is a goodbye packet.
		present := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-entries:
				if !ok {
					return nil
				}
				name := e.Instance
				var flags bonjour.Flags
				switch {
				case e.TTL > 0 && !present[name]:
					present[name] = true
					flags = bonjour.FlagAdd
				case e.TTL == 0 && present[name]:
					delete(present, name)
				default:
					continue
				}
				op.Post(func(more bool) {
					reply(withMore(flags, more), name, regtype, domain, nil)
				})
			}
		}
	})
	p.log.Debug("Browsing", "service", naming.ServiceName(regtype, domain))
	return op, nil
}

func (p *Provider) Register(name, regtype, domain string, port uint16, reply bonjour.RegisterReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	server, err := p.register(name, regtype, domain, int(port), p.text, p.ifaces)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", name, err)
	}

	op := pending.NewOp()
	op.OnRelease(server.Shutdown)
	op.Post(func(more bool) {
		reply(withMore(bonjour.FlagAdd, more), name, regtype, domain, nil)
	})
	return op, nil
}

func (p *Provider) Resolve(name, regtype, domain string, reply bonjour.ResolveReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	resolver, err := p.newResolver()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	op := pending.NewOp()
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Lookup(op.Context(), name, regtype, domain, entries); err != nil {
		op.Release()
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}

	fullname := naming.InstanceName(name, regtype, domain)
	op.Go(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
		case e, ok := <-entries:
			if !ok {
				return nil
			}
			host := naming.HostName(e.HostName, domain)
			port := uint16(e.Port)
			op.Post(func(more bool) {
				reply(withMore(0, more), fullname, host, port, nil)
			})
		}
		return nil
	})
	return op, nil
}
