// Package dnssd provides a bonjour.Provider backed by github.com/brutella/dnssd.
package dnssd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/brutella/dnssd"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/naming"
	"github.com/rescp17/lanpeer/pkg/provider/pending"
)

// Provider announces services with a dnssd responder and browses and
// resolves with dnssd lookups.
type Provider struct {
	text   map[string]string
	ifaces []string
	log    *slog.Logger
}

type Option func(*Provider)

// WithText sets the TXT record attached to registrations.
func WithText(text map[string]string) Option {
	return func(p *Provider) { p.text = text }
}

// WithInterfaces restricts registrations to the named network interfaces.
func WithInterfaces(ifaces ...string) Option {
	return func(p *Provider) { p.ifaces = ifaces }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.log = logger }
}

func New(opts ...Option) *Provider {
	p := &Provider{log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("provider", "dnssd")
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
	service := naming.ServiceName(regtype, domain)
	op := pending.NewOp()

	// dnssd reports an instance once per interface it is seen on; only the
	// first sighting and the last withdrawal reach the reply.
	var (
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	post := func(flags bonjour.Flags, name string) {
		op.Post(func(more bool) {
			reply(withMore(flags, more), name, regtype, domain, nil)
		})
	}
	add := func(e dnssd.BrowseEntry) {
		mu.Lock()
		seen[e.Name]++
		first := seen[e.Name] == 1
		mu.Unlock()
		if first {
			post(bonjour.FlagAdd, e.Name)
		}
	}
	rmv := func(e dnssd.BrowseEntry) {
		mu.Lock()
		last := seen[e.Name] == 1
		if seen[e.Name] > 0 {
			seen[e.Name]--
		}
		if seen[e.Name] == 0 {
			delete(seen, e.Name)
		}
		mu.Unlock()
		if last {
			post(0, e.Name)
		}
	}

	op.Go(func(ctx context.Context) error {
		if err := dnssd.LookupType(ctx, service, add, rmv); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mDNS lookup failed: %w", err)
		}
		return nil
	})
	p.log.Debug("Browsing", "service", service)
	return op, nil
}

func (p *Provider) Register(name, regtype, domain string, port uint16, reply bonjour.RegisterReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	cfg := dnssd.Config{
		Name:   name,
		Type:   regtype,
		Domain: strings.TrimSuffix(domain, "."),
		// mdns will multicast to every interface address, so IPs stay nil
		IPs:    nil,
		Text:   p.text,
		Port:   int(port),
		Ifaces: p.ifaces,
	}

	service, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS responder: %w", err)
	}

	handle, err := rp.Add(service)
	if err != nil {
		return nil, fmt.Errorf("failed to add mDNS service: %w", err)
	}

	op := pending.NewOp()
	op.OnRelease(func() {
		rp.Remove(handle)
		p.log.Debug("Shutting down mDNS responder", "name", name)
	})
	op.Go(func(ctx context.Context) error {
		// Context cancellation is not an error in normal operation
		if err := rp.Respond(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to respond to mDNS service: %w", err)
		}
		return nil
	})

	registered := handle.Service().Name
	op.Post(func(more bool) {
		reply(withMore(bonjour.FlagAdd, more), registered, regtype, domain, nil)
	})
	return op, nil
}

func (p *Provider) Resolve(name, regtype, domain string, reply bonjour.ResolveReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	instance := naming.InstanceName(name, regtype, domain)
	op := pending.NewOp()

	op.Go(func(ctx context.Context) error {
		entry, err := dnssd.LookupInstance(ctx, instance)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("failed to resolve %s: %w", instance, err)
		}
		host := naming.HostName(entry.Host, domain)
		port := uint16(entry.Port)
		op.Post(func(more bool) {
			reply(withMore(0, more), instance, host, port, nil)
		})
		return nil
	})
	return op, nil
}
