// Package hashimdns provides a bonjour.Provider backed by
// github.com/hashicorp/mdns.
//
// hashicorp/mdns only offers one-shot queries, so browsing re-queries on a
// ticker and reports an instance as removed once it has not answered for
// the stale interval. Resolving re-queries until the instance answers.
package hashimdns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"

	"github.com/rescp17/lanpeer/pkg/bonjour"
	"github.com/rescp17/lanpeer/pkg/naming"
	"github.com/rescp17/lanpeer/pkg/provider/pending"
)

const (
	DefaultQueryInterval = 2 * time.Second
	DefaultQueryTimeout  = time.Second
	DefaultStaleAfter    = 10 * time.Second
)

type Provider struct {
	clock         clock.Clock
	queryInterval time.Duration
	queryTimeout  time.Duration
	staleAfter    time.Duration
	iface         *net.Interface
	ipv6          bool
	txt           []string
	log           *slog.Logger

	// query is mdns.Query, replaced in tests
	query func(*mdns.QueryParam) error
}

type Option func(*Provider)

// WithClock sets the clock that drives re-queries and stale detection.
func WithClock(c clock.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

func WithQueryInterval(d time.Duration) Option {
	return func(p *Provider) { p.queryInterval = d }
}

func WithQueryTimeout(d time.Duration) Option {
	return func(p *Provider) { p.queryTimeout = d }
}

// WithStaleAfter sets how long a browsed instance may go unanswered before
// it is reported as removed.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Provider) { p.staleAfter = d }
}

// WithInterface binds queries and the responder to one interface.
func WithInterface(iface *net.Interface) Option {
	return func(p *Provider) { p.iface = iface }
}

func WithIPv6(enabled bool) Option {
	return func(p *Provider) { p.ipv6 = enabled }
}

func WithTXT(txt ...string) Option {
	return func(p *Provider) { p.txt = txt }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.log = logger }
}

func New(opts ...Option) *Provider {
	p := &Provider{
		clock:         clock.New(),
		queryInterval: DefaultQueryInterval,
		queryTimeout:  DefaultQueryTimeout,
		staleAfter:    DefaultStaleAfter,
		log:           slog.Default(),
		query:         mdns.Query,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("provider", "hashimdns")
	return p
}

func withMore(flags bonjour.Flags, more bool) bonjour.Flags {
	if more {
		flags |= bonjour.FlagMoreComing
	}
	return flags
}

// lookup runs one query and collects its answers.
func (p *Provider) lookup(regtype, domain string) ([]*mdns.ServiceEntry, error) {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})
	var found []*mdns.ServiceEntry
	go func() {
		defer close(done)
		for e := range entries {
			found = append(found, e)
		}
	}()

	params := mdns.DefaultParams(regtype)
	params.Domain = strings.TrimSuffix(domain, ".")
	params.Timeout = p.queryTimeout
	params.Entries = entries
	params.Interface = p.iface
	params.DisableIPv6 = !p.ipv6

	err := p.query(params)
	close(entries)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mDNS query for %s failed: %w", regtype, err)
	}
	return found, nil
}

// matches returns the instance name of e when it belongs to regtype.
func matches(e *mdns.ServiceEntry, regtype string) (string, bool) {
	name, rt, _, ok := naming.SplitInstance(e.Name)
	if !ok || rt != strings.TrimSuffix(regtype, ".") {
		return "", false
	}
	return name, true
}

func (p *Provider) Browse(regtype, domain string, reply bonjour.BrowseReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	op := pending.NewOp()
	post := func(flags bonjour.Flags, name string) {
		op.Post(func(more bool) {
			reply(withMore(flags, more), name, regtype, domain, nil)
		})
	}

	op.Go(func(ctx context.Context) error {
		seen := newTracker(p.staleAfter)
		ticker := p.clock.Ticker(p.queryInterval)
		defer ticker.Stop()
		for {
			found, err := p.lookup(regtype, domain)
			if err != nil {
				return err
			}
			now := p.clock.Now()
			for _, e := range found {
				if name, ok := matches(e, regtype); ok && seen.seen(name, now) {
					post(bonjour.FlagAdd, name)
				}
			}
			for _, name := range seen.expire(now) {
				post(0, name)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	p.log.Debug("Browsing", "service", naming.ServiceName(regtype, domain))
	return op, nil
}

func (p *Provider) Register(name, regtype, domain string, port uint16, reply bonjour.RegisterReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	ips, err := localIPs(p.iface)
	if err != nil {
		return nil, err
	}

	service, err := mdns.NewMDNSService(name, regtype, strings.TrimSuffix(domain, "."),
		naming.HostName(host, domain), int(port), ips, p.txt)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service, Iface: p.iface})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	op := pending.NewOp()
	op.OnRelease(func() {
		if err := server.Shutdown(); err != nil {
			p.log.Warn("mDNS server shutdown failed", "name", name, "error", err)
		}
	})
	op.Post(func(more bool) {
		reply(withMore(bonjour.FlagAdd, more), name, regtype, domain, nil)
	})
	return op, nil
}

func (p *Provider) Resolve(name, regtype, domain string, reply bonjour.ResolveReply) (bonjour.Operation, error) {
	domain = naming.ValidateDomain(domain)
	op := pending.NewOp()

	op.Go(func(ctx context.Context) error {
		ticker := p.clock.Ticker(p.queryInterval)
		defer ticker.Stop()
		for {
			found, err := p.lookup(regtype, domain)
			if err != nil {
				return err
			}
			for _, e := range found {
				if n, ok := matches(e, regtype); ok && n == name {
					fullname := naming.InstanceName(name, regtype, domain)
					host := naming.HostName(e.Host, domain)
					port := uint16(e.Port)
					op.Post(func(more bool) {
						reply(withMore(0, more), fullname, host, port, nil)
					})
					return nil
				}
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return op, nil
}

// localIPs lists the unicast addresses to advertise, restricted to iface
// when it is set.
func localIPs(iface *net.Interface) ([]net.IP, error) {
	var addrs []net.Addr
	var err error
	if iface != nil {
		addrs, err = iface.Addrs()
	} else {
		addrs, err = net.InterfaceAddrs()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	var ips []net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.IsLinkLocalUnicast() {
			continue
		}
		ips = append(ips, ipnet.IP)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no usable network address found")
	}
	return ips, nil
}
