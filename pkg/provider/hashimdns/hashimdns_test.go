package hashimdns

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescp17/lanpeer/pkg/bonjour"
)

// fakeLink answers queries from a mutable list of entries.
type fakeLink struct {
	mu      sync.Mutex
	entries []*mdns.ServiceEntry
	err     error
	queries int
}

func (f *fakeLink) set(entries ...*mdns.ServiceEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = entries
}

func (f *fakeLink) query(params *mdns.QueryParam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.err != nil {
		return f.err
	}
	for _, e := range f.entries {
		params.Entries <- e
	}
	return nil
}

func newTestProvider(link *fakeLink, mock *clock.Mock) *Provider {
	p := New(WithClock(mock), WithQueryInterval(time.Second), WithStaleAfter(3*time.Second))
	p.query = link.query
	return p
}

// pump processes everything op has queued within a short window.
func pump(t *testing.T, op bonjour.Operation) {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		ready, err := op.Wait(ctx)
		cancel()
		require.NoError(t, err)
		if !ready {
			return
		}
		require.NoError(t, op.Process())
	}
}

func entry(name, host string, port int) *mdns.ServiceEntry {
	return &mdns.ServiceEntry{Name: name, Host: host, Port: port}
}

func TestProvider_BrowseAddsAndExpires(t *testing.T) {
	link := &fakeLink{}
	link.set(
		entry("bob._chat._tcp.local.", "bravo.local.", 6000),
		entry("other._http._tcp.local.", "x.local.", 80),
	)
	mock := clock.NewMock()
	p := newTestProvider(link, mock)

	type event struct {
		name  string
		added bool
	}
	var (
		mu     sync.Mutex
		events []event
	)
	op, err := p.Browse("_chat._tcp", "", func(flags bonjour.Flags, name, regtype, domain string, err error) {
		require.NoError(t, err)
		assert.Equal(t, "_chat._tcp", regtype)
		assert.Equal(t, "local.", domain)
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event{name, flags.Added()})
	})
	require.NoError(t, err)
	defer op.Release()

	snapshot := func() []event {
		mu.Lock()
		defer mu.Unlock()
		return append([]event(nil), events...)
	}

	require.Eventually(t, func() bool {
		pump(t, op)
		return len(snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, event{"bob", true}, snapshot()[0])

	link.set()
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		pump(t, op)
		return len(snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, event{"bob", false}, snapshot()[1])
}

func TestProvider_BrowseQueryFailureFailsOperation(t *testing.T) {
	link := &fakeLink{err: errors.New("no multicast")}
	p := newTestProvider(link, clock.NewMock())

	op, err := p.Browse("_chat._tcp", "", func(bonjour.Flags, string, string, string, error) {})
	require.NoError(t, err)
	defer op.Release()

	_, err = op.Wait(context.Background())
	assert.ErrorContains(t, err, "no multicast")
}

func TestProvider_ResolveRetriesUntilAnswered(t *testing.T) {
	link := &fakeLink{}
	mock := clock.NewMock()
	p := newTestProvider(link, mock)

	var (
		mu       sync.Mutex
		fullname string
		host     string
		port     uint16
	)
	op, err := p.Resolve("bob", "_chat._tcp", "local.", func(_ bonjour.Flags, f, h string, pt uint16, err error) {
		require.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		fullname, host, port = f, h, pt
	})
	require.NoError(t, err)
	defer op.Release()

	pump(t, op)
	link.set(entry("bob._chat._tcp.local.", "bravo.local.", 6000))
	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		pump(t, op)
		mu.Lock()
		defer mu.Unlock()
		return port != 0
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "bob._chat._tcp.local.", fullname)
	assert.Equal(t, "bravo.local.", host)
	assert.Equal(t, uint16(6000), port)
}

func TestMatches(t *testing.T) {
	name, ok := matches(entry(`my\ box._chat._tcp.local.`, "", 0), "_chat._tcp")
	require.True(t, ok)
	assert.Equal(t, "my box", name)

	_, ok = matches(entry("bob._http._tcp.local.", "", 0), "_chat._tcp")
	assert.False(t, ok)
}

func TestProvider_RegisterRealNetwork(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping mDNS test in short mode")
	}
	p := New()
	op, err := p.Register("lanpeer-test", "_lanpeer-test._tcp", "", 9000, func(_ bonjour.Flags, name, _, _ string, err error) {
		assert.NoError(t, err)
		assert.Equal(t, "lanpeer-test", name)
	})
	if err != nil {
		t.Skipf("mDNS server unavailable: %v", err)
	}
	defer op.Release()
	pump(t, op)
}
