package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// start runs the CLI with args until the returned cancel is called.
func start(t *testing.T, args ...string) (*syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	return out, cancel, done
}

func finish(t *testing.T, cancel context.CancelFunc, done <-chan error) error {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("command did not exit")
		return nil
	}
}

func TestDefaultName(t *testing.T) {
	assert.Regexp(t, regexp.MustCompile(`^lanpeer-[0-9a-f]{8}$`), defaultName())
	assert.NotEqual(t, defaultName(), defaultName())
}

func TestRegisterCommand(t *testing.T) {
	out, cancel, done := start(t, "register", "--backend", "memory", "--name", "alice", "--port", "5000", "--poll-interval", "10ms")
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("alice"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "5000")
	assert.NoError(t, finish(t, cancel, done))
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lanpeer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"backend":"memory","name":"from-file","port":4000}`), 0o644))

	out, cancel, done := start(t, "register", "--config", path, "--port", "6000", "--poll-interval", "10ms")
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("from-file"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "6000")
	assert.NotContains(t, out.String(), "4000")
	assert.NoError(t, finish(t, cancel, done))
}

func TestInvalidConfigIsRejected(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"browse", "--backend", "memory", "--regtype", "chat", "--mode", "sideways"})
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(&syncBuffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "regtype")
	assert.Contains(t, err.Error(), `unknown mode "sideways"`)
}

func TestResolveCommandTimesOut(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"resolve", "nobody", "--backend", "memory", "--timeout", "50ms", "--poll-interval", "10ms"})
	cmd.SetOut(&syncBuffer{})
	cmd.SetErr(&syncBuffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no answer for nobody")
}

func TestPeerCommandPrintsItself(t *testing.T) {
	out, cancel, done := start(t, "peer", "--backend", "memory", "--name", "alice", "--self",
		"--poll-interval", "10ms", "--refresh-interval", "10ms")
	require.Eventually(t, func() bool {
		return regexp.MustCompile(`alice\s+localhost\.local\.\s+4747`).MatchString(out.String())
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "1 peer(s)")
	assert.NoError(t, finish(t, cancel, done))
}
