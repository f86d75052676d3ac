package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_WaitTimesOutWhenEmpty(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ready, err := q.Wait(ctx)
	assert.False(t, ready)
	assert.NoError(t, err)
}

func TestQueue_ProcessDeliversBatchWithMoreFlags(t *testing.T) {
	q := NewQueue()
	var got []bool
	for i := 0; i < 3; i++ {
		q.Post(func(more bool) { got = append(got, more) })
	}

	ready, err := q.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	require.NoError(t, q.Process())

	assert.Equal(t, []bool{true, true, false}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_WaitWakesOnPost(t *testing.T) {
	q := NewQueue()
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Post(func(bool) {})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ready, err := q.Wait(ctx)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestQueue_FailAfterPendingReplies(t *testing.T) {
	q := NewQueue()
	boom := errors.New("boom")
	delivered := false
	q.Post(func(bool) { delivered = true })
	q.Fail(boom)
	q.Fail(errors.New("second"))

	ready, err := q.Wait(context.Background())
	require.NoError(t, err)
	require.True(t, ready)
	require.NoError(t, q.Process())
	assert.True(t, delivered)

	ready, err = q.Wait(context.Background())
	assert.False(t, ready)
	assert.ErrorIs(t, err, boom)
}

func TestQueue_CloseDropsReplies(t *testing.T) {
	q := NewQueue()
	q.Post(func(bool) {})
	q.Close()
	q.Post(func(bool) {})

	assert.Equal(t, 0, q.Len())
	_, err := q.Wait(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
}

func TestOp_ReleaseCancelsWorkAndRunsCleanupOnce(t *testing.T) {
	op := NewOp()
	stopped := make(chan struct{})
	op.Go(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})

	var order []int
	op.OnRelease(func() { order = append(order, 1) })
	op.OnRelease(func() { order = append(order, 2) })

	op.Release()
	op.Release()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("background work did not observe release")
	}
	assert.Equal(t, []int{2, 1}, order)

	_, err := op.Wait(context.Background())
	assert.ErrorIs(t, err, ErrReleased)
}

func TestOp_WorkErrorFailsOperation(t *testing.T) {
	op := NewOp()
	defer op.Release()
	boom := errors.New("lookup failed")
	op.Go(func(context.Context) error { return boom })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := op.Wait(ctx)
	assert.ErrorIs(t, err, boom)
}
