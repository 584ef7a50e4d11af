package app

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

const testInterval = time.Millisecond

// fakeConn is a voice connection whose readiness and failures the test controls.
type fakeConn struct {
	mu      sync.Mutex
	state   core.ConnState
	onErr   func(error)
	readyCh chan struct{}
	frames  atomic.Int64
}

func newReadyConn() *fakeConn {
	c := &fakeConn{state: core.ConnReady, readyCh: make(chan struct{})}
	close(c.readyCh)
	return c
}

func newConnectingConn() *fakeConn {
	return &fakeConn{state: core.ConnConnecting, readyCh: make(chan struct{})}
}

func (c *fakeConn) Connect(ctx context.Context) {}

func (c *fakeConn) AwaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.readyCh:
		return nil
	case <-timer.C:
		return &domain.JoinTimeoutError{Wait: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) State() core.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) WriteFrame([]byte) error {
	c.frames.Add(1)
	return nil
}

func (c *fakeConn) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onErr = fn
}

func (c *fakeConn) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = core.ConnDestroyed
}

func (c *fakeConn) fail(err error) {
	c.mu.Lock()
	cb := c.onErr
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// fixedSource yields n synthetic frames then EOF.
type fixedSource struct{ frames int }

func (s *fixedSource) Open(ctx context.Context) (domain.FrameReader, error) {
	return &fixedReader{frames: s.frames}, nil
}

type fixedReader struct{ frames, read int }

func (r *fixedReader) ReadFrame() ([]byte, error) {
	r.read++
	if r.read > r.frames {
		return nil, io.EOF
	}
	return []byte{0xf8}, nil
}

func (r *fixedReader) Close() error { return nil }

// lifecycleLog records per-title callback invocations in order.
type lifecycleLog struct {
	mu       sync.Mutex
	starts   []string
	finishes []string
	errors   []string
}

func (l *lifecycleLog) item(title string, frames int) *domain.PlaybackItem {
	return domain.NewPlaybackItem(
		domain.Track{Title: title, Source: &fixedSource{frames: frames}},
		"tester",
		domain.ItemHooks{
			OnStart:  func() { l.mu.Lock(); l.starts = append(l.starts, title); l.mu.Unlock() },
			OnFinish: func() { l.mu.Lock(); l.finishes = append(l.finishes, title); l.mu.Unlock() },
			OnError:  func(error) { l.mu.Lock(); l.errors = append(l.errors, title); l.mu.Unlock() },
		},
	)
}

func (l *lifecycleLog) snapshot() (starts, finishes, errs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.starts...),
		append([]string(nil), l.finishes...),
		append([]string(nil), l.errors...)
}

func newTestSession(t *testing.T, conn core.VoiceConnection, opts SessionOptions) *Session {
	t.Helper()
	s := NewSession("room-1", conn, core.NewEngine(conn, testInterval), opts)
	t.Cleanup(s.Leave)
	return s
}

func TestSessionPlaysEnqueuedItemsInOrder(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	require.NoError(t, s.Enqueue(rec.item("a", 2)))
	require.NoError(t, s.Enqueue(rec.item("b", 2)))
	require.NoError(t, s.Enqueue(rec.item("c", 2)))

	require.Eventually(t, func() bool {
		_, finishes, _ := rec.snapshot()
		return len(finishes) == 3
	}, 2*time.Second, time.Millisecond)

	starts, finishes, errs := rec.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, starts)
	assert.Equal(t, []string{"a", "b", "c"}, finishes)
	assert.Empty(t, errs)
	assert.Equal(t, 0, s.QueueLen())
}

func TestSessionAdvancesAfterNaturalCompletion(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	// A plays immediately; B and C wait.
	require.NoError(t, s.Enqueue(rec.item("a", 2)))
	require.NoError(t, s.Enqueue(rec.item("b", 10_000)))
	require.NoError(t, s.Enqueue(rec.item("c", 10_000)))

	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 2
	}, 2*time.Second, time.Millisecond)

	starts, finishes, _ := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, starts)
	assert.Equal(t, []string{"a"}, finishes)
	assert.Equal(t, 1, s.QueueLen(), "only c remains queued")
}

func TestSessionQueueLenIsEnqueuesMinusCompletions(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	// The head item never completes, so nothing else gets popped.
	require.NoError(t, s.Enqueue(rec.item("head", 10_000)))
	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 1
	}, time.Second, time.Millisecond)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Enqueue(rec.item("queued", 1)))
	}
	assert.Equal(t, 4, s.QueueLen())
}

func TestSessionSkipAdvancesWithoutCallbacks(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	require.NoError(t, s.Enqueue(rec.item("skipped", 10_000)))
	require.NoError(t, s.Enqueue(rec.item("next", 10_000)))

	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 1
	}, time.Second, time.Millisecond)

	s.Skip()

	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 2
	}, time.Second, time.Millisecond)

	starts, finishes, errs := rec.snapshot()
	assert.Equal(t, []string{"skipped", "next"}, starts)
	assert.Empty(t, finishes, "skip is neither finish nor error")
	assert.Empty(t, errs)
}

func TestSessionLeaveDiscardsQueueSilently(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	var closed atomic.Bool
	s := NewSession("room-1", conn, core.NewEngine(conn, testInterval), SessionOptions{
		OnClose: func(*Session) { closed.Store(true) },
	})

	require.NoError(t, s.Enqueue(rec.item("playing", 10_000)))
	require.NoError(t, s.Enqueue(rec.item("pending-1", 5)))
	require.NoError(t, s.Enqueue(rec.item("pending-2", 5)))

	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 1
	}, time.Second, time.Millisecond)

	s.Leave()

	assert.True(t, closed.Load())
	assert.Equal(t, core.ConnDestroyed, conn.State())
	assert.Equal(t, 0, s.QueueLen())
	assert.ErrorIs(t, s.Enqueue(rec.item("late", 1)), domain.ErrSessionClosed)

	// Abandoned items get no spurious callbacks, ever.
	time.Sleep(20 * testInterval)
	_, finishes, errs := rec.snapshot()
	assert.Empty(t, finishes)
	assert.Empty(t, errs)

	// Leave is terminal and idempotent.
	s.Leave()
}

func TestSessionTransportFailureTearsDown(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	var closed atomic.Bool
	s := NewSession("room-1", conn, core.NewEngine(conn, testInterval), SessionOptions{
		OnClose: func(*Session) { closed.Store(true) },
	})

	require.NoError(t, s.Enqueue(rec.item("playing", 10_000)))
	require.NoError(t, s.Enqueue(rec.item("pending", 5)))

	require.Eventually(t, func() bool {
		starts, _, _ := rec.snapshot()
		return len(starts) == 1
	}, time.Second, time.Millisecond)

	conn.fail(io.ErrUnexpectedEOF)

	assert.True(t, closed.Load())
	assert.Equal(t, core.ConnDestroyed, conn.State())
	_, finishes, errs := rec.snapshot()
	assert.Empty(t, finishes)
	assert.Empty(t, errs)
}

func TestSessionWaitsForConnection(t *testing.T) {
	conn := newConnectingConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	err := s.AwaitReady(context.Background(), 20*time.Millisecond)
	var timeout *domain.JoinTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, core.ConnConnecting, conn.State(), "timeout abandons the wait, not the attempt")

	// Items enqueued before readiness must wait.
	require.NoError(t, s.Enqueue(rec.item("early", 1)))
	time.Sleep(10 * testInterval)
	starts, _, _ := rec.snapshot()
	assert.Empty(t, starts)
	assert.Equal(t, 1, s.QueueLen())
}

func TestSessionConcurrentEnqueueSingleActivePlay(t *testing.T) {
	conn := newReadyConn()
	s := newTestSession(t, conn, SessionOptions{})

	var active, maxActive, finished atomic.Int64
	const total = 12
	mkItem := func() *domain.PlaybackItem {
		return domain.NewPlaybackItem(
			domain.Track{Title: "t", Source: &fixedSource{frames: 1}},
			"tester",
			domain.ItemHooks{
				OnStart: func() {
					if now := active.Add(1); now > maxActive.Load() {
						maxActive.Store(now)
					}
				},
				OnFinish: func() {
					active.Add(-1)
					finished.Add(1)
				},
			},
		)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				assert.NoError(t, s.Enqueue(mkItem()))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return finished.Load() == total
	}, 5*time.Second, time.Millisecond)
	assert.EqualValues(t, 1, maxActive.Load(), "never two concurrent plays per session")
}

func TestSessionIdleLeave(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	var closed atomic.Bool
	s := NewSession("room-1", conn, core.NewEngine(conn, testInterval), SessionOptions{
		IdleLeaveAfter: 30 * time.Millisecond,
		OnClose:        func(*Session) { closed.Store(true) },
	})

	require.NoError(t, s.Enqueue(rec.item("only", 1)))

	require.Eventually(t, func() bool {
		return closed.Load()
	}, time.Second, time.Millisecond)

	_, finishes, _ := rec.snapshot()
	assert.Equal(t, []string{"only"}, finishes)
	assert.Equal(t, core.ConnDestroyed, conn.State())
}

func TestSessionNowPlaying(t *testing.T) {
	conn := newReadyConn()
	rec := &lifecycleLog{}
	s := newTestSession(t, conn, SessionOptions{})

	_, playing := s.NowPlaying()
	assert.False(t, playing)

	require.NoError(t, s.Enqueue(rec.item("current", 10_000)))
	require.Eventually(t, func() bool {
		now, ok := s.NowPlaying()
		return ok && now.Title == "current" && now.State == core.EnginePlaying
	}, time.Second, time.Millisecond)
}
