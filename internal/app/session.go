package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
	"github.com/variouspotatoes/discord-music-player/internal/metrics"
)

// SessionOptions carries the optional wiring for a session.
type SessionOptions struct {
	// IdleLeaveAfter tears the session down after the queue drains and the
	// engine stays idle for this long. Zero keeps idle sessions alive.
	IdleLeaveAfter time.Duration
	Metrics        *metrics.Metrics
	// OnClose runs exactly once after teardown, outside the session lock.
	OnClose func(*Session)
}

// Session binds one room to one queue, one engine, and one voice connection.
// Enqueue, the idle-advance handler, and teardown are mutually exclusive
// critical sections on mu; that is the whole ordering policy.
type Session struct {
	room   domain.RoomID
	conn   core.VoiceConnection
	engine core.PlaybackEngine
	queue  *core.Queue
	opts   SessionOptions
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	idleTimer *time.Timer
}

// NewSession wires the pieces together, subscribes to the engine's transition
// stream, and starts the connection handshake. The session is returned
// immediately in Connecting state; callers that need playback must AwaitReady.
func NewSession(room domain.RoomID, conn core.VoiceConnection, engine core.PlaybackEngine, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		room:   room,
		conn:   conn,
		engine: engine,
		queue:  core.NewQueue(),
		opts:   opts,
		log:    log.With().Str("module", "app.session").Str("room", string(room)).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	conn.OnError(s.onTransportError)
	go s.watchTransitions()
	conn.Connect(ctx)
	return s
}

func (s *Session) Room() domain.RoomID { return s.room }

// AwaitReady suspends the caller (never the session) until the voice
// connection is usable or the bound elapses.
func (s *Session) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return s.conn.AwaitReady(ctx, timeout)
}

// Enqueue appends the item; if nothing is playing and the connection is
// ready, playback starts immediately.
func (s *Session) Enqueue(item *domain.PlaybackItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.queue.Push(item)
	s.opts.Metrics.ItemQueued()
	s.log.Info().Str("title", item.Title()).Int("queued", s.queue.Len()).Msg("item enqueued")
	s.playNextLocked()
	return nil
}

// Skip delegates to the engine's forced stop; the resulting Idle transition
// drives the actual advancement. Neither OnFinish nor OnError fires for the
// skipped item.
func (s *Session) Skip() {
	s.engine.Stop()
}

func (s *Session) Pause()  { s.engine.Pause() }
func (s *Session) Resume() { s.engine.Resume() }

// Leave destroys the connection, abandons all queued items without invoking
// their callbacks, and removes the session from its registry. Terminal.
func (s *Session) Leave() {
	s.teardown("leave")
}

// QueueSnapshot returns up to n upcoming items.
func (s *Session) QueueSnapshot(n int) []*domain.PlaybackItem {
	return s.queue.Snapshot(n)
}

func (s *Session) QueueLen() int {
	return s.queue.Len()
}

// NowPlaying describes the current item for read-only queries.
type NowPlaying struct {
	Title    string
	Duration time.Duration
	Position time.Duration
	State    core.EngineState
}

func (s *Session) NowPlaying() (NowPlaying, bool) {
	item := s.engine.Current()
	if item == nil {
		return NowPlaying{}, false
	}
	return NowPlaying{
		Title:    item.Title(),
		Duration: item.Duration(),
		Position: s.engine.Position(),
		State:    s.engine.State(),
	}, true
}

func (s *Session) ConnState() core.ConnState { return s.conn.State() }

// watchTransitions is the session's sole reaction path to the engine.
// Events arrive in order; the Idle transition is the advancement trigger.
func (s *Session) watchTransitions() {
	for tr := range s.engine.Transitions() {
		if tr.To != core.EngineIdle {
			continue
		}
		s.advance(tr)
	}
}

func (s *Session) advance(tr core.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if tr.Err != nil {
		s.opts.Metrics.PlaybackFailed()
		s.log.Warn().Err(tr.Err).Msg("item failed, advancing")
	}
	s.playNextLocked()
}

// playNextLocked pops and plays the next item when the engine is idle and the
// connection is ready. Popping under mu is what makes two racing callers
// unable to both claim responsibility for Play.
func (s *Session) playNextLocked() {
	if s.engine.State() != core.EngineIdle || s.conn.State() != core.ConnReady {
		return
	}
	item, ok := s.queue.PopFront()
	if !ok {
		s.scheduleIdleLeaveLocked()
		return
	}
	s.stopIdleTimerLocked()
	if err := s.engine.Play(s.ctx, item); err != nil {
		s.log.Error().Err(err).Str("title", item.Title()).Msg("play refused")
		return
	}
	s.opts.Metrics.ItemStarted()
	s.log.Info().Str("title", item.Title()).Msg("now playing")
}

// onTransportError implements the teardown-only policy: a dead transport
// after Ready makes any further playback meaningless.
func (s *Session) onTransportError(err error) {
	s.log.Error().Err(err).Msg("transport failure, tearing down")
	s.teardown("transport_failure")
}

func (s *Session) teardown(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopIdleTimerLocked()
	dropped := s.queue.Clear()
	s.mu.Unlock()

	s.cancel()
	s.engine.Close()
	s.conn.Destroy()
	s.opts.Metrics.SessionClosed(reason)
	s.log.Info().Str("reason", reason).Int("dropped", dropped).Msg("session closed")
	if s.opts.OnClose != nil {
		s.opts.OnClose(s)
	}
}

func (s *Session) scheduleIdleLeaveLocked() {
	if s.opts.IdleLeaveAfter <= 0 || s.idleTimer != nil {
		return
	}
	s.idleTimer = time.AfterFunc(s.opts.IdleLeaveAfter, func() {
		s.mu.Lock()
		stillIdle := !s.closed && s.engine.State() == core.EngineIdle && s.queue.Len() == 0
		s.mu.Unlock()
		if stillIdle {
			s.teardown("idle")
		}
	})
}

func (s *Session) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}
