package core

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// DefaultFrameInterval matches one 48kHz opus frame.
const DefaultFrameInterval = 20 * time.Millisecond

// Engine implements PlaybackEngine over a FrameSink. One pump goroutine runs
// per Play; a generation counter retires it on Stop so a late completion from
// a stopped track can never fire callbacks or emit a second Idle event.
type Engine struct {
	sink        FrameSink
	interval    time.Duration
	transitions chan Transition

	mu      sync.Mutex
	state   EngineState
	current *domain.PlaybackItem
	pos     time.Duration
	paused  bool
	cancel  context.CancelFunc
	gen     uint64
	closed  bool
}

func NewEngine(sink FrameSink, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &Engine{
		sink:        sink,
		interval:    interval,
		transitions: make(chan Transition, 16),
		state:       EngineIdle,
	}
}

func (e *Engine) Transitions() <-chan Transition { return e.transitions }

func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Current() *domain.PlaybackItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

func (e *Engine) Play(ctx context.Context, item *domain.PlaybackItem) error {
	e.mu.Lock()
	if e.closed || e.state != EngineIdle {
		e.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.gen++
	gen := e.gen
	e.state = EngineBuffering
	e.current = item
	e.pos = 0
	e.paused = false
	e.mu.Unlock()

	e.emit(Transition{From: EngineIdle, To: EngineBuffering, Item: item})
	go e.pump(ctx, gen, item)
	return nil
}

func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != EnginePlaying {
		e.mu.Unlock()
		return
	}
	e.state = EnginePaused
	e.paused = true
	item := e.current
	e.mu.Unlock()
	e.emit(Transition{From: EnginePlaying, To: EnginePaused, Item: item})
}

func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state != EnginePaused {
		e.mu.Unlock()
		return
	}
	e.state = EnginePlaying
	e.paused = false
	item := e.current
	e.mu.Unlock()
	e.emit(Transition{From: EnginePaused, To: EnginePlaying, Item: item})
}

// Stop forces Idle without touching item callbacks; skip and natural
// completion then share the same advancement path downstream.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == EngineIdle {
		e.mu.Unlock()
		return
	}
	e.gen++ // retire the running pump
	from := e.state
	e.state = EngineIdle
	item := e.current
	e.current = nil
	e.paused = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()
	e.emit(Transition{From: from, To: EngineIdle, Item: item})
}

// Close stops playback and closes the transition stream. Terminal.
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.transitions)
}

// pump opens the item's source and paces frames into the sink.
// It owns the item's callbacks for its generation.
func (e *Engine) pump(ctx context.Context, gen uint64, item *domain.PlaybackItem) {
	frames, err := item.Source().Open(ctx)
	if err != nil {
		e.finish(gen, item, &domain.PlaybackError{Title: item.Title(), Err: err})
		return
	}
	defer frames.Close()

	// Claiming the generation and firing OnStart happen in one critical
	// section: once Stop returns, the hook either already ran or never will.
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.state = EnginePlaying
	e.emitLocked(Transition{From: EngineBuffering, To: EnginePlaying, Item: item})
	item.Start()
	e.mu.Unlock()

	tick := time.NewTicker(e.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		e.mu.Lock()
		stale := e.gen != gen
		paused := e.paused
		e.mu.Unlock()
		if stale {
			return
		}
		if paused {
			continue
		}

		frame, err := frames.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				e.finish(gen, item, nil)
			} else {
				e.finish(gen, item, &domain.PlaybackError{Title: item.Title(), Err: err})
			}
			return
		}
		if err := e.sink.WriteFrame(frame); err != nil {
			e.finish(gen, item, &domain.PlaybackError{Title: item.Title(), Err: err})
			return
		}

		e.mu.Lock()
		e.pos += e.interval
		e.mu.Unlock()
	}
}

// finish handles natural completion and playback errors. The generation check
// makes the OnFinish/OnError pair mutually exclusive and at-most-once.
func (e *Engine) finish(gen uint64, item *domain.PlaybackItem, perr error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.gen++
	from := e.state
	e.state = EngineIdle
	e.current = nil
	e.paused = false
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.mu.Unlock()

	if perr != nil {
		item.Fail(perr)
	} else {
		item.Finish()
	}
	e.emit(Transition{From: from, To: EngineIdle, Item: item, Err: perr})
}

func (e *Engine) emit(t Transition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitLocked(t)
}

func (e *Engine) emitLocked(t Transition) {
	if e.closed {
		return
	}
	select {
	case e.transitions <- t:
	default:
		log.Warn().
			Str("module", "core.engine").
			Str("to", t.To.String()).
			Msg("transition dropped, slow subscriber")
	}
}
