package core

import (
	"context"
	"time"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// EngineState is the playback engine's state machine position.
type EngineState int

const (
	EngineIdle EngineState = iota
	EnginePlaying
	EnginePaused
	EngineBuffering
)

func (s EngineState) String() string {
	switch s {
	case EngineIdle:
		return "idle"
	case EnginePlaying:
		return "playing"
	case EnginePaused:
		return "paused"
	case EngineBuffering:
		return "buffering"
	}
	return "unknown"
}

// Transition is one engine state change. Item is the track the change
// concerns; Err is set when the move to Idle was caused by a playback error.
type Transition struct {
	From EngineState
	To   EngineState
	Item *domain.PlaybackItem
	Err  error
}

// FrameSink consumes encoded audio frames.
// Owned by the transport adapter; the engine never closes it.
type FrameSink interface {
	WriteFrame([]byte) error
}

// PlaybackEngine drives one item at a time through the frame sink and
// surfaces its own state changes as events. It has no knowledge of the
// queue; advancement is the subscriber's job.
type PlaybackEngine interface {
	// Play is valid only from Idle and returns ErrInvalidTransition otherwise.
	Play(ctx context.Context, item *domain.PlaybackItem) error
	// Pause and Resume are no-ops outside Playing/Paused respectively.
	Pause()
	Resume()
	// Stop forces Idle from any state without invoking item callbacks.
	Stop()

	State() EngineState
	Current() *domain.PlaybackItem
	Position() time.Duration

	// Transitions is the engine's event stream. There is a single subscriber,
	// registered at construction; the channel closes on Close.
	Transitions() <-chan Transition
	Close()
}
