package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidTransition is returned by engine.Play when it is not Idle.
	ErrInvalidTransition = errors.New("playback engine is not idle")

	// ErrSessionClosed is returned by operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrConnectionDestroyed is returned by transport operations after Destroy.
	ErrConnectionDestroyed = errors.New("voice connection destroyed")

	// ErrConnectionNotReady is returned when frames are written before the
	// transport handshake completed.
	ErrConnectionNotReady = errors.New("voice connection not ready")
)

// ResolutionError means the resolver could not turn a request into a playable
// track. Session state is unaffected; the requester may simply retry.
type ResolutionError struct {
	Query  string
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %s", e.Query, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// JoinTimeoutError means the voice connection did not reach Ready within the
// bound. The handshake keeps running; the session may still become usable.
type JoinTimeoutError struct {
	Room RoomID
	Wait time.Duration
}

func (e *JoinTimeoutError) Error() string {
	return fmt.Sprintf("room %s: voice connection not ready after %s", e.Room, e.Wait)
}

// PlaybackError is a mid-item decode/stream failure. It is delivered through
// the item's OnError hook; the queue advances normally and the session survives.
type PlaybackError struct {
	Title string
	Err   error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback of %q failed: %v", e.Title, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
