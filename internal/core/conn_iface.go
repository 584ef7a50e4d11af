package core

import (
	"context"
	"time"
)

// ConnState is the voice transport connection's lifecycle position.
type ConnState int

const (
	ConnSignalling ConnState = iota
	ConnConnecting
	ConnReady
	ConnDisconnected
	ConnDestroyed
)

func (s ConnState) String() string {
	switch s {
	case ConnSignalling:
		return "signalling"
	case ConnConnecting:
		return "connecting"
	case ConnReady:
		return "ready"
	case ConnDisconnected:
		return "disconnected"
	case ConnDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// VoiceConnection owns the transport to one room's voice gateway.
// It doubles as the engine's FrameSink once Ready.
type VoiceConnection interface {
	FrameSink

	// Connect starts the handshake in the background and returns immediately.
	Connect(ctx context.Context)

	// AwaitReady blocks the caller until the connection is Ready, the timeout
	// elapses (JoinTimeoutError), or ctx is done. Timing out cancels only the
	// wait; the handshake keeps running.
	AwaitReady(ctx context.Context, timeout time.Duration) error

	State() ConnState

	// OnError registers a callback for transport failures after Ready.
	// The connection reports; teardown policy belongs to the caller.
	OnError(func(error))

	// Destroy tears the transport down unconditionally. Terminal, idempotent.
	Destroy()
}
