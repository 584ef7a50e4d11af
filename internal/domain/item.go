package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FrameReader yields encoded audio frames, one per call.
// ReadFrame returns io.EOF once the stream is exhausted.
type FrameReader interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// TrackSource is the streamable-resource handle attached to a track.
// It is opaque to the session machinery; opening may hit the network.
type TrackSource interface {
	Open(ctx context.Context) (FrameReader, error)
}

// Track is what a resolver produces from a free-form request.
type Track struct {
	Title    string
	Duration time.Duration
	Source   TrackSource
}

// ItemHooks are the lifecycle callbacks supplied by the requester.
// OnFinish and OnError are mutually exclusive and fire at most once.
// Hooks run on the playback goroutine; they must return promptly and must
// not call back into the player.
type ItemHooks struct {
	OnStart  func()
	OnFinish func()
	OnError  func(error)
}

// PlaybackItem is one resolved, playable unit. Immutable once created;
// ownership moves resolver -> queue -> engine, then it is discarded.
type PlaybackItem struct {
	id          string
	track       Track
	requestedBy string
	hooks       ItemHooks
}

func NewPlaybackItem(track Track, requestedBy string, hooks ItemHooks) *PlaybackItem {
	return &PlaybackItem{
		id:          uuid.NewString(),
		track:       track,
		requestedBy: requestedBy,
		hooks:       hooks,
	}
}

func (i *PlaybackItem) ID() string              { return i.id }
func (i *PlaybackItem) Title() string           { return i.track.Title }
func (i *PlaybackItem) Duration() time.Duration { return i.track.Duration }
func (i *PlaybackItem) Source() TrackSource     { return i.track.Source }
func (i *PlaybackItem) RequestedBy() string     { return i.requestedBy }

// Start invokes the requester's OnStart hook, if any.
func (i *PlaybackItem) Start() {
	if i.hooks.OnStart != nil {
		i.hooks.OnStart()
	}
}

// Finish invokes the requester's OnFinish hook, if any.
func (i *PlaybackItem) Finish() {
	if i.hooks.OnFinish != nil {
		i.hooks.OnFinish()
	}
}

// Fail invokes the requester's OnError hook, if any.
func (i *PlaybackItem) Fail(err error) {
	if i.hooks.OnError != nil {
		i.hooks.OnError(err)
	}
}
