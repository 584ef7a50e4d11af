package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// ConnectionFactory builds the voice transport for a room. The registry calls
// it exactly once per live session.
type ConnectionFactory func(room domain.RoomID, channel domain.ChannelID) core.VoiceConnection

// EngineFactory builds the playback engine over a frame sink.
type EngineFactory func(sink core.FrameSink) core.PlaybackEngine

// Registry maps room identity to at most one live session. It is the only
// state shared across rooms.
type Registry struct {
	newConn   ConnectionFactory
	newEngine EngineFactory
	opts      SessionOptions

	mu       sync.RWMutex
	sessions map[domain.RoomID]*Session
}

func NewRegistry(newConn ConnectionFactory, newEngine EngineFactory, opts SessionOptions) *Registry {
	return &Registry{
		newConn:   newConn,
		newEngine: newEngine,
		opts:      opts,
		sessions:  make(map[domain.RoomID]*Session),
	}
}

// GetOrCreate returns the room's live session, building one when absent.
// Check-then-create is atomic: two racing calls for an unseen room get the
// same instance.
func (r *Registry) GetOrCreate(room domain.RoomID, channel domain.ChannelID) *Session {
	r.mu.RLock()
	s, ok := r.sessions[room]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok = r.sessions[room]; ok {
		return s
	}

	conn := r.newConn(room, channel)
	opts := r.opts
	opts.OnClose = r.remove
	s = NewSession(room, conn, r.newEngine(conn), opts)
	r.sessions[room] = s
	r.opts.Metrics.SessionOpened()
	log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("session created")
	return s
}

// Get returns the room's session without creating one.
func (r *Registry) Get(room domain.RoomID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[room]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown tears down every live session. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()
	for _, s := range sessions {
		s.Leave()
	}
}

// remove drops the entry only if it still maps to the closing session, so a
// fresh session created for the same room is never evicted by a late close.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Room()]; ok && cur == s {
		delete(r.sessions, s.Room())
		log.Info().Str("module", "app.registry").Str("room", string(s.Room())).Msg("session removed")
	}
}
