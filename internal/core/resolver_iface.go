package core

import (
	"context"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// Resolver turns a free-form playback request into a streamable track.
// Failures are *domain.ResolutionError.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*domain.Track, error)
}
