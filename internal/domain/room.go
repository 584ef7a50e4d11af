// Package domain contains entities without logic, just meta-data.
package domain

type (
	// RoomID is the opaque identity a playback session is bound to.
	// At most one live session exists per RoomID at any time.
	RoomID string

	// ChannelID is the join target inside a room (the voice channel).
	ChannelID string
)
