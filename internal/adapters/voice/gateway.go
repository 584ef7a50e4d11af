// Package voice implements the transport connection to a room's voice
// gateway: a websocket signalling leg for the join handshake and heartbeats,
// and an RTP-over-UDP leg for audio frames.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/variouspotatoes/discord-music-player/internal/core"
	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

const (
	writeWait        = 5 * time.Second
	defaultHeartbeat = 15 * time.Second
)

type gatewayMessage struct {
	Op      string `json:"op"`
	Room    string `json:"room,omitempty"`
	Channel string `json:"channel,omitempty"`
	SSRC    uint32 `json:"ssrc,omitempty"`
	IP      string `json:"ip,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// Gateway implements core.VoiceConnection. The handshake runs in the
// background; AwaitReady gives callers a bounded wait whose expiry abandons
// the wait, never the attempt.
type Gateway struct {
	url       string
	room      domain.RoomID
	channel   domain.ChannelID
	heartbeat time.Duration

	ready chan struct{}
	dead  chan struct{}

	mu      sync.Mutex
	state   core.ConnState
	ws      *websocket.Conn
	sender  *rtpSender
	onErr   func(error)
	dialErr error
}

// NewGateway prepares a connection in Signalling state. Nothing happens on
// the wire until Connect.
func NewGateway(url string, room domain.RoomID, channel domain.ChannelID, heartbeat time.Duration) *Gateway {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Gateway{
		url:       url,
		room:      room,
		channel:   channel,
		heartbeat: heartbeat,
		ready:     make(chan struct{}),
		dead:      make(chan struct{}),
		state:     core.ConnSignalling,
	}
}

func (g *Gateway) State() core.ConnState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) OnError(fn func(error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onErr = fn
}

// Connect starts the handshake and returns immediately.
func (g *Gateway) Connect(ctx context.Context) {
	g.mu.Lock()
	if g.state != core.ConnSignalling {
		g.mu.Unlock()
		return
	}
	g.state = core.ConnConnecting
	g.mu.Unlock()
	go g.run(ctx)
}

func (g *Gateway) run(ctx context.Context) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, g.url, nil)
	if err != nil {
		g.fail(fmt.Errorf("dial voice gateway: %w", err))
		return
	}

	identify := gatewayMessage{Op: "identify", Room: string(g.room), Channel: string(g.channel)}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(identify); err != nil {
		_ = ws.Close()
		g.fail(fmt.Errorf("identify: %w", err))
		return
	}

	// The gateway may sit on the join for a long time; the read is unbounded
	// on purpose. Callers protect themselves with AwaitReady.
	var msg gatewayMessage
	for msg.Op != "ready" {
		if err := ws.ReadJSON(&msg); err != nil {
			_ = ws.Close()
			g.fail(fmt.Errorf("await ready: %w", err))
			return
		}
	}

	sender, err := newRTPSender(fmt.Sprintf("%s:%d", msg.IP, msg.Port), msg.SSRC)
	if err != nil {
		_ = ws.Close()
		g.fail(fmt.Errorf("open media socket: %w", err))
		return
	}

	g.mu.Lock()
	if g.state == core.ConnDestroyed {
		g.mu.Unlock()
		sender.close()
		_ = ws.Close()
		return
	}
	g.ws = ws
	g.sender = sender
	g.state = core.ConnReady
	g.mu.Unlock()
	close(g.ready)
	log.Info().Str("module", "voice").Str("room", string(g.room)).Uint32("ssrc", msg.SSRC).Msg("voice gateway ready")

	go g.heartbeatPump(ctx, ws)
	g.readPump(ws)
}

// readPump keeps draining control messages after Ready. A read error on a
// live connection is a transport failure.
func (g *Gateway) readPump(ws *websocket.Conn) {
	for {
		var msg gatewayMessage
		if err := ws.ReadJSON(&msg); err != nil {
			g.fail(fmt.Errorf("gateway read: %w", err))
			return
		}
	}
}

func (g *Gateway) heartbeatPump(ctx context.Context, ws *websocket.Conn) {
	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(gatewayMessage{Op: "heartbeat"}); err != nil {
			g.fail(fmt.Errorf("heartbeat: %w", err))
			return
		}
	}
}

// AwaitReady blocks until Ready, a dead handshake, the timeout, or ctx.
func (g *Gateway) AwaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.ready:
		return nil
	case <-g.dead:
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.dialErr
	case <-timer.C:
		return &domain.JoinTimeoutError{Room: g.room, Wait: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteFrame sends one opus frame over the media leg.
func (g *Gateway) WriteFrame(frame []byte) error {
	g.mu.Lock()
	if g.state == core.ConnDestroyed {
		g.mu.Unlock()
		return domain.ErrConnectionDestroyed
	}
	if g.state != core.ConnReady {
		g.mu.Unlock()
		return domain.ErrConnectionNotReady
	}
	sender := g.sender
	g.mu.Unlock()
	return sender.send(frame)
}

// Destroy tears the transport down unconditionally. Idempotent.
func (g *Gateway) Destroy() {
	g.mu.Lock()
	if g.state == core.ConnDestroyed {
		g.mu.Unlock()
		return
	}
	g.state = core.ConnDestroyed
	ws := g.ws
	sender := g.sender
	g.ws = nil
	g.sender = nil
	g.mu.Unlock()

	if ws != nil {
		_ = ws.Close()
	}
	if sender != nil {
		sender.close()
	}
	log.Info().Str("module", "voice").Str("room", string(g.room)).Msg("voice connection destroyed")
}

// fail moves to Disconnected and reports the terminal error through OnError,
// so the owning session can tear down. Before Ready it also unblocks
// AwaitReady callers with the cause. Timeouts are not failures; they never
// come through here and the handshake keeps running.
func (g *Gateway) fail(err error) {
	g.mu.Lock()
	if g.state == core.ConnDestroyed || g.state == core.ConnDisconnected {
		g.mu.Unlock()
		return
	}
	wasReady := g.state == core.ConnReady
	g.state = core.ConnDisconnected
	cb := g.onErr
	if !wasReady {
		g.dialErr = err
		close(g.dead)
	}
	g.mu.Unlock()

	log.Warn().Err(err).Str("module", "voice").Str("room", string(g.room)).Msg("voice gateway failure")
	if cb != nil {
		cb(err)
	}
}
