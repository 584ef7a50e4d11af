package voice

import (
	"net"
	"sync"

	"github.com/pion/rtp"
)

// Opus at 48kHz: 960 samples per 20ms frame.
const (
	opusPayloadType = 120
	samplesPerFrame = 960
)

// rtpSender packetizes opus frames and ships them over UDP to the media
// endpoint announced in the gateway's ready message.
type rtpSender struct {
	mu   sync.Mutex
	conn *net.UDPConn
	ssrc uint32
	seq  uint16
	ts   uint32
}

func newRTPSender(addr string, ssrc uint32) (*rtpSender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}
	return &rtpSender{conn: conn, ssrc: ssrc}, nil
}

func (s *rtpSender) send(opus []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return net.ErrClosed
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: opus,
	}
	s.seq++
	s.ts += samplesPerFrame

	buf, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.Write(buf)
	return err
}

func (s *rtpSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}
