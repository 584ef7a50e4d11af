package resolver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/variouspotatoes/discord-music-player/internal/domain"
)

// Frames larger than this are not opus audio; treat them as stream corruption.
const maxFrameSize = 8 << 10

// frameStream decodes the resolver's wire format: a sequence of opus frames,
// each prefixed with a uint16 little-endian length. io.EOF exactly at a frame
// boundary is a clean end of track; anywhere else it is a decode error.
type frameStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func newFrameStream(body io.ReadCloser) domain.FrameReader {
	return &frameStream{body: body, r: bufio.NewReader(body)}
}

func (f *frameStream) ReadFrame() ([]byte, error) {
	var size uint16
	if err := binary.Read(f.r, binary.LittleEndian, &size); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("frame header: %w", err)
	}
	if size == 0 || size > maxFrameSize {
		return nil, fmt.Errorf("bad frame size %d", size)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(f.r, frame); err != nil {
		return nil, fmt.Errorf("frame body: %w", err)
	}
	return frame, nil
}

func (f *frameStream) Close() error {
	return f.body.Close()
}
