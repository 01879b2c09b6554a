package netx

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"cardmesh/internal/protocol"
)

const maxFrameSize = 1 << 20

// Marshal is the message-oriented encoding used by transports that frame
// for us (websocket, nats).
func Marshal(msg protocol.NetMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func Unmarshal(b []byte) (protocol.NetMessage, error) {
	var msg protocol.NetMessage
	if len(b) > maxFrameSize {
		return msg, fmt.Errorf("frame too large: %d", len(b))
	}
	err := json.Unmarshal(b, &msg)
	return msg, err
}

// Encode produces a stream frame: [u32 big-endian len][json bytes].
func Encode(msg protocol.NetMessage) ([]byte, error) {
	b, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(frame, uint32(len(b)))
	copy(frame[4:], b)
	return frame, nil
}

func Decode(r *bufio.Reader) (protocol.NetMessage, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return protocol.NetMessage{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return protocol.NetMessage{}, fmt.Errorf("frame too large: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return protocol.NetMessage{}, err
	}
	return Unmarshal(buf)
}
