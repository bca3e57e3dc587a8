package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ///////////////////////////////////////////////
// Wire Format
// ///////////////////////////////////////////////

// Opcode is the first header word of an IPC frame.
type Opcode uint32

// Opcodes understood by the Discord client. OpPing must be answered with an
// OpPong carrying the same payload.
const (
	OpHandshake Opcode = iota
	OpFrame
	OpClose
	OpPing
	OpPong
)

var opcodeNames = [...]string{"HANDSHAKE", "FRAME", "CLOSE", "PING", "PONG"}

func (o Opcode) String() string {
	if int(o) < len(opcodeNames) {
		return opcodeNames[o]
	}
	return fmt.Sprintf("OPCODE(%d)", uint32(o))
}

const (
	// headerLen covers the opcode and payload length, both little-endian
	// uint32.
	headerLen = 8

	// MaxPayloadSize bounds a frame payload in either direction.
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is how many numbered sockets Discord may listen on.
	maxIPCSlots = 10
)

var (
	// ErrPayloadTooLarge is returned for payloads over MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrIPCNotAvailable means no Discord IPC endpoint accepted a connection.
	ErrIPCNotAvailable = errors.New("discord IPC not available")
)

// EncodeFrame returns header and payload as one buffer, ready for a single
// Write.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, 0, headerLen+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(op))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	return append(buf, payload...), nil
}

// DecodeFrame reads one frame from r. A peer that closes between frames
// yields a bare io.EOF; a frame cut short yields a wrapped error.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}

	op := Opcode(binary.LittleEndian.Uint32(hdr[:4]))
	n := binary.LittleEndian.Uint32(hdr[4:])
	if n > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %s frame declares %d bytes", ErrPayloadTooLarge, op, n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read %s payload: %w", op, err)
	}
	return op, payload, nil
}
