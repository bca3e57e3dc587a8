package discord

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func mustEncodeFrame(t *testing.T, opcode Opcode, payload []byte) []byte {
	t.Helper()
	frame, err := EncodeFrame(opcode, payload)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	return frame
}

// oneByteReader returns data one byte at a time, simulating partial reads.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

// ///////////////////////////////////////////////
// EncodeFrame
// ///////////////////////////////////////////////

func TestEncodeFrame_Layout(t *testing.T) {
	payload := []byte(`{"v":1,"client_id":"1089"}`)
	frame := mustEncodeFrame(t, OpHandshake, payload)

	if len(frame) != headerLen+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), headerLen+len(payload))
	}
	if op := Opcode(binary.LittleEndian.Uint32(frame[0:4])); op != OpHandshake {
		t.Errorf("opcode = %v, want %v", op, OpHandshake)
	}
	if n := binary.LittleEndian.Uint32(frame[4:8]); n != uint32(len(payload)) {
		t.Errorf("length = %d, want %d", n, len(payload))
	}
	if !bytes.Equal(frame[headerLen:], payload) {
		t.Errorf("payload = %q, want %q", frame[headerLen:], payload)
	}
}

func TestEncodeFrame_SizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"exact max", MaxPayloadSize, false},
		{"one over", MaxPayloadSize + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeFrame(OpFrame, make([]byte, tt.size))
			if tt.wantErr && !errors.Is(err, ErrPayloadTooLarge) {
				t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DecodeFrame
// ///////////////////////////////////////////////

func TestDecodeFrame_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		opcode  Opcode
		payload []byte
	}{
		{"handshake", OpHandshake, []byte(`{"v":1,"client_id":"1089"}`)},
		{"set activity", OpFrame, []byte(`{"cmd":"SET_ACTIVITY","args":{"pid":1}}`)},
		{"close", OpClose, []byte(`{"code":1000,"message":"bye"}`)},
		{"ping", OpPing, []byte(`{"n":7}`)},
		{"pong", OpPong, []byte(`{"n":7}`)},
		{"empty", OpFrame, []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := mustEncodeFrame(t, tt.opcode, tt.payload)
			op, payload, err := DecodeFrame(&oneByteReader{data: frame})
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if op != tt.opcode {
				t.Errorf("opcode = %v, want %v", op, tt.opcode)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("payload = %q, want %q", payload, tt.payload)
			}
		})
	}
}

func TestDecodeFrame_Sequential(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(mustEncodeFrame(t, OpFrame, []byte(`{"evt":"READY"}`)))
	buf.Write(mustEncodeFrame(t, OpPing, []byte(`{}`)))

	if op, _, err := DecodeFrame(&buf); err != nil || op != OpFrame {
		t.Fatalf("first frame: op=%v err=%v", op, err)
	}
	if op, _, err := DecodeFrame(&buf); err != nil || op != OpPing {
		t.Fatalf("second frame: op=%v err=%v", op, err)
	}
	if _, _, err := DecodeFrame(&buf); err != io.EOF {
		t.Fatalf("after last frame err = %v, want io.EOF", err)
	}
}

func TestDecodeFrame_Errors(t *testing.T) {
	oversized := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(oversized[0:4], uint32(OpFrame))
	binary.LittleEndian.PutUint32(oversized[4:8], MaxPayloadSize+1)

	truncated := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(truncated[0:4], uint32(OpFrame))
	binary.LittleEndian.PutUint32(truncated[4:8], 100)
	truncated = append(truncated, "short"...)

	tests := []struct {
		name   string
		data   []byte
		target error
	}{
		{"oversized length", oversized, ErrPayloadTooLarge},
		{"torn header", []byte{1, 0, 0, 0}, io.ErrUnexpectedEOF},
		{"torn payload", truncated, io.ErrUnexpectedEOF},
		{"clean eof", nil, io.EOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFrame(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestOpcodeString(t *testing.T) {
	tests := map[Opcode]string{
		OpHandshake: "HANDSHAKE",
		OpFrame:     "FRAME",
		OpClose:     "CLOSE",
		OpPing:      "PING",
		OpPong:      "PONG",
		Opcode(9):   "OPCODE(9)",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("Opcode(%d).String() = %q, want %q", uint32(op), got, want)
		}
	}
}
