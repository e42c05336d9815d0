package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWrapPCMHeader(t *testing.T) {
	samples := []byte{0x01, 0x02, 0x03, 0x04}
	out := WrapPCM(samples)

	if len(out) != 44+len(samples) {
		t.Fatalf("wrapped length = %d", len(out))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: %q %q", out[0:4], out[8:12])
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(samples)) {
		t.Fatalf("riff size = %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Fatalf("audio format = %d, want PCM", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Fatalf("channels = %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 32000 {
		t.Fatalf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[32:34]); got != 2 {
		t.Fatalf("block align = %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Fatalf("bits per sample = %d", got)
	}
	if string(out[36:40]) != "data" {
		t.Fatalf("missing data chunk: %q", out[36:40])
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(samples)) {
		t.Fatalf("data size = %d", got)
	}
	if !bytes.Equal(out[44:], samples) {
		t.Fatalf("payload changed: %v", out[44:])
	}
}

func TestWrapPCMEmptyPayload(t *testing.T) {
	out := WrapPCM(nil)
	if len(out) != 44 {
		t.Fatalf("empty payload should yield a bare header, got %d bytes", len(out))
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 0 {
		t.Fatalf("data size = %d", got)
	}
}
