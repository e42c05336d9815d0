package audio

import "encoding/binary"

// Raw PCM uploads arrive as 16-bit little-endian mono samples at 16 kHz.
const (
	pcmSampleRate    = 16000
	pcmChannels      = 1
	pcmBitsPerSample = 16
)

// WrapPCM wraps raw 16-bit/16 kHz/mono PCM samples in a RIFF/WAV header
// so downstream tools can identify the stream. The payload is not
// re-encoded.
func WrapPCM(data []byte) []byte {
	const headerSize = 44
	blockAlign := pcmChannels * pcmBitsPerSample / 8
	byteRate := pcmSampleRate * blockAlign

	out := make([]byte, headerSize, headerSize+len(data))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(data)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], pcmChannels)
	binary.LittleEndian.PutUint32(out[24:28], pcmSampleRate)
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], pcmBitsPerSample)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(data)))
	return append(out, data...)
}
