package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WAV framing for 16-bit PCM. Clips round-trip through the blob store as
// playable artifacts; mono is the native form, stereo input is downmixed on
// decode.

// EncodeWAV writes the clip as a 16-bit PCM mono WAV file.
func EncodeWAV(w io.Writer, c Clip) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: encode wav: invalid sample rate %d", c.SampleRate)
	}
	dataLen := uint32(len(c.Data))

	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, uint32(36+dataLen))
	hdr.WriteString("WAVE")

	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&hdr, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&hdr, binary.LittleEndian, uint32(c.SampleRate))
	binary.Write(&hdr, binary.LittleEndian, uint32(c.SampleRate*bytesPerSample))
	binary.Write(&hdr, binary.LittleEndian, uint16(bytesPerSample))
	binary.Write(&hdr, binary.LittleEndian, uint16(16))

	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, dataLen)

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("audio: encode wav header: %w", err)
	}
	if _, err := w.Write(c.Data); err != nil {
		return fmt.Errorf("audio: encode wav data: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit PCM WAV file. Stereo input is downmixed to mono;
// other channel counts or sample formats are rejected.
func DecodeWAV(r io.Reader) (Clip, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("audio: decode wav: not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		data       []byte
	)

	// Walk chunks; tolerate unknown ones (LIST, fact, ...).
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if body+size > len(raw) {
			size = len(raw) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("audio: decode wav: fmt chunk too short")
			}
			format := int(binary.LittleEndian.Uint16(raw[body : body+2]))
			if format != 1 {
				return Clip{}, fmt.Errorf("audio: decode wav: unsupported format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
		case "data":
			data = raw[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if sampleRate == 0 || data == nil {
		return Clip{}, fmt.Errorf("audio: decode wav: missing fmt or data chunk")
	}
	if bits != 16 {
		return Clip{}, fmt.Errorf("audio: decode wav: unsupported bit depth %d (want 16)", bits)
	}

	switch channels {
	case 1:
		// Copy so the clip does not alias the read buffer.
		pcm := make([]byte, len(data))
		copy(pcm, data)
		return Clip{Data: pcm, SampleRate: sampleRate}, nil
	case 2:
		return Clip{Data: StereoToMono(data), SampleRate: sampleRate}, nil
	default:
		return Clip{}, fmt.Errorf("audio: decode wav: unsupported channel count %d", channels)
	}
}
