package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	// HeaderSize is the fixed PDU header size: 2-byte total length + 1-byte flag.
	HeaderSize = 3

	// MaxFrameSize is the maximum allowed PDU size including the header.
	// It matches the 1 KB receive buffer every endpoint carries.
	MaxFrameSize = 1024

	// MaxPayloadSize is the maximum payload a single PDU may carry.
	MaxPayloadSize = MaxFrameSize - HeaderSize
)

var (
	ErrPeerClosed         = errors.New("peer closed connection")
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size (1 KB)")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Frame is one protocol data unit: a flag plus an opaque payload.
// On the wire it is a 3-byte header (big-endian total length including the
// header, then the flag) followed by the payload octets.
type Frame struct {
	Flag    uint8
	Payload []byte
}

// WireSize returns the number of octets the frame occupies on the wire.
func (f *Frame) WireSize() int {
	return HeaderSize + len(f.Payload)
}

// EncodeFrame writes one whole frame to the writer.
func EncodeFrame(w io.Writer, f *Frame) error {
	total := HeaderSize + len(f.Payload)
	if total > MaxFrameSize {
		return ErrFrameTooLarge
	}

	// Assemble header and payload into a single buffer so the frame goes
	// out in one write call.
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], uint16(total))
	buf[2] = f.Flag
	copy(buf[HeaderSize:], f.Payload)

	_, err := w.Write(buf)
	if err != nil {
		return mapTransportErr(err)
	}
	return nil
}

// DecodeFrame reads exactly one frame from the reader. A clean EOF at the
// header boundary yields ErrPeerClosed; so does a short read anywhere
// mid-frame, since there is no resynchronizing after partial data.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, mapTransportErr(err)
	}

	total := int(binary.BigEndian.Uint16(header[0:2]))
	if total < HeaderSize {
		return nil, ErrInvalidFrameLength
	}
	if total > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	f := &Frame{Flag: header[2]}
	if payloadLen := total - HeaderSize; payloadLen > 0 {
		f.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, f.Payload); err != nil {
			return nil, mapTransportErr(err)
		}
	} else {
		f.Payload = []byte{}
	}

	return f, nil
}

// EncodeMessage encodes a frame with the given flag and payload to a byte
// slice.
func EncodeMessage(flag uint8, payload []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := EncodeFrame(buf, &Frame{Flag: flag, Payload: payload}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMessage decodes a frame from a byte slice.
func DecodeMessage(data []byte) (*Frame, error) {
	return DecodeFrame(bytes.NewReader(data))
}

// mapTransportErr folds the EOF conditions into ErrPeerClosed and leaves
// genuine transport failures alone.
func mapTransportErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrPeerClosed
	}
	return err
}
