package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxHandleLen is the longest handle the protocol can carry.
const MaxHandleLen = 100

var (
	ErrEmptyHandle   = errors.New("handle must not be empty")
	ErrHandleTooLong = errors.New("handle exceeds maximum length (100 bytes)")
)

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteUint32 writes a 32-bit unsigned integer in big-endian.
func WriteUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadUint32 reads a 32-bit unsigned integer in big-endian.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// WriteHandle writes a handle as a 1-byte length followed by the handle
// bytes, exactly as every handle travels on the wire.
func WriteHandle(w io.Writer, handle string) error {
	if len(handle) == 0 {
		return ErrEmptyHandle
	}
	if len(handle) > MaxHandleLen {
		return ErrHandleTooLong
	}
	if err := WriteUint8(w, uint8(len(handle))); err != nil {
		return err
	}
	_, err := io.WriteString(w, handle)
	return err
}

// ReadHandle reads a 1-byte length-prefixed handle.
func ReadHandle(r io.Reader) (string, error) {
	length, err := ReadUint8(r)
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", ErrEmptyHandle
	}
	if length > MaxHandleLen {
		return "", ErrHandleTooLong
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
