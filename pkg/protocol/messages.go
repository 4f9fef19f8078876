package protocol

import (
	"bytes"
	"errors"
	"io"
)

// MaxTextSize is the most text octets one chat PDU may carry, including
// whatever terminator the sending client appends. Senders segment longer
// text into multiple PDUs; the server never inspects the text.
const MaxTextSize = 200

// MaxDestinations is the wire limit on destinations in one DIRECT PDU.
const MaxDestinations = 255

var (
	ErrTruncatedPayload    = errors.New("payload truncated")
	ErrTrailingBytes       = errors.New("payload has trailing bytes")
	ErrNoDestinations      = errors.New("direct message needs at least one destination")
	ErrTooManyDestinations = errors.New("too many destinations (max 255)")
)

// decodeErr folds reader exhaustion into ErrTruncatedPayload so callers see
// one error kind for every length inconsistency.
func decodeErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncatedPayload
	}
	return err
}

// RegisterMessage (flag 1) carries the handle a client wants to own.
type RegisterMessage struct {
	Handle string
}

func (m *RegisterMessage) EncodeTo(w io.Writer) error {
	return WriteHandle(w, m.Handle)
}

func (m *RegisterMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RegisterMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	handle, err := ReadHandle(buf)
	if err != nil {
		return decodeErr(err)
	}
	if buf.Len() != 0 {
		return ErrTrailingBytes
	}
	m.Handle = handle
	return nil
}

// BroadcastMessage (flag 4) is a sender handle followed by opaque text.
// The text travels exactly as the sender framed it, terminator included.
type BroadcastMessage struct {
	Sender string
	Text   []byte
}

func (m *BroadcastMessage) EncodeTo(w io.Writer) error {
	if err := WriteHandle(w, m.Sender); err != nil {
		return err
	}
	if len(m.Text) > 0 {
		_, err := w.Write(m.Text)
		return err
	}
	return nil
}

func (m *BroadcastMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *BroadcastMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	sender, err := ReadHandle(buf)
	if err != nil {
		return decodeErr(err)
	}
	text := make([]byte, buf.Len())
	if len(text) > 0 {
		if _, err := io.ReadFull(buf, text); err != nil {
			return decodeErr(err)
		}
	}
	m.Sender = sender
	m.Text = text
	return nil
}

// DirectMessage (flag 5) is a sender handle, a destination list, and opaque
// trailing text. The server forwards the whole payload unchanged to each
// destination that exists.
type DirectMessage struct {
	Sender       string
	Destinations []string
	Text         []byte
}

func (m *DirectMessage) EncodeTo(w io.Writer) error {
	if len(m.Destinations) == 0 {
		return ErrNoDestinations
	}
	if len(m.Destinations) > MaxDestinations {
		return ErrTooManyDestinations
	}
	if err := WriteHandle(w, m.Sender); err != nil {
		return err
	}
	if err := WriteUint8(w, uint8(len(m.Destinations))); err != nil {
		return err
	}
	for _, dest := range m.Destinations {
		if err := WriteHandle(w, dest); err != nil {
			return err
		}
	}
	if len(m.Text) > 0 {
		_, err := w.Write(m.Text)
		return err
	}
	return nil
}

func (m *DirectMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *DirectMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	sender, err := ReadHandle(buf)
	if err != nil {
		return decodeErr(err)
	}
	count, err := ReadUint8(buf)
	if err != nil {
		return decodeErr(err)
	}
	if count == 0 {
		return ErrNoDestinations
	}
	dests := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		dest, err := ReadHandle(buf)
		if err != nil {
			return decodeErr(err)
		}
		dests = append(dests, dest)
	}
	text := make([]byte, buf.Len())
	if len(text) > 0 {
		if _, err := io.ReadFull(buf, text); err != nil {
			return decodeErr(err)
		}
	}
	m.Sender = sender
	m.Destinations = dests
	m.Text = text
	return nil
}

// DestErrorMessage (flag 7) names a destination that was not registered.
type DestErrorMessage struct {
	Handle string
}

func (m *DestErrorMessage) EncodeTo(w io.Writer) error {
	return WriteHandle(w, m.Handle)
}

func (m *DestErrorMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *DestErrorMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	handle, err := ReadHandle(buf)
	if err != nil {
		return decodeErr(err)
	}
	if buf.Len() != 0 {
		return ErrTrailingBytes
	}
	m.Handle = handle
	return nil
}

// ListCountMessage (flag 0x0B) opens a list response with the number of
// registered handles at the snapshot instant.
type ListCountMessage struct {
	Count uint32
}

func (m *ListCountMessage) EncodeTo(w io.Writer) error {
	return WriteUint32(w, m.Count)
}

func (m *ListCountMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ListCountMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	count, err := ReadUint32(buf)
	if err != nil {
		return decodeErr(err)
	}
	if buf.Len() != 0 {
		return ErrTrailingBytes
	}
	m.Count = count
	return nil
}

// ListEntryMessage (flag 0x0C) carries one registered handle.
type ListEntryMessage struct {
	Handle string
}

func (m *ListEntryMessage) EncodeTo(w io.Writer) error {
	return WriteHandle(w, m.Handle)
}

func (m *ListEntryMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ListEntryMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	handle, err := ReadHandle(buf)
	if err != nil {
		return decodeErr(err)
	}
	if buf.Len() != 0 {
		return ErrTrailingBytes
	}
	m.Handle = handle
	return nil
}
