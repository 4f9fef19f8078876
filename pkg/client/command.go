package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/derekjr/chatrelay/pkg/protocol"
)

// MaxCommandDestinations caps the destination count accepted on the
// command line. The wire format allows up to 255; the interactive
// surface keeps the original single-digit limit.
const MaxCommandDestinations = 9

// CommandKind identifies a parsed user command.
type CommandKind int

const (
	CmdDirect CommandKind = iota
	CmdBroadcast
	CmdList
	CmdStatus
	CmdExit
)

// Command is the structured form of one input line.
type Command struct {
	Kind         CommandKind
	Destinations []string
	Text         string
}

var (
	ErrUnknownCommand    = errors.New("unknown command")
	ErrBadDestCount      = fmt.Errorf("destination count must be between 1 and %d", MaxCommandDestinations)
	ErrMissingDestCount  = errors.New("missing destination count")
	ErrMissingDest       = errors.New("fewer destination handles than the declared count")
	ErrInvalidHandleForm = errors.New("handle must start with a letter and be at most 100 bytes")
)

// ParseCommand parses one input line into a Command. Command words are
// case-insensitive; everything after the structured prefix is the
// message text, taken verbatim.
func ParseCommand(line string) (*Command, error) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 || trimmed[0] != '%' {
		return nil, ErrUnknownCommand
	}

	verb := strings.ToUpper(trimmed[:2])
	rest := strings.TrimLeft(trimmed[2:], " \t")

	switch verb {
	case "%M":
		return parseDirect(rest)
	case "%B":
		return &Command{Kind: CmdBroadcast, Text: rest}, nil
	case "%L":
		return &Command{Kind: CmdList}, nil
	case "%S":
		return &Command{Kind: CmdStatus}, nil
	case "%E":
		return &Command{Kind: CmdExit}, nil
	default:
		return nil, ErrUnknownCommand
	}
}

// parseDirect parses "<n> <h1> ... <hn> <text>".
func parseDirect(rest string) (*Command, error) {
	countTok, rest := nextToken(rest)
	if countTok == "" {
		return nil, ErrMissingDestCount
	}
	count, err := strconv.Atoi(countTok)
	if err != nil || count < 1 || count > MaxCommandDestinations {
		return nil, ErrBadDestCount
	}

	dests := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var handle string
		handle, rest = nextToken(rest)
		if handle == "" {
			return nil, ErrMissingDest
		}
		dests = append(dests, handle)
	}

	return &Command{Kind: CmdDirect, Destinations: dests, Text: rest}, nil
}

// nextToken splits off the next space-delimited token and returns it
// with the remainder (leading separators stripped).
func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeft(s[idx:], " \t")
}

// ValidateHandle enforces the client-side handle rules before a
// registration is attempted.
func ValidateHandle(handle string) error {
	if handle == "" || len(handle) > protocol.MaxHandleLen {
		return ErrInvalidHandleForm
	}
	first := handle[0]
	if (first < 'a' || first > 'z') && (first < 'A' || first > 'Z') {
		return ErrInvalidHandleForm
	}
	return nil
}

// maxSegmentText leaves room for the zero terminator within the
// per-PDU text limit.
const maxSegmentText = protocol.MaxTextSize - 1

// segmentText splits message text into wire segments of at most
// MaxTextSize octets each, terminator included. Empty text still
// yields one segment holding just the terminator.
func segmentText(text string) [][]byte {
	if text == "" {
		return [][]byte{{0}}
	}

	var segments [][]byte
	for pos := 0; pos < len(text); pos += maxSegmentText {
		end := pos + maxSegmentText
		if end > len(text) {
			end = len(text)
		}
		seg := make([]byte, 0, end-pos+1)
		seg = append(seg, text[pos:end]...)
		seg = append(seg, 0)
		segments = append(segments, seg)
	}
	return segments
}
