package client

import (
	"errors"
	"strings"
)

// Rewriter turns plain-English input lines into the structured command
// language. It is a client-side convenience only; nothing on the wire
// depends on it.
type Rewriter struct{}

func NewRewriter() *Rewriter {
	return &Rewriter{}
}

var (
	ErrNoIntent        = errors.New("could not recognize a command; try 'list clients', 'broadcast <message>', 'send message to <handle> <message>', 'status', or 'exit'")
	ErrNoBroadcastText = errors.New("no broadcast message provided; include text after 'broadcast'")
	ErrNoDestination   = errors.New("no destination specified; use 'send message to <handle> <message>'")
	ErrNoMessageText   = errors.New("no message text provided; include text after the destination")
)

// Rewrite converts one natural-language line into a %-command string.
// Matching is case-insensitive; the rewritten text is the lowercased
// form of the input.
func (r *Rewriter) Rewrite(line string) (string, error) {
	cleaned := strings.TrimSpace(strings.ToLower(line))

	switch r.intent(cleaned) {
	case "list":
		return "%L", nil
	case "broadcast":
		return r.rewriteBroadcast(cleaned)
	case "send_message":
		return r.rewriteDirect(cleaned)
	case "status":
		return "%S", nil
	case "exit":
		return "%E", nil
	default:
		return "", ErrNoIntent
	}
}

func (r *Rewriter) intent(line string) string {
	switch {
	case strings.Contains(line, "list") && strings.Contains(line, "client"):
		return "list"
	case strings.Contains(line, "broadcast"):
		return "broadcast"
	case strings.Contains(line, "send") && strings.Contains(line, "message") && containsWord(line, "to"):
		return "send_message"
	case strings.Contains(line, "status"):
		return "status"
	case strings.Contains(line, "exit") || strings.Contains(line, "quit"):
		return "exit"
	default:
		return "unknown"
	}
}

func (r *Rewriter) rewriteBroadcast(line string) (string, error) {
	idx := strings.Index(line, "broadcast")
	body := strings.TrimSpace(line[idx+len("broadcast"):])
	if body == "" {
		return "", ErrNoBroadcastText
	}
	return "%B " + body, nil
}

// rewriteDirect handles "send (a) message to <handle> <text>". The
// word after "to" is the destination; the remainder is the text.
func (r *Rewriter) rewriteDirect(line string) (string, error) {
	tokens := strings.Fields(line)
	toIdx := -1
	for i, tok := range tokens {
		if tok == "to" {
			toIdx = i
			break
		}
	}
	if toIdx < 0 || toIdx+1 >= len(tokens) {
		return "", ErrNoDestination
	}

	dest := tokens[toIdx+1]
	body := strings.Join(tokens[toIdx+2:], " ")
	if body == "" {
		return "", ErrNoMessageText
	}
	return "%M 1 " + dest + " " + body, nil
}

func containsWord(line, word string) bool {
	for _, tok := range strings.Fields(line) {
		if tok == word {
			return true
		}
	}
	return false
}
