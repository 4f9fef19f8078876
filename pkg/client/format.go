package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	senderColor  = lipgloss.Color("213") // Pink
	errorColor   = lipgloss.Color("196") // Red
	successColor = lipgloss.Color("42")  // Green
	mutedColor   = lipgloss.Color("243") // Gray

	senderStyle = lipgloss.NewStyle().
			Foreground(senderColor).
			Bold(true)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	statsHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")) // Blue
)

// RenderMessage renders one incoming chat line as "sender: text". The
// trailing zero terminator, if the sender included one, is stripped
// for display.
func RenderMessage(sender string, text []byte) string {
	display := strings.TrimRight(string(text), "\x00")
	return senderStyle.Render(sender+":") + " " + messageStyle.Render(display)
}

// RenderError renders an error line.
func RenderError(msg string) string {
	return errorStyle.Render("✗ " + msg)
}

// RenderSuccess renders a confirmation line.
func RenderSuccess(msg string) string {
	return successStyle.Render("✓ " + msg)
}

// RenderInfo renders informational output like list entries.
func RenderInfo(msg string) string {
	return infoStyle.Render(msg)
}

// RenderStats renders the connection statistics block.
func RenderStats(snap StatsSnapshot) string {
	var b strings.Builder
	b.WriteString(statsHeaderStyle.Render("Connection statistics") + "\n")
	fmt.Fprintf(&b, "  Uptime:            %s\n", snap.Uptime.Round(10*time.Millisecond))
	fmt.Fprintf(&b, "  Bytes sent:        %d\n", snap.BytesSent)
	fmt.Fprintf(&b, "  Bytes received:    %d\n", snap.BytesReceived)
	fmt.Fprintf(&b, "  Messages sent:     %d\n", snap.MessagesSent)
	fmt.Fprintf(&b, "  Messages received: %d", snap.MessagesReceived)
	return b.String()
}
