package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"youwin-client/internal/entity"
	"youwin-client/pkg/events"
	"youwin-client/pkg/session"

	"github.com/fatih/color"
)

var (
	headingColor   = color.New(color.FgCyan, color.Bold)
	errorColor     = color.New(color.FgRed)
	userColor      = color.New(color.FgYellow)
	assistantColor = color.New(color.FgGreen)
	dimColor       = color.New(color.Faint)
)

// lockedWriter serializes writes from the event printer and the prompt loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func renderView(w io.Writer, v session.View) {
	if v.Error != "" {
		errorColor.Fprintf(w, "Error: %s\n", v.Error)
		return
	}
	if v.Transcript != "" {
		headingColor.Fprintln(w, "Transcript")
		fmt.Fprintln(w, v.Transcript)
	}
	if v.Summary != "" {
		if v.Transcript != "" {
			fmt.Fprintln(w)
		}
		headingColor.Fprintln(w, "Summary")
		fmt.Fprintln(w, v.Summary)
	}
	if v.Transcript == "" && v.Summary == "" {
		dimColor.Fprintln(w, "Nothing to show yet.")
	}
}

func renderStatus(w io.Writer, v session.View) {
	ref := v.Reference
	if ref == "" {
		ref = "-"
	}
	fmt.Fprintf(w, "reference:  %s\n", ref)
	fmt.Fprintf(w, "phase:      %s\n", v.Phase)
	fmt.Fprintf(w, "connection: %s\n", v.Connection)
	fmt.Fprintf(w, "chat ready: %t\n", v.ChatReady)
	fmt.Fprintf(w, "messages:   %d\n", len(v.History))
	if v.Error != "" {
		errorColor.Fprintf(w, "error:      %s\n", v.Error)
	}
}

func renderMessage(w io.Writer, m entity.ChatMessage) {
	switch m.Origin {
	case entity.OriginUser:
		userColor.Fprint(w, "you> ")
	default:
		assistantColor.Fprint(w, "bot> ")
	}
	fmt.Fprintln(w, m.Text)
}

func renderHistory(w io.Writer, history []entity.ChatMessage) {
	if len(history) == 0 {
		dimColor.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range history {
		renderMessage(w, m)
	}
}

// renderEvent prints one status line for events worth showing live. Chat and
// result content is printed from the view instead.
func renderEvent(w io.Writer, ev events.Event) {
	p := ev.Payload()
	switch ev.EventType() {
	case session.EventPhaseChanged:
		dimColor.Fprintf(w, "[phase] %v -> %v\n", p["from"], p["to"])
	case session.EventConnectionChanged:
		dimColor.Fprintf(w, "[connection] %v\n", p["to"])
	case session.EventSessionError:
		errorColor.Fprintf(w, "[%v error] %v\n", p["category"], p["message"])
	case session.EventCacheCleared:
		dimColor.Fprintln(w, "[cache] cleared")
	}
}

func renderWatchedEvent(w io.Writer, ev events.Event) {
	var parts []string
	for k, v := range ev.Payload() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	fmt.Fprintf(w, "%s %s %s\n",
		dimColor.Sprint(ev.Timestamp().Format(time.RFC3339)),
		headingColor.Sprint(ev.EventType()),
		strings.Join(parts, " "))
}
