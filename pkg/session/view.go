package session

import (
	"youwin-client/internal/entity"
	"youwin-client/pkg/connection"
)

// View is a snapshot of everything a front end renders.
type View struct {
	Reference  string
	Phase      Phase
	Processing bool
	Transcript string
	Summary    string
	Error      string
	// ErrorCount grows by one for every error surfaced, repeated messages
	// included.
	ErrorCount int
	ChatReady  bool
	Connection connection.State
	History    []entity.ChatMessage
}

// Connected reports whether the transport is open.
func (v View) Connected() bool {
	return v.Connection == connection.StateOpen
}
