package chat

import (
	"fmt"

	"youwin-client/internal/entity"
	"youwin-client/pkg/protocol"
)

// Session is the ordered, append-only chat transcript. Responses carry no
// request id, so adjacency relies on the server answering in order.
type Session struct {
	messages []entity.ChatMessage
}

func NewSession() *Session {
	return &Session{}
}

// Ask records the question and returns the outbound frame carrying context.
// Nothing is recorded if encoding fails.
func (s *Session) Ask(question, context string) ([]byte, error) {
	payload, err := protocol.EncodeChat(question, context)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}
	s.messages = append(s.messages, entity.ChatMessage{Origin: entity.OriginUser, Text: question})
	return payload, nil
}

func (s *Session) Receive(text string) {
	s.messages = append(s.messages, entity.ChatMessage{Origin: entity.OriginAssistant, Text: text})
}

// History returns a copy of the messages in arrival order.
func (s *Session) History() []entity.ChatMessage {
	out := make([]entity.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int {
	return len(s.messages)
}

// Reset discards the history. Only an explicit caller request does this.
func (s *Session) Reset() {
	s.messages = nil
}
