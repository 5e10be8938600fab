package entity

// Origin identifies who produced a chat message.
type Origin string

const (
	OriginUser      Origin = "user"
	OriginAssistant Origin = "assistant"
)

type ChatMessage struct {
	Origin Origin
	Text   string
}
