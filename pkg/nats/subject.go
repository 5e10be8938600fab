package nats

const (
	StreamName    = "YOUWIN"
	SubjectPrefix = "youwin."
	SubjectAll    = "youwin.>"
)

func Subject(eventType string) string {
	return SubjectPrefix + eventType
}
