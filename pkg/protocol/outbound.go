package protocol

import "encoding/json"

type chatRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Context string `json:"context"`
}

// EncodeSubmit returns the reference as-is; submissions are not wrapped in JSON.
func EncodeSubmit(reference string) []byte {
	return []byte(reference)
}

// EncodeChat builds a follow-up question carrying the transcript as context.
func EncodeChat(message, context string) ([]byte, error) {
	return json.Marshal(chatRequest{
		Type:    TypeChat,
		Message: message,
		Context: context,
	})
}
