package testserver

import (
	"encoding/json"
)

// Frame encodes v as a JSON text frame. It panics on values json cannot encode.
func Frame(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

func Success(transcript, summary string) []byte {
	m := map[string]interface{}{"status": "success"}
	if transcript != "" {
		m["transcript"] = transcript
	}
	if summary != "" {
		m["summary"] = summary
	}
	return Frame(m)
}

func Failure(message string) []byte {
	m := map[string]interface{}{"status": "error"}
	if message != "" {
		m["message"] = message
	}
	return Frame(m)
}

func ChatAnswer(message string) []byte {
	return Frame(map[string]interface{}{"status": "success", "type": "chat_response", "message": message})
}

// Echo behaves like the real server with deterministic content: a bare
// reference yields a transcript and summary derived from it, a chat request
// yields an answer quoting the question.
func Echo(msg []byte) [][]byte {
	var req struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(msg, &req); err == nil {
		if req.Type == "chat" {
			return [][]byte{ChatAnswer("Answer to: " + req.Message)}
		}
		return nil
	}

	ref := string(msg)
	return [][]byte{Success("Transcript of "+ref, "Summary of "+ref)}
}
