package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies an inbound frame.
type Kind int

const (
	KindConnectedAck Kind = iota
	KindChatResponse
	KindProcessingResult
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindConnectedAck:
		return "connected_ack"
	case KindChatResponse:
		return "chat_response"
	case KindProcessingResult:
		return "processing_result"
	default:
		return "malformed"
	}
}

const (
	StatusConnected = "connected"
	StatusSuccess   = "success"
	StatusError     = "error"

	TypeChat         = "chat"
	TypeChatResponse = "chat_response"
)

var (
	ErrNotJSON           = errors.New("frame is not a JSON object")
	ErrUnrecognizedFrame = errors.New("frame matches no known shape")
)

// Frame is one decoded inbound message. Exactly one concrete type is returned
// by Decode for every input.
type Frame interface {
	Kind() Kind
}

type ConnectedAck struct {
	Message string
}

type ChatResponse struct {
	Message string
}

// ProcessingResult is a terminal frame for a submission. On success either
// artifact may be missing; on error Message carries the server text, if any.
type ProcessingResult struct {
	Success    bool
	Transcript string
	Summary    string
	Message    string
}

type Malformed struct {
	Raw []byte
	Err error
}

func (ConnectedAck) Kind() Kind     { return KindConnectedAck }
func (ChatResponse) Kind() Kind     { return KindChatResponse }
func (ProcessingResult) Kind() Kind { return KindProcessingResult }
func (Malformed) Kind() Kind        { return KindMalformed }

// Empty strings count as absent, matching the server which never sends an
// empty artifact on purpose.
func (r ProcessingResult) HasTranscript() bool { return r.Transcript != "" }
func (r ProcessingResult) HasSummary() bool    { return r.Summary != "" }

type inboundFrame struct {
	Status     string `json:"status"`
	Type       string `json:"type"`
	Message    string `json:"message"`
	Transcript string `json:"transcript"`
	Summary    string `json:"summary"`
}

// Decode classifies raw with a fixed precedence: connection ack, chat
// response, processing result. Anything else is Malformed.
func Decode(raw []byte) Frame {
	var in inboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return Malformed{Raw: raw, Err: fmt.Errorf("%w: %v", ErrNotJSON, err)}
	}

	switch {
	case in.Status == StatusConnected:
		return ConnectedAck{Message: in.Message}
	case in.Type == TypeChatResponse:
		return ChatResponse{Message: in.Message}
	case in.Status == StatusSuccess:
		return ProcessingResult{
			Success:    true,
			Transcript: in.Transcript,
			Summary:    in.Summary,
		}
	case in.Status == StatusError:
		return ProcessingResult{Message: in.Message}
	default:
		return Malformed{Raw: raw, Err: ErrUnrecognizedFrame}
	}
}
