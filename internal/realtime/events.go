// Package realtime is a client for the OpenAI realtime websocket API.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEvent marks a server frame that could not be decoded.
var ErrMalformedEvent = errors.New("realtime: malformed event")

// Event is a server event. The set of implementations is closed; anything
// the package does not model decodes to Unknown.
type Event interface {
	EventType() string
	serverEvent()
}

type Session struct {
	ID           string   `json:"id"`
	Model        string   `json:"model,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Voice        string   `json:"voice,omitempty"`
}

type SessionCreated struct {
	EventID string  `json:"event_id"`
	Session Session `json:"session"`
}

type SessionUpdated struct {
	EventID string  `json:"event_id"`
	Session Session `json:"session"`
}

// ResponseAudioDelta carries base64 pcm16 audio for one output item.
type ResponseAudioDelta struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseTextDelta struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseTextDone struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

type ResponseAudioTranscriptDelta struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDone struct {
	EventID      string `json:"event_id"`
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

// Error is reported by the server for a rejected client event.
type Error struct {
	EventID string      `json:"event_id"`
	Detail  ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

func (e ErrorDetail) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime %s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("realtime %s: %s", e.Type, e.Message)
}

// Unknown is any event type not listed above.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (SessionCreated) EventType() string               { return "session.created" }
func (SessionUpdated) EventType() string               { return "session.updated" }
func (ResponseAudioDelta) EventType() string           { return "response.audio.delta" }
func (ResponseTextDelta) EventType() string            { return "response.text.delta" }
func (ResponseTextDone) EventType() string             { return "response.text.done" }
func (ResponseAudioTranscriptDelta) EventType() string { return "response.audio_transcript.delta" }
func (ResponseAudioTranscriptDone) EventType() string  { return "response.audio_transcript.done" }
func (Error) EventType() string                        { return "error" }
func (e Unknown) EventType() string                    { return e.Type }

func (SessionCreated) serverEvent()               {}
func (SessionUpdated) serverEvent()               {}
func (ResponseAudioDelta) serverEvent()           {}
func (ResponseTextDelta) serverEvent()            {}
func (ResponseTextDone) serverEvent()             {}
func (ResponseAudioTranscriptDelta) serverEvent() {}
func (ResponseAudioTranscriptDone) serverEvent()  {}
func (Error) serverEvent()                        {}
func (Unknown) serverEvent()                      {}

// DecodeEvent parses one server frame.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	switch head.Type {
	case "session.created":
		return decodeAs[SessionCreated](data)
	case "session.updated":
		return decodeAs[SessionUpdated](data)
	case "response.audio.delta":
		return decodeAs[ResponseAudioDelta](data)
	case "response.text.delta":
		return decodeAs[ResponseTextDelta](data)
	case "response.text.done":
		return decodeAs[ResponseTextDone](data)
	case "response.audio_transcript.delta":
		return decodeAs[ResponseAudioTranscriptDelta](data)
	case "response.audio_transcript.done":
		return decodeAs[ResponseAudioTranscriptDone](data)
	case "error":
		return decodeAs[Error](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return Unknown{Type: head.Type, Raw: raw}, nil
	}
}

func decodeAs[T Event](data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedEvent, ev.EventType(), err)
	}
	return ev, nil
}
