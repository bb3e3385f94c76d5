package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ClientEvent is a message the client sends to the server.
type ClientEvent interface {
	ClientEventType() string
}

type TurnDetection struct {
	Type string `json:"type"`
}

// SessionConfig is the mutable part of a session. Zero fields are omitted
// so the server keeps its current value.
type SessionConfig struct {
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat string         `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
}

type SessionUpdate struct {
	Session SessionConfig `json:"session"`
}

// InputAudioBufferAppend carries base64 encoded pcm16 audio.
type InputAudioBufferAppend struct {
	Audio string `json:"audio"`
}

type InputAudioBufferCommit struct{}

type ResponseCreate struct{}

type ResponseCancel struct{}

type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

type ConversationItemCreate struct {
	Item ConversationItem `json:"item"`
}

func (SessionUpdate) ClientEventType() string          { return "session.update" }
func (InputAudioBufferAppend) ClientEventType() string { return "input_audio_buffer.append" }
func (InputAudioBufferCommit) ClientEventType() string { return "input_audio_buffer.commit" }
func (ResponseCreate) ClientEventType() string         { return "response.create" }
func (ResponseCancel) ClientEventType() string         { return "response.cancel" }
func (ConversationItemCreate) ClientEventType() string { return "conversation.item.create" }

// AssistantText builds a conversation item holding assistant text.
func AssistantText(text string) ConversationItemCreate {
	return ConversationItemCreate{Item: ConversationItem{
		Type:    "message",
		Role:    "assistant",
		Content: []ContentPart{{Type: "text", Text: text}},
	}}
}

// EncodeClientEvent renders ev with its type and a fresh event id.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.ClientEventType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.ClientEventType(), err)
	}
	fields["type"], _ = json.Marshal(ev.ClientEventType())
	fields["event_id"], _ = json.Marshal("evt_" + uuid.NewString())
	return json.Marshal(fields)
}
