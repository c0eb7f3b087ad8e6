package voice

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Conversational websocket frame types.
const (
	FrameInitiation    = "conversation_initiation_client_data"
	FrameUserMessage   = "user_message"
	FramePong          = "pong"
	FrameAudio         = "audio"
	FrameAgentResponse = "agent_response"
	FramePing          = "ping"
	FrameMetadata      = "conversation_initiation_metadata"
)

// InitiationFrame opens a conversation with voice, model and user parameters.
type InitiationFrame struct {
	Type string         `json:"type"`
	Data InitiationData `json:"conversation_initiation_client_data"`
}

// InitiationData 会话初始化参数
type InitiationData struct {
	VoiceID    string `json:"voice_id"`
	ModelID    string `json:"model_id"`
	SampleRate int    `json:"sample_rate"`
	UserID     string `json:"user_id"`
}

// UserMessageFrame carries the user's text.
type UserMessageFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PongFrame answers a server ping.
type PongFrame struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

// ServerFrame is the envelope of every inbound frame; only the event matching
// Type is populated.
type ServerFrame struct {
	Type          string              `json:"type"`
	AudioEvent    *AudioEvent         `json:"audio_event,omitempty"`
	AgentResponse *AgentResponseEvent `json:"agent_response_event,omitempty"`
	PingEvent     *PingEvent          `json:"ping_event,omitempty"`
}

// AudioEvent 音频帧
type AudioEvent struct {
	AudioBase64 string `json:"audio_base_64"`
	EventID     int    `json:"event_id"`
}

// AgentResponseEvent 文本回复帧；IsFinal 表示本轮结束
type AgentResponseEvent struct {
	AgentResponse string `json:"agent_response"`
	IsFinal       bool   `json:"is_final"`
}

// PingEvent 心跳帧
type PingEvent struct {
	EventID int `json:"event_id"`
	PingMs  int `json:"ping_ms"`
}

// NewInitiationFrame builds the first frame sent after dialing.
func NewInitiationFrame(voiceID, modelID string, sampleRate int, userID string) InitiationFrame {
	return InitiationFrame{
		Type: FrameInitiation,
		Data: InitiationData{
			VoiceID:    voiceID,
			ModelID:    modelID,
			SampleRate: sampleRate,
			UserID:     userID,
		},
	}
}

// DecodeServerFrame parses one inbound text frame.
func DecodeServerFrame(data []byte) (*ServerFrame, error) {
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("frame without type")
	}
	return &frame, nil
}

// Audio returns the decoded audio of an audio frame, or nil for other frames.
func (f *ServerFrame) Audio() ([]byte, error) {
	if f.Type != FrameAudio || f.AudioEvent == nil || f.AudioEvent.AudioBase64 == "" {
		return nil, nil
	}
	chunk, err := base64.StdEncoding.DecodeString(f.AudioEvent.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
	}
	return chunk, nil
}

// IsFinal reports the end-of-response marker.
func (f *ServerFrame) IsFinal() bool {
	return f.Type == FrameAgentResponse && f.AgentResponse != nil && f.AgentResponse.IsFinal
}
