package voice

import "github.com/zhouzirui/magic-mirror/backend/internal/model/chat"

// Request is what a voice channel needs to produce audio for one turn.
type Request struct {
	SessionID  string      `json:"sessionId"`
	Text       string      `json:"text"`
	Transcript []chat.Turn `json:"transcript,omitempty"`
}
