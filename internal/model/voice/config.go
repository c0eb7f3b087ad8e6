package voice

import "time"

// Config ElevenLabs 语音服务配置
type Config struct {
	APIKey  string `json:"-"`       // xi-api-key
	VoiceID string `json:"voiceId"` // 合成使用的声音
	AgentID string `json:"agentId"` // 对话 agent
	BaseURL string `json:"baseUrl"` // https://api.elevenlabs.io
	ModelID string `json:"modelId"` // eleven_multilingual_v2

	// 通用配置
	Timeout    time.Duration `json:"timeout"`
	SampleRate int           `json:"sampleRate"`
}
