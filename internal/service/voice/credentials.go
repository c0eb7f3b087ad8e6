package voice

import (
	"errors"
	"strings"

	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

// resolveAPIKey 返回规范化后的 API Key，缺失时给出明确错误。
func resolveAPIKey(channel string, cfg *voicemodel.Config) (string, error) {
	if cfg == nil {
		return "", newError(channel, KindAuth, errors.New("voice configuration not initialized"))
	}

	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return "", newError(channel, KindAuth, errors.New("ELEVENLABS_API_KEY is not configured"))
	}
	return key, nil
}
