package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

// TTSClient ElevenLabs 文本转语音流式客户端
type TTSClient struct {
	config *voicemodel.Config
	client *http.Client
	log    zerolog.Logger
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// NewTTSClient 创建 TTS 通道
func NewTTSClient(config *voicemodel.Config, log zerolog.Logger) *TTSClient {
	return &TTSClient{
		config: config,
		client: newHTTPClient(timeoutOf(config)),
		log:    log.With().Str("channel", ChannelTTS).Logger(),
	}
}

// Name implements Channel.
func (c *TTSClient) Name() string { return ChannelTTS }

// Open synthesizes req.Text verbatim; the transcript is ignored.
func (c *TTSClient) Open(ctx context.Context, req voicemodel.Request) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, newError(ChannelTTS, KindMalformed, errors.New("TTS text is empty"))
	}

	apiKey, err := resolveAPIKey(ChannelTTS, c.config)
	if err != nil {
		return nil, err
	}

	voiceID := strings.TrimSpace(c.config.VoiceID)
	if voiceID == "" {
		return nil, newError(ChannelTTS, KindUnavailable, errors.New("voice id is not configured"))
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream", c.config.BaseURL, url.PathEscape(voiceID))
	body, err := postStream(ctx, c.client, ChannelTTS, endpoint, apiKey, ttsRequest{
		Text:    req.Text,
		ModelID: c.config.ModelID,
	}, timeoutOf(c.config))
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("session_id", req.SessionID).Int("chars", len(req.Text)).Msg("tts stream opened")
	return body, nil
}
