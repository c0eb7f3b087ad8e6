package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

// AgentClient calls the conversational agent over a one-shot streamed HTTP request.
type AgentClient struct {
	config *voicemodel.Config
	client *http.Client
	log    zerolog.Logger
}

type agentChatRequest struct {
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	Messages  []chat.Turn `json:"messages"`
	VoiceID   string      `json:"voice_id,omitempty"`
	ModelID   string      `json:"model_id,omitempty"`
	Stream    bool        `json:"stream"`
}

// NewAgentClient 创建 agent HTTP 通道
func NewAgentClient(config *voicemodel.Config, log zerolog.Logger) *AgentClient {
	return &AgentClient{
		config: config,
		client: newHTTPClient(timeoutOf(config)),
		log:    log.With().Str("channel", ChannelAgent).Logger(),
	}
}

// Name implements Channel.
func (c *AgentClient) Name() string { return ChannelAgent }

// Open sends the running transcript to the agent and returns its audio stream.
func (c *AgentClient) Open(ctx context.Context, req voicemodel.Request) (io.ReadCloser, error) {
	apiKey, err := resolveAPIKey(ChannelAgent, c.config)
	if err != nil {
		return nil, err
	}

	agentID := strings.TrimSpace(c.config.AgentID)
	if agentID == "" {
		return nil, newError(ChannelAgent, KindUnavailable, errors.New("agent id is not configured"))
	}

	endpoint := fmt.Sprintf("%s/v1/convai/agents/%s/chat/stream", c.config.BaseURL, url.PathEscape(agentID))
	payload := agentChatRequest{
		SessionID: req.SessionID,
		Text:      req.Text,
		Messages:  req.Transcript,
		VoiceID:   c.config.VoiceID,
		ModelID:   c.config.ModelID,
		Stream:    true,
	}
	if payload.Messages == nil {
		payload.Messages = []chat.Turn{}
	}

	start := time.Now()
	body, err := postStream(ctx, c.client, ChannelAgent, endpoint, apiKey, payload, timeoutOf(c.config))
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("session_id", req.SessionID).
		Int("turns", len(req.Transcript)).
		Dur("open", time.Since(start)).
		Msg("agent stream opened")
	return body, nil
}
