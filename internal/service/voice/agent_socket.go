package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

const defaultSampleRate = 44100

// AgentSocketClient talks to the conversational agent over a signed,
// time-limited websocket URL.
type AgentSocketClient struct {
	config *voicemodel.Config
	client *http.Client
	dialer *websocket.Dialer
	conns  *ConnectionManager
	log    zerolog.Logger
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
	URL       string `json:"url"`
}

// NewAgentSocketClient 创建 agent WebSocket 通道
func NewAgentSocketClient(config *voicemodel.Config, log zerolog.Logger) *AgentSocketClient {
	timeout := timeoutOf(config)
	return &AgentSocketClient{
		config: config,
		client: newHTTPClient(timeout),
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		conns: NewConnectionManager(),
		log:   log.With().Str("channel", ChannelAgentSocket).Logger(),
	}
}

// Name implements Channel.
func (c *AgentSocketClient) Name() string { return ChannelAgentSocket }

// Cleanup 关闭所有仍在读取的连接
func (c *AgentSocketClient) Cleanup() {
	c.conns.CloseAll()
}

// Open fetches a signed URL, starts a conversation and waits for the first
// audio frame. A conversation that ends before producing audio is an error so
// the caller can fall back.
func (c *AgentSocketClient) Open(ctx context.Context, req voicemodel.Request) (io.ReadCloser, error) {
	apiKey, err := resolveAPIKey(ChannelAgentSocket, c.config)
	if err != nil {
		return nil, err
	}

	agentID := strings.TrimSpace(c.config.AgentID)
	if agentID == "" {
		return nil, newError(ChannelAgentSocket, KindUnavailable, errors.New("agent id is not configured"))
	}

	wsURL, err := c.signedURL(ctx, apiKey, agentID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		upstream := newError(ChannelAgentSocket, KindUnavailable, fmt.Errorf("failed to connect to agent websocket: %w", err))
		if resp != nil {
			upstream.Status = resp.StatusCode
			upstream.Kind = kindForStatus(resp.StatusCode)
		}
		return nil, upstream
	}

	connectID := uuid.NewString()
	c.conns.AddConnection(connectID, conn)

	stream := &socketStream{
		conn:    conn,
		timeout: timeoutOf(c.config),
		release: func() { c.conns.RemoveConnection(connectID) },
	}
	// 客户端断开时立即释放上游连接
	stream.stop = context.AfterFunc(ctx, func() { conn.Close() })

	sampleRate := c.config.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	frames := []any{
		NewInitiationFrame(c.config.VoiceID, c.config.ModelID, sampleRate, req.SessionID),
		UserMessageFrame{Type: FrameUserMessage, Text: req.Text},
	}
	for _, frame := range frames {
		if err := stream.write(frame); err != nil {
			stream.Close()
			return nil, newError(ChannelAgentSocket, KindUnavailable, fmt.Errorf("failed to send frame: %w", err))
		}
	}

	stream.deadline = time.Now().Add(stream.timeout)
	if err := stream.prime(); err != nil {
		stream.Close()
		return nil, err
	}

	c.log.Debug().
		Str("session_id", req.SessionID).
		Str("connect_id", connectID).
		Msg("agent socket streaming")
	return stream, nil
}

// signedURL requests a pre-authorized websocket endpoint for the agent.
func (c *AgentSocketClient) signedURL(ctx context.Context, apiKey, agentID string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeoutOf(c.config))
	defer cancel()

	endpoint := fmt.Sprintf("%s/v1/convai/conversation/get-signed-url?agent_id=%s", c.config.BaseURL, url.QueryEscape(agentID))
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", newError(ChannelAgentSocket, KindUnavailable, fmt.Errorf("failed to build signed url request: %w", err))
	}
	httpReq.Header.Set("xi-api-key", apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", newError(ChannelAgentSocket, KindUnavailable, fmt.Errorf("signed url request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{
			Channel: ChannelAgentSocket,
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("signed url request rejected: %s", readSnippet(resp.Body)),
		}
	}

	var payload signedURLResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err != nil {
		return "", newError(ChannelAgentSocket, KindMalformed, fmt.Errorf("failed to decode signed url response: %w", err))
	}

	signed := strings.TrimSpace(payload.SignedURL)
	if signed == "" {
		signed = strings.TrimSpace(payload.URL)
	}
	if signed == "" {
		return "", newError(ChannelAgentSocket, KindMalformed, errors.New("no signed url returned"))
	}
	return signed, nil
}

// socketStream decodes audio frames lazily as the caller reads.
type socketStream struct {
	conn    *websocket.Conn
	timeout time.Duration
	pending []byte
	done    bool

	// deadline 只在收到音频时顺延，ping 和元数据帧不会延长等待
	deadline time.Time

	stop      func() bool
	release   func()
	closeOnce sync.Once
}

func (s *socketStream) write(frame any) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteJSON(frame)
}

// prime blocks until the first audio chunk is buffered.
func (s *socketStream) prime() error {
	chunk, err := s.next()
	if err == nil {
		s.pending = chunk
		return nil
	}

	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return err
	case errors.Is(err, io.EOF):
		return newError(ChannelAgentSocket, KindMalformed, errors.New("agent finished without audio"))
	default:
		return newError(ChannelAgentSocket, KindUnavailable, fmt.Errorf("failed to read agent frame: %w", err))
	}
}

// next reads frames until one carries audio. It returns io.EOF on the final
// marker or a normal close, and a timeout error when no audio arrived within
// the configured timeout.
func (s *socketStream) next() ([]byte, error) {
	for {
		s.conn.SetReadDeadline(s.deadline)
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.done = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := DecodeServerFrame(data)
		if err != nil {
			s.done = true
			return nil, newError(ChannelAgentSocket, KindMalformed, err)
		}

		switch frame.Type {
		case FramePing:
			if frame.PingEvent == nil {
				continue
			}
			if err := s.write(PongFrame{Type: FramePong, EventID: frame.PingEvent.EventID}); err != nil {
				s.done = true
				return nil, err
			}
		case FrameAudio:
			chunk, err := frame.Audio()
			if err != nil {
				s.done = true
				return nil, newError(ChannelAgentSocket, KindMalformed, err)
			}
			if len(chunk) > 0 {
				s.deadline = time.Now().Add(s.timeout)
				return chunk, nil
			}
		default:
			if frame.IsFinal() {
				s.done = true
				return nil, io.EOF
			}
		}
	}
}

func (s *socketStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.done {
			return 0, io.EOF
		}
		chunk, err := s.next()
		if err != nil {
			return 0, err
		}
		s.pending = chunk
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *socketStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		if s.release != nil {
			s.release()
		}
		err = s.conn.Close()
	})
	return err
}
