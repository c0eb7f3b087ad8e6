// Package voice talks to the ElevenLabs conversational and text-to-speech APIs.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

// Channel names reported in logs, metrics and the X-Audio-Channel header.
const (
	ChannelAgent       = "agent"
	ChannelAgentSocket = "agent_ws"
	ChannelTTS         = "tts"
)

const defaultTimeout = 30 * time.Second

// Channel produces an audio stream for one chat turn. The caller owns the
// returned stream and must Close it on every path.
type Channel interface {
	Name() string
	Open(ctx context.Context, req voicemodel.Request) (io.ReadCloser, error)
}

func timeoutOf(cfg *voicemodel.Config) time.Duration {
	if cfg == nil || cfg.Timeout <= 0 {
		return defaultTimeout
	}
	return cfg.Timeout
}

// newHTTPClient bounds connection setup and the wait for response headers.
// The body is bounded separately by idleBody so long audio is not cut off.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// postStream issues an authenticated JSON POST and returns the streamed body.
func postStream(ctx context.Context, client *http.Client, channel, url, apiKey string, payload any, timeout time.Duration) (io.ReadCloser, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(channel, KindMalformed, fmt.Errorf("failed to marshal request: %w", err))
	}

	reqCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		cancel()
		return nil, newError(channel, KindUnavailable, fmt.Errorf("failed to build request: %w", err))
	}
	httpReq.Header.Set("xi-api-key", apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, newError(channel, KindUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		return nil, &UpstreamError{
			Channel: channel,
			Kind:    kindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("provider responded: %s", readSnippet(resp.Body)),
		}
	}

	return newIdleBody(resp.Body, cancel, timeout), nil
}

// readSnippet returns the start of an error body for diagnostics.
func readSnippet(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "empty body"
	}
	return text
}

// idleBody cancels the request when the upstream stays silent longer than
// timeout between two reads.
type idleBody struct {
	body    io.ReadCloser
	cancel  context.CancelFunc
	timer   *time.Timer
	timeout time.Duration
}

func newIdleBody(body io.ReadCloser, cancel context.CancelFunc, timeout time.Duration) *idleBody {
	return &idleBody{
		body:    body,
		cancel:  cancel,
		timer:   time.AfterFunc(timeout, cancel),
		timeout: timeout,
	}
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.timer.Reset(b.timeout)
	return n, err
}

func (b *idleBody) Close() error {
	b.timer.Stop()
	b.cancel()
	return b.body.Close()
}
