package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

func testConfig(baseURL string) *voicemodel.Config {
	return &voicemodel.Config{
		APIKey:  "test-key",
		VoiceID: "voice-1",
		AgentID: "agent-1",
		BaseURL: baseURL,
		ModelID: "eleven_multilingual_v2",
		Timeout: 2 * time.Second,
	}
}

func TestAgentClientStreamsAudio(t *testing.T) {
	var got agentChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/agents/agent-1/chat/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-agent-audio"))
	}))
	defer srv.Close()

	client := NewAgentClient(testConfig(srv.URL), zerolog.Nop())
	stream, err := client.Open(context.Background(), voicemodel.Request{
		SessionID:  "s1",
		Text:       "oi",
		Transcript: []chat.Turn{{Role: chat.RoleUser, Content: "oi"}},
	})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	if string(data) != "ID3-agent-audio" {
		t.Fatalf("unexpected audio %q", data)
	}
	if got.SessionID != "s1" || got.Text != "oi" || !got.Stream || len(got.Messages) != 1 {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestAgentClientClassifiesFailures(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusInternalServerError, KindUnavailable},
		{http.StatusBadGateway, KindUnavailable},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			defer srv.Close()

			_, err := NewAgentClient(testConfig(srv.URL), zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "oi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsKind(err, tc.kind) {
				t.Fatalf("expected kind %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestAgentClientRequiresCredentials(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.APIKey = " "
	if _, err := NewAgentClient(cfg, zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "oi"}); !IsKind(err, KindAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}

	cfg = testConfig("http://127.0.0.1:1")
	cfg.AgentID = ""
	if _, err := NewAgentClient(cfg, zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "oi"}); !IsKind(err, KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestAgentClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := NewAgentClient(testConfig(base), zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "oi"})
	if !IsKind(err, KindUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestTTSClientSynthesizesText(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("tts-audio"))
	}))
	defer srv.Close()

	stream, err := NewTTSClient(testConfig(srv.URL), zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "olá"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer stream.Close()

	data, _ := io.ReadAll(stream)
	if string(data) != "tts-audio" {
		t.Fatalf("unexpected audio %q", data)
	}
	if got.Text != "olá" || got.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestTTSClientRejectsEmptyText(t *testing.T) {
	_, err := NewTTSClient(testConfig("http://127.0.0.1:1"), zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "  "})
	if !IsKind(err, KindMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestIdleBodyCancelsSilentUpstream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond

	stream, err := NewTTSClient(cfg, zerolog.Nop()).Open(context.Background(), voicemodel.Request{Text: "oi"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	defer stream.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(stream)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected read to fail once the upstream went silent")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read did not time out")
	}
}
