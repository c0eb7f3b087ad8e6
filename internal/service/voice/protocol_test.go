package voice

import (
	"encoding/json"
	"testing"
)

func TestDecodeServerFrameAudio(t *testing.T) {
	frame, err := DecodeServerFrame([]byte(`{"type":"audio","audio_event":{"audio_base_64":"aGVsbG8=","event_id":3}}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	chunk, err := frame.Audio()
	if err != nil {
		t.Fatalf("audio err: %v", err)
	}
	if string(chunk) != "hello" {
		t.Fatalf("unexpected chunk %q", chunk)
	}
	if frame.IsFinal() {
		t.Fatal("audio frame must not be final")
	}
}

func TestDecodeServerFrameFinal(t *testing.T) {
	frame, err := DecodeServerFrame([]byte(`{"type":"agent_response","agent_response_event":{"agent_response":"tchau","is_final":true}}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if !frame.IsFinal() {
		t.Fatal("expected final marker")
	}
	if chunk, _ := frame.Audio(); chunk != nil {
		t.Fatal("non-audio frame returned audio")
	}
}

func TestDecodeServerFrameErrors(t *testing.T) {
	for _, raw := range []string{`not json`, `{"audio_event":{}}`} {
		if _, err := DecodeServerFrame([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}

	frame, err := DecodeServerFrame([]byte(`{"type":"audio","audio_event":{"audio_base_64":"%%%"}}`))
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if _, err := frame.Audio(); err == nil {
		t.Fatal("expected base64 error")
	}
}

func TestInitiationFrameShape(t *testing.T) {
	data, err := json.Marshal(NewInitiationFrame("v", "m", 44100, "session-1"))
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}

	var decoded map[string]any
	json.Unmarshal(data, &decoded)
	if decoded["type"] != FrameInitiation {
		t.Fatalf("unexpected type %v", decoded["type"])
	}
	inner, ok := decoded[FrameInitiation].(map[string]any)
	if !ok {
		t.Fatalf("missing initiation payload: %s", data)
	}
	if inner["user_id"] != "session-1" || inner["sample_rate"] != float64(44100) {
		t.Fatalf("unexpected payload %v", inner)
	}
}
