package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	"github.com/zhouzirui/magic-mirror/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Handler 接收 ElevenLabs 的 webhook 事件
type Handler struct {
	secret  string
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// New 创建 webhook 处理器；secret 为空时跳过签名校验
func New(secret string, m *metrics.Metrics, log zerolog.Logger) *Handler {
	return &Handler{secret: secret, metrics: m, log: log, now: time.Now}
}

// RegisterRoutes 注册 webhook 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhook", h.handleWebhook)
}

type event struct {
	Type string `json:"type"`
}

// ElevenLabs 已知的事件类型；其余类型在指标里统一记为 other
const (
	EventPostCallTranscription = "post_call_transcription"
	EventPostCallAudio         = "post_call_audio"
	EventCallInitiationFailure = "call_initiation_failure"

	eventOther   = "other"
	eventUnknown = "unknown"
)

var knownEvents = map[string]struct{}{
	EventPostCallTranscription: {},
	EventPostCallAudio:         {},
	EventCallInitiationFailure: {},
}

// eventLabel bounds the metric label set to the known event types.
func eventLabel(eventType string) string {
	if eventType == "" {
		return eventUnknown
	}
	if _, ok := knownEvents[eventType]; ok {
		return eventType
	}
	return eventOther
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if !Verify(h.secret, r.Header, body) {
		h.metrics.RecordWebhook("", "invalid_signature")
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook signature mismatch")
		utils.RespondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		h.metrics.RecordWebhook("", "invalid_payload")
		utils.RespondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	h.metrics.RecordWebhook(eventLabel(evt.Type), "accepted")
	h.log.Info().Str("type", evt.Type).Int("bytes", len(body)).Msg("webhook received")

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"message":   "webhook received",
		"timestamp": h.now().Format(time.RFC3339),
	})
}
