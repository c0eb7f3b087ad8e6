package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	chatService "github.com/zhouzirui/magic-mirror/backend/internal/service/chat"
	"github.com/zhouzirui/magic-mirror/backend/pkg/utils"
)

const maxBodyBytes = 64 << 10

// Handler 聊天接口的HTTP处理器
type Handler struct {
	orch      *chatService.Orchestrator
	chunkSize int
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// New 创建聊天处理器
func New(orch *chatService.Orchestrator, chunkSize int, m *metrics.Metrics, log zerolog.Logger) *Handler {
	if chunkSize <= 0 {
		chunkSize = utils.DefaultChunkSize
	}
	return &Handler{
		orch:      orch,
		chunkSize: chunkSize,
		metrics:   m,
		log:       log,
	}
}

// RegisterRoutes 注册聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// handleChat 处理一轮对话并把音频流式返回
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	reply, err := h.orch.Handle(ctx, payload.SessionID, payload.Message)
	if err != nil {
		h.respondChatError(w, err)
		return
	}
	defer reply.Audio.Close()

	w.Header().Set("X-Session-Id", reply.SessionID)
	w.Header().Set("X-Audio-Channel", reply.Channel)
	utils.SetupAudioHeaders(w)
	w.WriteHeader(http.StatusOK)

	// 开始写音频后不能再返回 JSON 错误，只记录日志
	n, err := utils.CopyChunked(ctx, w, reply.Audio, h.chunkSize)
	h.metrics.RecordStreamed(reply.Channel, n)

	logger := h.log.With().
		Str("session_id", reply.SessionID).
		Str("channel", reply.Channel).
		Int64("bytes", n).
		Logger()
	switch {
	case err == nil:
		logger.Debug().Msg("audio stream finished")
	case ctx.Err() != nil:
		logger.Info().Msg("client disconnected during audio stream")
	default:
		logger.Warn().Err(err).Msg("audio stream interrupted")
	}
}

func (h *Handler) respondChatError(w http.ResponseWriter, err error) {
	var rejection *chatService.RejectionError
	var relayErr *chatService.RelayError

	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejection):
		utils.RespondError(w, http.StatusForbidden, rejection.Reason)
	case errors.As(err, &relayErr):
		utils.RespondError(w, http.StatusInternalServerError, "failed to generate audio: "+relayErr.Error())
	default:
		h.log.Error().Err(err).Msg("chat turn failed")
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
