package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/magic-mirror/backend/internal/model/chat"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
	chatService "github.com/zhouzirui/magic-mirror/backend/internal/service/chat"
	controlsService "github.com/zhouzirui/magic-mirror/backend/internal/service/controls"
	"github.com/zhouzirui/magic-mirror/backend/pkg/utils"
)

// Handler 管理端接口，读写家长控制和互动记录
type Handler struct {
	controls *controlsService.Service
	store    *chatService.Store
	today    func() string
}

// New 创建管理处理器；today 返回当天的日期键
func New(controls *controlsService.Service, store *chatService.Store, today func() string) *Handler {
	return &Handler{controls: controls, store: store, today: today}
}

// RegisterRoutes 注册管理路由，鉴权由调用方挂载
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/admin", h.handleOverview)
	r.Post("/admin", h.handleUpdateControls)
	r.Get("/api/interactions", h.handleInteractions)
	r.Get("/api/controls", h.handleControls)
	r.Get("/api/sessions/{sessionID}", h.handleSession)
}

type overviewResponse struct {
	Controls          controls.Controls `json:"controls"`
	Today             string            `json:"today"`
	InteractionsToday int               `json:"interactions_today"`
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := h.today()
	utils.RespondJSON(w, http.StatusOK, overviewResponse{
		Controls:          h.controls.Get(ctx),
		Today:             today,
		InteractionsToday: h.store.Count(ctx, today),
	})
}

func (h *Handler) handleUpdateControls(w http.ResponseWriter, r *http.Request) {
	var patch controls.Patch
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.Empty() {
		utils.RespondError(w, http.StatusBadRequest, "no control fields provided")
		return
	}

	updated, err := h.controls.Update(r.Context(), patch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, controls.ErrInvalidControls) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":   "updated",
		"controls": updated,
	})
}

func (h *Handler) handleInteractions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		utils.RespondJSON(w, http.StatusOK, h.store.All(ctx))
		return
	}

	bucket, err := h.store.Day(ctx, date)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, bucket)
}

func (h *Handler) handleControls(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.controls.Get(r.Context()))
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = h.today()
	}

	turns, err := h.store.Transcript(r.Context(), date, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, chat.Session{ID: sessionID, Date: date, Turns: turns})
}
