package health

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/magic-mirror/backend/pkg/utils"
)

// Version 服务版本号
const Version = "1.0.0"

// Handler 首页与健康检查
type Handler struct {
	now func() time.Time
}

// New 创建健康检查处理器
func New() *Handler {
	return &Handler{now: time.Now}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleHome)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"service": "magic-mirror",
		"status":  "running",
		"message": "Servidor do Espelho Encantado. Use /chat para interagir.",
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
		"version":   Version,
	})
}
