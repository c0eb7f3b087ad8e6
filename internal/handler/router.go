package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/magic-mirror/backend/internal/handler/admin"
	"github.com/zhouzirui/magic-mirror/backend/internal/handler/chat"
	"github.com/zhouzirui/magic-mirror/backend/internal/handler/health"
	"github.com/zhouzirui/magic-mirror/backend/internal/handler/webhook"
	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/magic-mirror/backend/internal/middleware"
	chatService "github.com/zhouzirui/magic-mirror/backend/internal/service/chat"
	controlsService "github.com/zhouzirui/magic-mirror/backend/internal/service/controls"
)

// Deps 路由依赖的服务
type Deps struct {
	Orchestrator  *chatService.Orchestrator
	Store         *chatService.Store
	Controls      *controlsService.Service
	Metrics       *metrics.Metrics
	Logger        zerolog.Logger
	AdminPassword string
	WebhookSecret string
	ChunkSize     int
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger, deps.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS())

	health.New().RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	chat.New(deps.Orchestrator, deps.ChunkSize, deps.Metrics, deps.Logger.With().Str("component", "chat").Logger()).RegisterRoutes(r)
	webhook.New(deps.WebhookSecret, deps.Metrics, deps.Logger.With().Str("component", "webhook").Logger()).RegisterRoutes(r)

	// 管理接口统一走 Bearer 鉴权
	r.Group(func(protected chi.Router) {
		protected.Use(middlewarePkg.BearerAuth(deps.AdminPassword))
		admin.New(deps.Controls, deps.Store, deps.Orchestrator.Today).RegisterRoutes(protected)
	})

	return r
}
