package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/magic-mirror/backend/internal/config"
	"github.com/zhouzirui/magic-mirror/backend/internal/handler"
	"github.com/zhouzirui/magic-mirror/backend/internal/logger"
	"github.com/zhouzirui/magic-mirror/backend/internal/metrics"
	"github.com/zhouzirui/magic-mirror/backend/internal/model/controls"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/chat"
	controlsservice "github.com/zhouzirui/magic-mirror/backend/internal/service/controls"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/policy"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zlog := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if envErr != nil {
		zlog.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	if cfg.Admin.UsesDefaultPassword() {
		zlog.Warn().Msg("ADMIN_PASSWORD 使用默认值，请在生产环境中覆盖")
	}
	if cfg.Admin.WebhookSecret == "" {
		zlog.Warn().Msg("WEBHOOK_SECRET 未配置，webhook 签名校验已关闭")
	}
	if cfg.Voice.APIKey == "" {
		zlog.Warn().Msg("ELEVENLABS_API_KEY 未配置，所有语音请求都会失败")
	}

	m := metrics.New()

	controlsSvc, err := controlsservice.NewService(controls.Controls{
		DailyLimit:   cfg.Controls.DailyLimit,
		BlockedWords: cfg.Controls.BlockedWords,
		TimeRestrictions: controls.TimeRestrictions{
			StartHour: cfg.Controls.StartHour,
			EndHour:   cfg.Controls.EndHour,
		},
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid initial parental controls")
	}
	store := chat.NewStore()

	voiceLog := logger.Component(zlog, "voice")
	providerCfg := cfg.Voice.Provider()
	primary, cleanup := newPrimaryChannel(cfg.Voice, providerCfg, voiceLog)
	defer cleanup()
	fallback := voice.NewTTSClient(providerCfg, voiceLog)

	orch := chat.NewOrchestrator(
		store,
		policy.NewGuard(controlsSvc, store),
		policy.NewFilter(controlsSvc),
		primary,
		fallback,
		m,
		logger.Component(zlog, "orchestrator"),
		chat.Options{ChargeFailedTurns: cfg.Chat.ChargeFailedTurns},
	)

	router := handler.NewRouter(handler.Deps{
		Orchestrator:  orch,
		Store:         store,
		Controls:      controlsSvc,
		Metrics:       m,
		Logger:        logger.Component(zlog, "http"),
		AdminPassword: cfg.Admin.Password,
		WebhookSecret: cfg.Admin.WebhookSecret,
		ChunkSize:     cfg.Voice.ChunkSize,
	})

	startServer(ctx, cfg.Server, router, zlog)
}

// newPrimaryChannel 按配置选择 agent 通道；未配置 agent 时返回 nil，所有请求直接走 TTS
func newPrimaryChannel(cfg config.VoiceConfig, providerCfg *voicemodel.Config, log zerolog.Logger) (voice.Channel, func()) {
	if !cfg.AgentEnabled() {
		log.Info().Msg("ELEVENLABS_AGENT_ID 未配置，仅使用 TTS 通道")
		return nil, func() {}
	}

	if cfg.AgentTransport == config.TransportWebSocket {
		client := voice.NewAgentSocketClient(providerCfg, log)
		log.Info().Str("transport", cfg.AgentTransport).Msg("agent channel ready")
		return client, client.Cleanup
	}

	log.Info().Str("transport", cfg.AgentTransport).Msg("agent channel ready")
	return voice.NewAgentClient(providerCfg, log), func() {}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zlog zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info().Str("addr", addr).Msg("magic mirror relay listening")
	if err := runServer(ctx, srv); err != nil {
		zlog.Fatal().Err(err).Msg("server error")
	}
	zlog.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
