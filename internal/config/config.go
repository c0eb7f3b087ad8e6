package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
)

// DefaultAdminPassword 是未配置 ADMIN_PASSWORD 时使用的占位密码，生产环境必须覆盖。
const DefaultAdminPassword = "admin123"

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Voice    VoiceConfig
	Admin    AdminConfig
	Controls ControlsConfig
	Chat     ChatConfig
	Log      LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	voice, err := loadVoiceConfig()
	if err != nil {
		return nil, err
	}

	controls, err := loadControlsConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Voice:    voice,
		Admin:    loadAdminConfig(),
		Controls: controls,
		Chat:     chat,
		Log:      logCfg,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Agent transports understood by ELEVENLABS_AGENT_TRANSPORT.
const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// VoiceConfig 描述 ElevenLabs 语音服务相关配置。
type VoiceConfig struct {
	APIKey         string
	VoiceID        string
	AgentID        string
	BaseURL        string
	ModelID        string
	AgentTransport string
	Timeout        time.Duration
	ChunkSize      int
}

// AgentEnabled 表示是否可以尝试主通道（agent）。
func (c VoiceConfig) AgentEnabled() bool {
	return c.AgentID != ""
}

// Provider 转换为语音通道使用的配置
func (c VoiceConfig) Provider() *voicemodel.Config {
	return &voicemodel.Config{
		APIKey:  c.APIKey,
		VoiceID: c.VoiceID,
		AgentID: c.AgentID,
		BaseURL: c.BaseURL,
		ModelID: c.ModelID,
		Timeout: c.Timeout,
	}
}

func loadVoiceConfig() (VoiceConfig, error) {
	timeout, err := parseOptionalIntEnv("VOICE_TIMEOUT")
	if err != nil {
		return VoiceConfig{}, err
	}
	timeoutSeconds := 30 // 默认30秒
	if timeout != nil {
		if *timeout <= 0 {
			return VoiceConfig{}, fmt.Errorf("invalid VOICE_TIMEOUT value %d: must be positive", *timeout)
		}
		timeoutSeconds = *timeout
	}

	chunk, err := parseOptionalIntEnv("VOICE_CHUNK_SIZE")
	if err != nil {
		return VoiceConfig{}, err
	}
	chunkSize := 8192
	if chunk != nil {
		if *chunk <= 0 {
			return VoiceConfig{}, fmt.Errorf("invalid VOICE_CHUNK_SIZE value %d: must be positive", *chunk)
		}
		chunkSize = *chunk
	}

	transport := strings.ToLower(getEnvOrDefault("ELEVENLABS_AGENT_TRANSPORT", TransportHTTP))
	switch transport {
	case TransportHTTP, TransportWebSocket:
	case "ws":
		transport = TransportWebSocket
	default:
		return VoiceConfig{}, fmt.Errorf("invalid ELEVENLABS_AGENT_TRANSPORT value %q", transport)
	}

	return VoiceConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ELEVENLABS_API_KEY")),
		VoiceID:        getEnvOrDefault("ELEVENLABS_VOICE_ID", "Sm1seazb4gs7RSlUVw7c"),
		AgentID:        lookupEnvOrDefault("ELEVENLABS_AGENT_ID", "agent_01jxf0xa1wfwm8gp30wt7nj7zn"),
		BaseURL:        strings.TrimRight(getEnvOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"), "/"),
		ModelID:        getEnvOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		AgentTransport: transport,
		Timeout:        time.Duration(timeoutSeconds) * time.Second,
		ChunkSize:      chunkSize,
	}, nil
}

// AdminConfig 描述管理端鉴权与 webhook 校验配置。
type AdminConfig struct {
	Password      string
	WebhookSecret string
}

// UsesDefaultPassword 表示管理密码仍是占位值。
func (c AdminConfig) UsesDefaultPassword() bool {
	return c.Password == DefaultAdminPassword
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Password:      getEnvOrDefault("ADMIN_PASSWORD", DefaultAdminPassword),
		WebhookSecret: strings.TrimSpace(os.Getenv("WEBHOOK_SECRET")),
	}
}

// ControlsConfig 是家长控制的初始值，运行期间只能通过管理接口修改。
type ControlsConfig struct {
	DailyLimit   int
	BlockedWords []string
	StartHour    int
	EndHour      int
}

func loadControlsConfig() (ControlsConfig, error) {
	cfg := ControlsConfig{DailyLimit: 50, StartHour: 8, EndHour: 20}

	if limit, err := parseOptionalIntEnv("CHAT_DAILY_LIMIT"); err != nil {
		return ControlsConfig{}, err
	} else if limit != nil {
		cfg.DailyLimit = *limit
	}

	if start, err := parseOptionalIntEnv("CHAT_START_HOUR"); err != nil {
		return ControlsConfig{}, err
	} else if start != nil {
		cfg.StartHour = *start
	}

	if end, err := parseOptionalIntEnv("CHAT_END_HOUR"); err != nil {
		return ControlsConfig{}, err
	} else if end != nil {
		cfg.EndHour = *end
	}

	if cfg.DailyLimit < 0 {
		return ControlsConfig{}, fmt.Errorf("invalid CHAT_DAILY_LIMIT value %d", cfg.DailyLimit)
	}
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return ControlsConfig{}, fmt.Errorf("invalid CHAT_START_HOUR/CHAT_END_HOUR window [%d, %d)", cfg.StartHour, cfg.EndHour)
	}

	cfg.BlockedWords = parseListEnv("CHAT_BLOCKED_WORDS")
	return cfg, nil
}

// ChatConfig 控制编排器的可选行为。
type ChatConfig struct {
	// ChargeFailedTurns 为 true 时，两个通道都失败也照常计入当日次数。
	ChargeFailedTurns bool
}

func loadChatConfig() (ChatConfig, error) {
	charge, err := parseBoolEnv("CHAT_CHARGE_FAILED_TURNS", true)
	if err != nil {
		return ChatConfig{}, err
	}
	return ChatConfig{ChargeFailedTurns: charge}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", false)
	if err != nil {
		return LogConfig{}, err
	}

	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q", level)
	}

	return LogConfig{Level: level, Pretty: pretty}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnvOrDefault 仅在变量未设置时使用默认值；显式设置为空表示关闭该功能
func lookupEnvOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseListEnv 解析逗号分隔的列表，忽略空项。
func parseListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}

	var items []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			items = append(items, item)
		}
	}
	return items
}
