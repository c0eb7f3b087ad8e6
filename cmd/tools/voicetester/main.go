package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/magic-mirror/backend/internal/config"
	"github.com/zhouzirui/magic-mirror/backend/internal/logger"
	voicemodel "github.com/zhouzirui/magic-mirror/backend/internal/model/voice"
	"github.com/zhouzirui/magic-mirror/backend/internal/service/voice"
)

func main() {
	zlog := logger.New(logger.Config{Level: "debug", Pretty: true})

	if err := godotenv.Load(); err != nil {
		zlog.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}

	mode := flag.String("mode", "", "测试模式: agent, ws 或 tts")
	text := flag.String("text", "", "发送给通道的文本")
	outputPath := flag.String("out", "", "输出音频文件路径 (默认自动生成)")
	voiceID := flag.String("voice", "", "声音 ID，默认使用配置中的 ELEVENLABS_VOICE_ID")
	session := flag.String("session", "", "自定义 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if strings.TrimSpace(*text) == "" {
		flag.Usage()
		log.Fatal().Msg("请通过 -text 提供文本")
	}

	providerCfg := cfg.Voice.Provider()
	if *voiceID != "" {
		providerCfg.VoiceID = *voiceID
	}

	channel, cleanup, err := channelFor(*mode, providerCfg, zlog)
	if err != nil {
		flag.Usage()
		log.Fatal().Err(err).Msg("无效的测试模式")
	}
	defer cleanup()

	sessionID := *session
	if sessionID == "" {
		sessionID = "manual-" + uuid.NewString()
	}

	if *outputPath == "" {
		*outputPath = fmt.Sprintf("%s-output-%d.mp3", channel.Name(), time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	zlog.Info().Str("channel", channel.Name()).Str("session_id", sessionID).Msg("开始测试")
	n, err := run(ctx, channel, voicemodel.Request{SessionID: sessionID, Text: *text}, *outputPath)
	if err != nil {
		log.Fatal().Err(err).Str("kind", string(voice.KindOf(err))).Msg("通道调用失败")
	}

	zlog.Info().Str("out", *outputPath).Int64("bytes", n).Msg("音频已写入")
}

func channelFor(mode string, cfg *voicemodel.Config, log zerolog.Logger) (voice.Channel, func(), error) {
	switch mode {
	case "agent":
		return voice.NewAgentClient(cfg, log), func() {}, nil
	case "ws":
		client := voice.NewAgentSocketClient(cfg, log)
		return client, client.Cleanup, nil
	case "tts":
		return voice.NewTTSClient(cfg, log), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown mode %q: use -mode=agent, -mode=ws or -mode=tts", mode)
	}
}

// run opens the channel and writes the whole stream to outputPath.
func run(ctx context.Context, channel voice.Channel, req voicemodel.Request, outputPath string) (int64, error) {
	stream, err := channel.Open(ctx, req)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	file, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("创建输出文件失败: %w", err)
	}
	defer file.Close()

	n, err := io.Copy(file, stream)
	if err != nil {
		return n, fmt.Errorf("写入音频失败: %w", err)
	}
	return n, nil
}
