package deliver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/alanbriolat/video-relay/pipeline"
)

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chatId"`
	// Format string taking the token and method, tgbotapi.APIEndpoint if empty.
	APIEndpoint string `yaml:"apiEndpoint"`
}

func (c TelegramConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("telegram chat ID is required")
	}
	return nil
}

// Telegram delivers artifacts to a single chat, as videos or audio according to the artifact's media kind.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *zap.SugaredLogger
}

// NewTelegram connects to the bot API, which also checks the token.
func NewTelegram(config TelegramConfig) (*Telegram, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	endpoint := config.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(config.Token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log := zap.S().Named("telegram").With("bot", bot.Self.UserName, "chat_id", config.ChatID)
	log.Debug("connected")
	return &Telegram{bot: bot, chatID: config.ChatID, log: log}, nil
}

func (t *Telegram) Deliver(ctx context.Context, artifact pipeline.Artifact) error {
	if err := ctx.Err(); err != nil {
		return transportFailure(err)
	}
	var msg tgbotapi.Chattable
	file := tgbotapi.FilePath(artifact.Path)
	switch artifact.Media {
	case pipeline.Video:
		video := tgbotapi.NewVideo(t.chatID, file)
		video.SupportsStreaming = true
		msg = video
	case pipeline.Audio:
		audio := tgbotapi.NewAudio(t.chatID, file)
		audio.Title = filepath.Base(artifact.Path)
		msg = audio
	default:
		return fmt.Errorf("%w: %q", pipeline.ErrUnknownMediaKind, artifact.Media)
	}

	t.log.Infow("sending", "path", artifact.Path, "media", artifact.Media)
	sent, err := t.bot.Send(msg)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return rejected("telegram error %d: %s", apiErr.Code, apiErr.Message)
		}
		return transportFailure(err)
	}
	t.log.Infow("sent", "path", artifact.Path, "message_id", sent.MessageID)
	return nil
}
