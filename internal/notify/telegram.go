// Package notify pushes run summaries and failure alerts to a Telegram
// chat. Like the event publisher, a nil *Notifier drops everything.
package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"

	"github.com/contentflow/uploadflow/pkg/logger"
)

type Notifier struct {
	bot    *bot.Bot
	chatID int64
	log    logger.Logger
}

func NewNotifier(token string, chatID int64, log logger.Logger) (*Notifier, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Notifier{
		bot:    b,
		chatID: chatID,
		log:    log,
	}, nil
}

func (n *Notifier) send(ctx context.Context, text string) {
	if n == nil {
		return
	}
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      text,
		ParseMode: botmodels.ParseModeMarkdown,
	})
	if err != nil {
		n.log.Warn("Failed to send telegram notification",
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (n *Notifier) RunStarted(ctx context.Context, profiles int) {
	n.send(ctx, fmt.Sprintf("▶️ Upload run started across *%d* profiles", profiles))
}

func (n *Notifier) RunFinished(ctx context.Context, outcome string, uploads int) {
	n.send(ctx, fmt.Sprintf("⏹ Upload run finished (*%s*), %d videos uploaded", outcome, uploads))
}

func (n *Notifier) UploadFailed(ctx context.Context, video string, err error) {
	n.send(ctx, fmt.Sprintf("⚠️ Upload failed for `%s`: %s", video, err))
}

func (n *Notifier) DailyLimitReached(ctx context.Context, count int) {
	n.send(ctx, fmt.Sprintf("🛑 Daily upload limit reached at %d uploads", count))
}
