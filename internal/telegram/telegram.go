// Package telegram hosts the Telegram client, the command router and its
// handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"tg_group_admin_bot/internal/config"
	"tg_group_admin_bot/internal/logging"
)

type botAPI interface {
	Platform
	Start(ctx context.Context)
}

// UpdateHandler consumes updates one at a time.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update *models.Update)
}

const updateQueueSize = 100

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"my_chat_member",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance. The library's update handler only
// enqueues; a single consumer drains the queue in arrival order.
type Client struct {
	bot      botAPI
	platform Platform
	updates  chan *models.Update
	logger   *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling and default handlers.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	updates := make(chan *models.Update, updateQueueSize)

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(defaultHandler(logger, updates)),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	return &Client{
		bot:      tgBot,
		platform: Bounded(tgBot, DefaultCallTimeout),
		updates:  updates,
		logger:   logger,
	}, nil
}

// Platform returns the Bot API surface with per-call timeouts applied.
func (c *Client) Platform() Platform {
	return c.platform
}

// Start begins receiving updates via long polling and feeds them to handler
// until the context is canceled.
func (c *Client) Start(ctx context.Context, handler UpdateHandler) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	done := make(chan struct{})
	go func() {
		defer close(done)
		consume(ctx, c.updates, handler)
	}()

	c.bot.Start(ctx)
	<-done

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

// consume hands queued updates to handler one at a time until ctx is done.
func consume(ctx context.Context, updates <-chan *models.Update, handler UpdateHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if handler != nil {
				handler.HandleUpdate(ctx, update)
			}
		}
	}
}

type updateMeta struct {
	userID     int64
	chatID     int64
	command    string
	media      MediaKind
	updateType string
	transition string
}

func defaultHandler(logger *logrus.Entry, updates chan<- *models.Update) bot.HandlerFunc {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(ctx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil {
			return
		}

		meta := extractUpdateMeta(update)

		fields := logging.Fields{
			"event":       "telegram_update",
			"update_type": meta.updateType,
		}
		if meta.command != "" {
			fields["command"] = meta.command
		}
		if meta.media != MediaNone {
			fields["media"] = meta.media.String()
		}
		if meta.transition != "" {
			fields["transition"] = meta.transition
		}
		if meta.userID != 0 {
			fields["user_id"] = meta.userID
		}
		if meta.chatID != 0 {
			fields["chat_id"] = meta.chatID
		}

		logger.WithFields(fields).Debug("telegram update received")

		select {
		case updates <- update:
		case <-ctx.Done():
			logger.WithFields(fields).Warn("dropped update during shutdown")
		}
	}
}

// extractUpdateMeta summarizes an update for logging. Message text is never
// logged, only the command name it starts with.
func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		msg := update.Message
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		command, _, _, _ := parseCommand(text)
		return updateMeta{
			userID:     userID(msg.From),
			chatID:     msg.Chat.ID,
			command:    command,
			media:      mediaOf(msg),
			updateType: "message",
		}
	case update.MyChatMember != nil:
		upd := update.MyChatMember
		return updateMeta{
			userID:     upd.From.ID,
			chatID:     upd.Chat.ID,
			updateType: "my_chat_member",
			transition: memberStatus(upd.OldChatMember.Type) + "->" + memberStatus(upd.NewChatMember.Type),
		}
	default:
		return updateMeta{updateType: "other"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}
