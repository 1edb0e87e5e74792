package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/logging"
)

const observeTimeout = 10 * time.Second

// observe handles messages that are not commands: forum topic creation in a
// managed group is remembered, and private messages or group mentions of the
// bot land in the operator inbox.
func (r *Router) observe(ctx context.Context, updateID string, msg *models.Message) {
	ctx, cancel := context.WithTimeout(ctx, observeTimeout)
	defer cancel()

	if msg.ForumTopicCreated != nil {
		r.learnTopic(ctx, updateID, msg)
		return
	}
	if r.opts.Inbox == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	source, ok := r.inboxSource(msg)
	if !ok {
		return
	}
	r.capture(ctx, updateID, msg, source)
}

func (r *Router) learnTopic(ctx context.Context, updateID string, msg *models.Message) {
	if r.opts.Topics == nil || chatKindOf(msg.Chat.Type) != ChatGroup || !r.isManaged(msg.Chat.ID) {
		return
	}

	threadID := msg.MessageThreadID
	if threadID == 0 {
		threadID = msg.ID
	}

	if _, err := r.opts.Topics.Save(ctx, msg.Chat.ID, msg.ForumTopicCreated.Name, threadID, domain.TopicDetected); err != nil {
		logging.Context{
			ChatID:   msg.Chat.ID,
			UpdateID: updateID,
			Event:    "topic_detect_failed",
		}.Apply(r.logger).WithError(err).Warn("failed to remember new topic")
	}
}

func (r *Router) inboxSource(msg *models.Message) (string, bool) {
	switch chatKindOf(msg.Chat.Type) {
	case ChatPrivate:
		if r.gate.IsGlobalAdmin(msg.From.ID) {
			return "", false
		}
		return domain.SourcePrivate, true
	case ChatGroup:
		if r.mentionsSelf(msg) {
			return domain.SourceMention, true
		}
	}
	return "", false
}

// mentionsSelf reports an @mention of the bot or a reply to one of its
// messages. The topic root attached to forum messages does not count.
func (r *Router) mentionsSelf(msg *models.Message) bool {
	if r.selfUsername != "" {
		text := strings.ToLower(messageText(msg))
		if strings.Contains(text, "@"+strings.ToLower(r.selfUsername)) {
			return true
		}
	}

	reply := msg.ReplyToMessage
	if reply == nil || reply.From == nil || r.selfID == 0 || isTopicRoot(msg, reply) {
		return false
	}
	return reply.From.ID == r.selfID
}

func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func (r *Router) capture(ctx context.Context, updateID string, msg *models.Message, source string) {
	log := logging.Context{
		UserID:   msg.From.ID,
		ChatID:   msg.Chat.ID,
		UpdateID: updateID,
	}.Apply(r.logger)

	recorded, err := r.opts.Inbox.Record(ctx, domain.InboxMessage{
		Source:       source,
		ChatID:       msg.Chat.ID,
		ChatTitle:    msg.Chat.Title,
		MessageID:    msg.ID,
		FromID:       msg.From.ID,
		FromUsername: msg.From.Username,
		FromFirst:    msg.From.FirstName,
		Text:         messageText(msg),
	})
	if err != nil {
		log.WithField("event", "inbox_record_failed").WithError(err).Warn("failed to record inbox message")
		return
	}

	notice := inboxNotice(recorded)
	for _, adminID := range r.gate.AdminIDs() {
		if _, err := r.platform.SendMessage(ctx, &bot.SendMessageParams{ChatID: adminID, Text: notice}); err != nil {
			log.WithFields(logging.Fields{
				"event":    "inbox_notify_failed",
				"admin_id": adminID,
			}).WithError(err).Warn("failed to notify admin about inbox message")
		}
	}
}

func inboxNotice(msg domain.InboxMessage) string {
	var b strings.Builder
	if msg.Source == domain.SourceMention {
		where := msg.ChatTitle
		if where == "" {
			where = fmt.Sprintf("%d", msg.ChatID)
		}
		fmt.Fprintf(&b, "New group message %s from %s in %s:", msg.Ref(), msg.Sender(), where)
	} else {
		fmt.Fprintf(&b, "New message %s from %s (%d):", msg.Ref(), msg.Sender(), msg.FromID)
	}
	if text := preview(msg.Text, inboxNoticePreview); text != "" {
		b.WriteString("\n" + text)
	}
	fmt.Fprintf(&b, "\nUse /inbox to list or /view %s to view.", msg.Ref())
	return b.String()
}
