package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/logging"
)

const replyUsage = "Usage: /reply <user_id|index|m<id>|@username> <text>"

func (r *Router) handleSay(ctx context.Context, ev *Event) (string, error) {
	if ev.ChatKind == ChatGroup {
		if ev.RawArgs == "" {
			return "", usageError("Usage: /say <text>")
		}
		if _, err := r.platform.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          ev.ChatID,
			MessageThreadID: ev.ThreadID,
			Text:            ev.RawArgs,
		}); err != nil {
			return "", externalError("send the message", err)
		}
		return "Message sent.", nil
	}

	first, rest := splitFirst(ev.RawArgs)
	target, ok := r.groupTarget(first)
	if !ok || rest == "" {
		return "", usageError("Usage: /say <group> [topic] <text>")
	}

	// a quoted name or topic_N before the text picks a forum topic
	threadID, text := 0, rest
	if token, after, quoted := nextToken(rest); after != "" && (quoted || isTopicToken(token)) {
		id, err := r.resolveTopic(ctx, target, token, quoted)
		if err != nil {
			return "", err
		}
		threadID, text = id, after
	}

	if _, err := r.platform.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          target,
		MessageThreadID: threadID,
		Text:            text,
	}); err != nil {
		return "", externalError(fmt.Sprintf("send the message to %d", target), err)
	}

	return fmt.Sprintf("Message sent to %s%s.", r.groupLabel(target), topicSuffix(threadID)), nil
}

func isTopicToken(token string) bool {
	if !strings.HasPrefix(strings.ToLower(token), "topic_") {
		return false
	}
	_, ok := parseThreadID(token)
	return ok
}

// mediaHandler builds the /send_photo, /send_video and /send_document
// handlers. In a group the replied media is copied into the same chat and
// topic; in private it goes to a managed group, optionally into a topic.
func mediaHandler(kind MediaKind) handlerFunc {
	return func(r *Router, ctx context.Context, ev *Event) (string, error) {
		if ev.ChatKind == ChatGroup {
			if ev.Reply == nil {
				return "", preconditionError("Reply to a %s with /%s to copy it to this group.", kind, ev.Command)
			}
			fromChat, messageID, err := mediaSource(ev, kind)
			if err != nil {
				return "", err
			}
			if _, err := r.platform.CopyMessage(ctx, &bot.CopyMessageParams{
				ChatID:          ev.ChatID,
				MessageThreadID: ev.ThreadID,
				FromChatID:      fromChat,
				MessageID:       messageID,
			}); err != nil {
				return "", externalError(fmt.Sprintf("copy the %s", kind), err)
			}
			return fmt.Sprintf("%s copied to this group.", capitalize(kind.String())), nil
		}

		fromChat, messageID, err := mediaSource(ev, kind)
		if err != nil {
			return "", err
		}

		first, rest := splitFirst(ev.RawArgs)
		if first == "" {
			return "", usageError("Usage: /%s <group> [topic] (reply to a %s)", ev.Command, kind)
		}
		target, threadID, err := r.managedDestination(ctx, first, rest, ev.Command)
		if err != nil {
			return "", err
		}

		if _, err := r.platform.CopyMessage(ctx, &bot.CopyMessageParams{
			ChatID:          target,
			MessageThreadID: threadID,
			FromChatID:      fromChat,
			MessageID:       messageID,
		}); err != nil {
			return "", externalError(fmt.Sprintf("send the %s", kind), err)
		}

		return fmt.Sprintf("%s sent to %s%s.", capitalize(kind.String()), r.groupLabel(target), topicSuffix(threadID)), nil
	}
}

// managedDestination resolves "<group> [topic]" where the group must be
// registered. The topic is the rest of the arguments, quoted or not.
func (r *Router) managedDestination(ctx context.Context, groupArg, topicArg, command string) (int64, int, error) {
	target, ok := r.groupTarget(groupArg)
	if !ok {
		return 0, 0, usageError("Invalid group %q. Usage: /%s <group> [topic]", groupArg, command)
	}
	if !r.isManaged(target) {
		return 0, 0, preconditionError("Group %d is not registered. Use /addgroup first.", target)
	}
	if topicArg == "" {
		return target, 0, nil
	}

	name := unquote(topicArg)
	threadID, err := r.resolveTopic(ctx, target, name, name != topicArg)
	if err != nil {
		return 0, 0, err
	}
	return target, threadID, nil
}

func mediaSource(ev *Event, kind MediaKind) (int64, int, error) {
	if ev.Reply != nil {
		if ev.Reply.Media != kind {
			return 0, 0, preconditionError("The replied message does not contain a %s.", kind)
		}
		return replySourceChat(ev), ev.Reply.MessageID, nil
	}
	if ev.Media == kind {
		return ev.ChatID, ev.MessageID, nil
	}
	return 0, 0, preconditionError("Reply to a %s with /%s.", kind, ev.Command)
}

func replySourceChat(ev *Event) int64 {
	if ev.Reply.ChatID != 0 {
		return ev.Reply.ChatID
	}
	return ev.ChatID
}

// handleForward forwards the replied message to a managed group. When
// Telegram refuses the forward, for example because the source chat protects
// its content, the message is copied instead.
func (r *Router) handleForward(ctx context.Context, ev *Event) (string, error) {
	if ev.Reply == nil {
		return "", preconditionError("Reply to the message you want to forward.")
	}

	first, rest := splitFirst(ev.RawArgs)
	if first == "" {
		return "", usageError("Usage: /forward <group> [topic] (reply to a message)")
	}
	target, threadID, err := r.managedDestination(ctx, first, rest, ev.Command)
	if err != nil {
		return "", err
	}

	fromChat := replySourceChat(ev)
	label := r.groupLabel(target) + topicSuffix(threadID)

	_, err = r.platform.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:          target,
		MessageThreadID: threadID,
		FromChatID:      fromChat,
		MessageID:       ev.Reply.MessageID,
	})
	if err == nil {
		return fmt.Sprintf("Message forwarded to %s.", label), nil
	}

	logging.Context{
		ChatID:   target,
		Command:  ev.Command,
		UpdateID: ev.UpdateID,
		Event:    "forward_fallback",
	}.Apply(r.logger).WithError(err).Warn("forward failed, copying instead")

	if _, err := r.platform.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:          target,
		MessageThreadID: threadID,
		FromChatID:      fromChat,
		MessageID:       ev.Reply.MessageID,
	}); err != nil {
		return "", externalError("forward or copy the message", err)
	}
	return fmt.Sprintf("Message copied to %s.", label), nil
}

// handleBroadcast sends the text to every managed group. One failing group
// never stops the others.
func (r *Router) handleBroadcast(ctx context.Context, ev *Event) (string, error) {
	text := ev.RawArgs
	if text == "" {
		return "", usageError("Usage: /broadcast <text>")
	}

	groups := r.registry.List()
	if len(groups) == 0 {
		return "", preconditionError("No managed groups to broadcast to. Use /addgroup first.")
	}

	var (
		delivered int
		failures  []string
	)
	for _, g := range groups {
		if _, err := r.platform.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: g.ChatID,
			Text:   text,
		}); err != nil {
			failures = append(failures, fmt.Sprintf("%s (%d): %s", g.Name, g.ChatID, platformReason(err)))
			r.logger.WithFields(logging.Fields{
				"event":     "broadcast_failed",
				"chat_id":   g.ChatID,
				"update_id": ev.UpdateID,
			}).WithError(err).Warn("broadcast delivery failed")
			continue
		}
		delivered++
	}

	r.logger.WithFields(logging.Fields{
		"event":     "broadcast_done",
		"delivered": delivered,
		"failed":    len(failures),
		"update_id": ev.UpdateID,
	}).Info("broadcast finished")

	var b strings.Builder
	fmt.Fprintf(&b, "Broadcast sent to %d/%d groups.", delivered, len(groups))
	if len(failures) > 0 {
		fmt.Fprintf(&b, "\nFailed (%d):", len(failures))
		for _, f := range failures {
			b.WriteString("\n- " + f)
		}
	}
	return b.String(), nil
}

// recipient is who /reply writes to. inboxSeq is set when the target was an
// inbox reference, so the message can be marked handled afterwards.
type recipient struct {
	userID   int64
	label    string
	inboxSeq int64
}

func (r *Router) handleReply(ctx context.Context, ev *Event) (string, error) {
	if ev.RawArgs == "" {
		return r.replyCandidates(ctx)
	}

	first, text := splitFirst(ev.RawArgs)
	if text == "" {
		return "", usageError(replyUsage)
	}
	to, err := r.resolveRecipient(ctx, first)
	if err != nil {
		return "", err
	}

	if _, err := r.platform.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: to.userID,
		Text:   text,
	}); err != nil {
		return "", externalError(fmt.Sprintf("message %s", to.label), err)
	}

	if to.inboxSeq != 0 {
		if err := r.opts.Inbox.Resolve(ctx, to.inboxSeq, ev.CallerID); err != nil {
			logging.Context{
				UserID:   ev.CallerID,
				Command:  ev.Command,
				UpdateID: ev.UpdateID,
				Event:    "inbox_resolve_failed",
			}.Apply(r.logger).WithError(err).Warn("reply sent but inbox message not marked handled")
		}
	}

	return fmt.Sprintf("Message delivered to %s.", to.label), nil
}

// resolveRecipient tries, in order: an inbox reference, a tracked user id, a
// position in the recent users list, a raw user id, then a username or first
// name.
func (r *Router) resolveRecipient(ctx context.Context, token string) (recipient, error) {
	if seq, ok := parseInboxRef(token, true); ok {
		msg, err := r.inboxMessage(ctx, seq)
		if err != nil {
			return recipient{}, err
		}
		if msg.FromID == 0 {
			return recipient{}, preconditionError("Message %s has no sender to reply to.", msg.Ref())
		}
		return recipient{userID: msg.FromID, label: msg.Sender(), inboxSeq: seq}, nil
	}

	if id, err := strconv.ParseInt(token, 10, 64); err == nil {
		if id <= 0 {
			return recipient{}, usageError(replyUsage)
		}
		return r.numericRecipient(ctx, id)
	}

	if r.opts.Directory == nil {
		return recipient{}, preconditionError("User names need MONGO_URI. Use the numeric user id instead.")
	}
	u, err := r.opts.Directory.FindByName(ctx, token)
	if errors.Is(err, domain.ErrUserNotFound) {
		return recipient{}, preconditionError("Unknown user %q. Send /reply alone to list recent users.", token)
	}
	if err != nil {
		return recipient{}, databaseError("look up the user", err)
	}
	return recipient{userID: u.UserID, label: u.DisplayName()}, nil
}

func (r *Router) numericRecipient(ctx context.Context, id int64) (recipient, error) {
	raw := recipient{userID: id, label: fmt.Sprintf("user %d", id)}
	if r.opts.Directory == nil {
		return raw, nil
	}

	u, err := r.opts.Directory.GetByID(ctx, id)
	switch {
	case err == nil:
		return recipient{userID: u.UserID, label: u.DisplayName()}, nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return recipient{}, databaseError("look up the user", err)
	}

	if id <= listUsersLimit {
		recent, err := r.opts.Directory.ListRecent(ctx, listUsersLimit)
		if err != nil {
			return recipient{}, databaseError("load recent users", err)
		}
		if id <= int64(len(recent)) {
			u := recent[id-1]
			return recipient{userID: u.UserID, label: u.DisplayName()}, nil
		}
	}
	return raw, nil
}

func (r *Router) replyCandidates(ctx context.Context) (string, error) {
	if r.opts.Directory == nil {
		return "", usageError(replyUsage)
	}

	users, err := r.opts.Directory.ListRecent(ctx, listUsersLimit)
	if err != nil {
		return "", databaseError("load recent users", err)
	}
	if len(users) == 0 {
		return "No users tracked yet.", nil
	}

	var b strings.Builder
	b.WriteString("Recent users:")
	for i, u := range users {
		fmt.Fprintf(&b, "\n%d. %s - ID %d", i+1, u.DisplayName(), u.UserID)
	}
	b.WriteString("\n\nReply with /reply <index> <text> or /reply <user_id> <text>.")
	return b.String(), nil
}

// groupLabel renders "Name (id)" for registered chats and the bare id otherwise.
func (r *Router) groupLabel(chatID int64) string {
	if g, ok := r.registry.Get(chatID); ok {
		return fmt.Sprintf("%s (%d)", g.Name, chatID)
	}
	return fmt.Sprintf("%d", chatID)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
