package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/feature/inbox"
)

const (
	inboxListLimit     = 50
	inboxListPreview   = 140
	inboxNoticePreview = 200
)

// parseInboxRef parses "m12", or "12" when the prefix is optional.
func parseInboxRef(token string, requirePrefix bool) (int64, bool) {
	token = strings.TrimSpace(token)
	if len(token) > 1 && (token[0] == 'm' || token[0] == 'M') {
		token = token[1:]
	} else if requirePrefix {
		return 0, false
	}

	seq, err := strconv.ParseInt(token, 10, 64)
	if err != nil || seq <= 0 {
		return 0, false
	}
	return seq, true
}

func (r *Router) requireInbox() error {
	if r.opts.Inbox == nil {
		return preconditionError("The inbox is disabled. Set MONGO_URI to enable it.")
	}
	return nil
}

func (r *Router) inboxMessage(ctx context.Context, seq int64) (domain.InboxMessage, error) {
	if err := r.requireInbox(); err != nil {
		return domain.InboxMessage{}, err
	}

	msg, err := r.opts.Inbox.Get(ctx, seq)
	if errors.Is(err, inbox.ErrNotFound) {
		return domain.InboxMessage{}, preconditionError("Message m%d not found.", seq)
	}
	if err != nil {
		return domain.InboxMessage{}, databaseError("load the inbox message", err)
	}
	return msg, nil
}

func (r *Router) handleInbox(ctx context.Context, _ *Event) (string, error) {
	if err := r.requireInbox(); err != nil {
		return "", err
	}

	pending, err := r.opts.Inbox.Pending(ctx, inboxListLimit)
	if err != nil {
		return "", databaseError("load the inbox", err)
	}
	if len(pending) == 0 {
		return "No pending messages.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Pending messages (%d):", len(pending))
	for _, msg := range pending {
		fmt.Fprintf(&b, "\n%s: %s", msg.Ref(), msg.Sender())
		if msg.Source == domain.SourceMention && msg.ChatTitle != "" {
			fmt.Fprintf(&b, " in %s", msg.ChatTitle)
		}
		if text := preview(msg.Text, inboxListPreview); text != "" {
			b.WriteString(" - " + text)
		}
	}
	b.WriteString("\n\nUse /view m<id> to see the original or /reply m<id> <text> to answer.")
	return b.String(), nil
}

// handleView copies the original message into the operator's chat, then
// describes it. When the copy fails the stored text stands in for it.
func (r *Router) handleView(ctx context.Context, ev *Event) (string, error) {
	if len(ev.Args) != 1 {
		return "", usageError("Usage: /view m<id>")
	}
	seq, ok := parseInboxRef(ev.Args[0], false)
	if !ok {
		return "", usageError("Invalid message reference %q. Usage: /view m<id>", ev.Args[0])
	}
	msg, err := r.inboxMessage(ctx, seq)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s from %s (%d)", msg.Ref(), msg.Sender(), msg.FromID)
	if msg.Source == domain.SourceMention {
		title := msg.ChatTitle
		if title == "" {
			title = strconv.FormatInt(msg.ChatID, 10)
		}
		fmt.Fprintf(&b, " in %s", title)
	}
	fmt.Fprintf(&b, ", received %s", msg.CreatedAt.UTC().Format("2006-01-02 15:04"))
	if msg.Handled {
		b.WriteString(", handled.")
	} else {
		b.WriteString(", pending.")
	}

	if _, err := r.platform.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:     ev.ChatID,
		FromChatID: msg.ChatID,
		MessageID:  msg.MessageID,
	}); err != nil {
		fmt.Fprintf(&b, "\nCould not copy the original message: %s.", platformReason(err))
		if msg.Text != "" {
			b.WriteString("\nText:\n" + msg.Text)
		}
	}
	return b.String(), nil
}

func (r *Router) handleResolve(ctx context.Context, ev *Event) (string, error) {
	if len(ev.Args) != 1 {
		return "", usageError("Usage: /resolve m<id>")
	}
	seq, ok := parseInboxRef(ev.Args[0], false)
	if !ok {
		return "", usageError("Invalid message reference %q. Usage: /resolve m<id>", ev.Args[0])
	}
	if err := r.requireInbox(); err != nil {
		return "", err
	}

	err := r.opts.Inbox.Resolve(ctx, seq, ev.CallerID)
	if errors.Is(err, inbox.ErrNotFound) {
		return "", preconditionError("Message m%d not found.", seq)
	}
	if err != nil {
		return "", databaseError("update the inbox", err)
	}
	return fmt.Sprintf("Marked m%d as handled.", seq), nil
}

// handleClearInbox marks the oldest count pending messages as handled, or all
// of them without a count.
func (r *Router) handleClearInbox(ctx context.Context, ev *Event) (string, error) {
	count := 0
	switch len(ev.Args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(ev.Args[0])
		if err != nil {
			return "", usageError("Invalid count %q. Usage: /clearinbox [count]", ev.Args[0])
		}
		count = n
	default:
		return "", usageError("Usage: /clearinbox [count]")
	}
	if err := r.requireInbox(); err != nil {
		return "", err
	}

	cleared, err := r.opts.Inbox.Clear(ctx, count, ev.CallerID)
	if err != nil {
		return "", databaseError("clear the inbox", err)
	}
	if cleared == 0 {
		return "No pending messages to clear.", nil
	}
	return fmt.Sprintf("Cleared %d messages from the inbox.", cleared), nil
}

// preview shortens text to limit runes on one line.
func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit]) + "..."
}
