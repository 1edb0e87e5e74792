package telegram

import (
	"context"
	"fmt"
	"strings"

	"tg_group_admin_bot/internal/domain"
)

func (r *Router) requireTopics() error {
	if r.opts.Topics == nil {
		return preconditionError("Topic names are disabled. Set MONGO_URI to enable them.")
	}
	return nil
}

// handleTopics lists the known topics of the current group, or in private of
// the group given as argument.
func (r *Router) handleTopics(ctx context.Context, ev *Event) (string, error) {
	chatID := ev.ChatID
	if ev.ChatKind == ChatPrivate {
		if len(ev.Args) != 1 {
			return "", usageError("Usage: /topics <group>")
		}
		target, ok := r.groupTarget(ev.Args[0])
		if !ok {
			return "", usageError("Invalid group %q. Usage: /topics <group>", ev.Args[0])
		}
		if !r.isManaged(target) {
			return "", preconditionError("Group %d is not registered. Use /addgroup first.", target)
		}
		chatID = target
	}
	if err := r.requireTopics(); err != nil {
		return "", err
	}

	topics, err := r.opts.Topics.List(ctx, chatID)
	if err != nil {
		return "", databaseError("load topics", err)
	}

	label := r.groupLabel(chatID)
	if ev.ChatKind == ChatGroup && ev.ChatTitle != "" && !r.isManaged(chatID) {
		label = ev.ChatTitle
	}
	if len(topics) == 0 {
		return fmt.Sprintf("No topics known for %s yet. New topics are picked up when they are created; add older ones with /addtopic \"Name\" <thread_id>.", label), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topics in %s (%d):", label, len(topics))
	for _, t := range topics {
		fmt.Fprintf(&b, "\n- %s: topic_%d", t.Title, t.ThreadID)
		if t.Source == domain.TopicManual {
			b.WriteString(" (added manually)")
		}
	}
	b.WriteString("\n\nUse the name in quotes or topic_<id> with /say, /forward and the /send_ commands.")
	return b.String(), nil
}

// handleAddTopic maps a topic name to a thread id. The last argument is the
// thread id; everything before it is the name.
func (r *Router) handleAddTopic(ctx context.Context, ev *Event) (string, error) {
	const usage = `Usage: /addtopic "Name" <thread_id>`

	raw := strings.TrimSpace(ev.RawArgs)
	idx := strings.LastIndexAny(raw, " \t\n")
	if idx < 0 {
		return "", usageError(usage)
	}
	name := unquote(raw[:idx])
	threadID, ok := parseThreadID(raw[idx+1:])
	if name == "" || !ok {
		return "", usageError(usage)
	}
	if err := r.requireTopics(); err != nil {
		return "", err
	}

	saved, err := r.opts.Topics.Save(ctx, ev.ChatID, name, threadID, domain.TopicManual)
	if err != nil {
		return "", databaseError("save the topic", err)
	}
	return fmt.Sprintf("Topic %q mapped to topic_%d.", saved.Title, saved.ThreadID), nil
}
