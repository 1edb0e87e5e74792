package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"tg_group_admin_bot/internal/feature/topic"
)

const (
	// positions up to this value name a /listgroups entry instead of a chat
	maxGroupIndex = 999
	// supergroup ids are -100 followed by the bare id
	supergroupBase int64 = 1000000000000
)

// groupTarget resolves a group argument. It accepts a /listgroups position,
// a chat id, or a registered supergroup id typed without its -100 prefix.
func (r *Router) groupTarget(token string) (int64, bool) {
	id, ok := parseChatID(token)
	if !ok {
		return 0, false
	}
	if id < 0 {
		return id, true
	}

	if id <= maxGroupIndex {
		if groups := r.registry.List(); id <= int64(len(groups)) {
			return groups[id-1].ChatID, true
		}
	}
	if id < supergroupBase {
		if full := -supergroupBase - id; r.isManaged(full) {
			return full, true
		}
	}
	return id, true
}

func (r *Router) isManaged(chatID int64) bool {
	_, ok := r.registry.Get(chatID)
	return ok
}

// nextToken splits off the first argument. A quoted first argument may
// contain spaces; quoted reports whether it was quoted.
func nextToken(raw string) (token, rest string, quoted bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}

	if q := raw[0]; q == '"' || q == '\'' {
		if end := strings.IndexByte(raw[1:], q); end >= 0 {
			return strings.TrimSpace(raw[1 : end+1]), strings.TrimSpace(raw[end+2:]), true
		}
	}

	token, rest = splitFirst(raw)
	return token, rest, false
}

// parseThreadID accepts "topic_12" or "12".
func parseThreadID(token string) (int, bool) {
	token = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), "topic_")
	id, err := strconv.Atoi(token)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// resolveTopic turns a topic argument into a thread id in chatID. Quoted
// arguments are always names; bare ones are tried as ids first.
func (r *Router) resolveTopic(ctx context.Context, chatID int64, raw string, quoted bool) (int, error) {
	if !quoted {
		if id, ok := parseThreadID(raw); ok {
			return id, nil
		}
	}

	name := strings.TrimSpace(raw)
	if r.opts.Topics == nil {
		return 0, preconditionError("Topic names need MONGO_URI. Use topic_<id> instead of %q.", name)
	}

	found, err := r.opts.Topics.Lookup(ctx, chatID, name)
	if errors.Is(err, topic.ErrNotFound) {
		return 0, preconditionError("Unknown topic %q in %s. Use /topics to list known topics or /addtopic to add one.", name, r.groupLabel(chatID))
	}
	if err != nil {
		return 0, databaseError("look up the topic", err)
	}
	return found.ThreadID, nil
}

// topicSuffix renders " (topic 12)" for confirmations.
func topicSuffix(threadID int) string {
	if threadID == 0 {
		return ""
	}
	return " (topic " + strconv.Itoa(threadID) + ")"
}
