package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/feature/group"
	"tg_group_admin_bot/internal/logging"
)

const listUsersLimit = 30

func (r *Router) handleAddGroup(ctx context.Context, ev *Event) (string, error) {
	first, rest := splitFirst(ev.RawArgs)
	if first == "" {
		return "", usageError("Usage: /addgroup <chat_id> [name]")
	}
	chatID, ok := parseChatID(first)
	if !ok {
		return "", usageError("Invalid chat id %q. Usage: /addgroup <chat_id> [name]", first)
	}

	name := unquote(rest)
	if name == "" {
		name = r.chatTitle(ctx, chatID)
	}

	managed, err := r.registry.Add(chatID, name)
	if err != nil {
		if errors.Is(err, group.ErrInvalidChatID) {
			return "", usageError("Invalid chat id %q. Usage: /addgroup <chat_id> [name]", first)
		}
		return "", persistenceError(err)
	}

	r.syncMenus(ctx)
	return fmt.Sprintf("Group %s (%d) registered.", managed.Name, managed.ChatID), nil
}

func (r *Router) handleRemoveGroup(ctx context.Context, ev *Event) (string, error) {
	if len(ev.Args) != 1 {
		return "", usageError("Usage: /removegroup <chat_id>")
	}
	chatID, ok := parseChatID(ev.Args[0])
	if !ok {
		return "", usageError("Invalid chat id %q. Usage: /removegroup <chat_id>", ev.Args[0])
	}

	existing, _ := r.registry.Get(chatID)
	removed, err := r.registry.Remove(chatID)
	if err != nil {
		return "", persistenceError(err)
	}
	if !removed {
		return fmt.Sprintf("Group %d is not registered.", chatID), nil
	}

	r.syncMenus(ctx)
	return fmt.Sprintf("Group %s (%d) removed.", existing.Name, chatID), nil
}

func (r *Router) handleListGroups(_ context.Context, _ *Event) (string, error) {
	groups := r.registry.List()
	if len(groups) == 0 {
		return "No managed groups yet. Use /addgroup <chat_id> [name] to add one.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Managed groups (%d):", len(groups))
	for i, g := range groups {
		fmt.Fprintf(&b, "\n%d. %s (%d)", i+1, g.Name, g.ChatID)
	}
	return b.String(), nil
}

func (r *Router) handleEditGroupName(_ context.Context, ev *Event) (string, error) {
	first, rest := splitFirst(ev.RawArgs)
	name := unquote(rest)
	if first == "" || name == "" {
		return "", usageError("Usage: /editgroupname <chat_id> <name>")
	}
	chatID, ok := parseChatID(first)
	if !ok {
		return "", usageError("Invalid chat id %q. Usage: /editgroupname <chat_id> <name>", first)
	}

	before, _ := r.registry.Get(chatID)
	managed, found, err := r.registry.Rename(chatID, name)
	if err != nil {
		return "", persistenceError(err)
	}
	if !found {
		return "", preconditionError("Group %d is not registered. Use /addgroup first.", chatID)
	}

	return fmt.Sprintf("Group %d renamed from %s to %s.", chatID, before.Name, managed.Name), nil
}

func (r *Router) handleListUsers(ctx context.Context, _ *Event) (string, error) {
	if r.opts.Directory == nil {
		return "", preconditionError("User tracking is disabled. Set MONGO_URI to enable it.")
	}

	users, err := r.opts.Directory.ListRecent(ctx, listUsersLimit)
	if err != nil {
		return "", databaseError("load users", err)
	}
	if len(users) == 0 {
		return "No users tracked yet.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recently seen users (%d):", len(users))
	for i, u := range users {
		fmt.Fprintf(&b, "\n%d. %s", i+1, u.DisplayName())
		if u.Role == domain.RoleAdmin {
			b.WriteString(" [admin]")
		}
		if !u.LastSeenAt.IsZero() {
			fmt.Fprintf(&b, " - last seen %s", u.LastSeenAt.UTC().Format("2006-01-02 15:04"))
		}
	}
	return b.String(), nil
}

// chatTitle asks the platform for a chat's title. Failures fall back to the
// registry's default name.
func (r *Router) chatTitle(ctx context.Context, chatID int64) string {
	chat, err := r.platform.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil || chat == nil {
		r.logger.WithFields(logging.Fields{
			"event":   "chat_title_lookup_failed",
			"chat_id": chatID,
		}).WithError(err).Debug("could not fetch chat title")
		return ""
	}
	return strings.TrimSpace(chat.Title)
}
