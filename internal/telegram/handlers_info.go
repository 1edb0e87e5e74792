package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"tg_group_admin_bot/internal/feature/access"
)

const (
	statusGroupLimit = 20
	// statusBudget bounds the private /status walk across all groups.
	statusBudget = 20 * time.Second
)

func (r *Router) handleStart(_ context.Context, ev *Event) (string, error) {
	name := r.opts.BotName
	if name == "" {
		name = "the group admin bot"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s! I am %s.\n", ev.CallerName, name)
	b.WriteString("Add me to a group as an administrator and I will help moderate it.\n")
	b.WriteString("Send /help to see the available commands.")
	if r.gate.IsGlobalAdmin(ev.CallerID) {
		b.WriteString("\nYou are a bot admin. Send /admin for the admin panel.")
	}
	return b.String(), nil
}

// handleHelp lists the commands the caller may use. Operator-only commands are
// shown to global admins only.
func (r *Router) handleHelp(_ context.Context, ev *Event) (string, error) {
	isOperator := r.gate.IsGlobalAdmin(ev.CallerID)

	var private, group []string
	for _, cmd := range r.commands {
		if cmd.operatorOnly() && !isOperator {
			continue
		}
		line := cmd.usageLine() + " - " + cmd.description
		if cmd.private != access.LevelNone {
			private = append(private, line)
		}
		if cmd.group != access.LevelNone {
			group = append(group, line)
		}
	}

	var b strings.Builder
	b.WriteString("Private chat commands:")
	for _, line := range private {
		b.WriteString("\n" + line)
	}
	b.WriteString("\n\nGroup commands (group admins):")
	for _, line := range group {
		b.WriteString("\n" + line)
	}
	return b.String(), nil
}

func (r *Router) handleAdmin(ctx context.Context, _ *Event) (string, error) {
	var b strings.Builder
	b.WriteString("Admin panel")
	fmt.Fprintf(&b, "\nManaged groups: %d", r.registry.Len())
	fmt.Fprintf(&b, "\nBot admins: %d", len(r.gate.AdminIDs()))

	if r.opts.Stats == nil {
		b.WriteString("\nUser tracking: disabled")
	} else {
		b.WriteString("\nTracked users: " + countOrUnavailable(r.opts.Stats.CountUsers(ctx)))
		b.WriteString("\nOperators on record: " + countOrUnavailable(r.opts.Stats.CountOperators(ctx)))
	}
	if r.opts.Inbox == nil {
		b.WriteString("\nInbox: disabled")
	} else if pending, err := r.opts.Inbox.Pending(ctx, inboxListLimit); err != nil {
		b.WriteString("\nPending inbox messages: unavailable")
	} else {
		fmt.Fprintf(&b, "\nPending inbox messages: %d", len(pending))
	}

	b.WriteString("\n\nGroups: /addgroup /removegroup /listgroups /editgroupname /topics")
	b.WriteString("\nMessaging: /say /send_photo /send_video /send_document /forward /broadcast /reply")
	b.WriteString("\nInbox: /inbox /view /resolve /clearinbox")
	b.WriteString("\nUsers: /listusers")
	return b.String(), nil
}

func countOrUnavailable(count int64, err error) string {
	if err != nil {
		return "unavailable"
	}
	return fmt.Sprintf("%d", count)
}

// handleStatus reports the caller's membership: in a group for that group, in
// private across the first registered groups.
func (r *Router) handleStatus(ctx context.Context, ev *Event) (string, error) {
	role := "member"
	if r.gate.IsGlobalAdmin(ev.CallerID) {
		role = "bot admin"
	}

	if ev.ChatKind == ChatGroup {
		status, err := r.lookupStatus(ctx, ev.ChatID, ev.CallerID)
		if err != nil {
			return "", externalError("check your status", err)
		}
		title := ev.ChatTitle
		if title == "" {
			title = r.groupLabel(ev.ChatID)
		}
		return fmt.Sprintf("Your status in %s: %s\nBot role: %s", title, status, role), nil
	}

	groups := r.registry.List()
	var b strings.Builder
	fmt.Fprintf(&b, "Bot role: %s", role)
	if len(groups) == 0 {
		b.WriteString("\nNo managed groups.")
		return b.String(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, statusBudget)
	defer cancel()

	b.WriteString("\nYour status in managed groups:")
	for i, g := range groups {
		if i == statusGroupLimit {
			fmt.Fprintf(&b, "\n... and %d more", len(groups)-statusGroupLimit)
			break
		}
		if ctx.Err() != nil {
			checkable := len(groups)
			if checkable > statusGroupLimit {
				checkable = statusGroupLimit
			}
			fmt.Fprintf(&b, "\n... %d more not checked (time limit reached)", checkable-i)
			break
		}
		status, err := r.lookupStatus(ctx, g.ChatID, ev.CallerID)
		if err != nil {
			status = "unknown (" + platformReason(err) + ")"
		}
		fmt.Fprintf(&b, "\n- %s (%d): %s", g.Name, g.ChatID, status)
	}
	return b.String(), nil
}

func (r *Router) lookupStatus(ctx context.Context, chatID, userID int64) (string, error) {
	member, err := r.platform.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return "", err
	}
	if member == nil {
		return "unknown", nil
	}
	return memberStatus(member.Type), nil
}

func (r *Router) handleGroupInfo(ctx context.Context, ev *Event) (string, error) {
	chat, err := r.platform.GetChat(ctx, &bot.GetChatParams{ChatID: ev.ChatID})
	if err != nil {
		return "", externalError("fetch group information", err)
	}
	if chat == nil {
		return "", externalError("fetch group information", fmt.Errorf("empty response"))
	}

	members := "unknown"
	if count, err := r.platform.GetChatMemberCount(ctx, &bot.GetChatMemberCountParams{ChatID: ev.ChatID}); err == nil {
		members = fmt.Sprintf("%d", count)
	}

	var b strings.Builder
	b.WriteString("Group information")
	fmt.Fprintf(&b, "\nTitle: %s", chat.Title)
	fmt.Fprintf(&b, "\nID: %d", chat.ID)
	fmt.Fprintf(&b, "\nType: %s", chat.Type)
	fmt.Fprintf(&b, "\nMembers: %s", members)
	if g, ok := r.registry.Get(ev.ChatID); ok {
		fmt.Fprintf(&b, "\nManaged as: %s", g.Name)
	} else {
		b.WriteString("\nManaged: no")
	}
	if desc := strings.TrimSpace(chat.Description); desc != "" {
		fmt.Fprintf(&b, "\nDescription: %s", desc)
	}
	return b.String(), nil
}
