package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// mutedPermissions revokes every send permission.
func mutedPermissions() *models.ChatPermissions {
	return &models.ChatPermissions{}
}

// restrictedPermissions revokes sending but lets the user keep inviting.
func restrictedPermissions() *models.ChatPermissions {
	return &models.ChatPermissions{CanInviteUsers: true}
}

// memberPermissions restores what a regular member can send.
func memberPermissions() *models.ChatPermissions {
	return &models.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanInviteUsers:        true,
	}
}

// replyTarget returns the user the command was replying to.
func replyTarget(ev *Event, verb string) (*RepliedMessage, error) {
	if ev.Reply == nil {
		return nil, preconditionError("Reply to a message from the user you want to %s.", verb)
	}
	if ev.Reply.SenderID == 0 {
		return nil, preconditionError("Cannot %s: the replied message has no identifiable sender.", verb)
	}
	return ev.Reply, nil
}

// removableTarget adds the guards shared by /kick and /ban.
func (r *Router) removableTarget(ev *Event, verb string) (*RepliedMessage, error) {
	target, err := replyTarget(ev, verb)
	if err != nil {
		return nil, err
	}
	if r.selfID != 0 && target.SenderID == r.selfID {
		return nil, preconditionError("I cannot %s myself.", verb)
	}
	if r.gate.IsGlobalAdmin(target.SenderID) {
		return nil, preconditionError("Cannot %s an admin.", verb)
	}
	return target, nil
}

func (r *Router) handleMute(ctx context.Context, ev *Event) (string, error) {
	target, err := replyTarget(ev, "mute")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      ev.ChatID,
		UserID:      target.SenderID,
		Permissions: mutedPermissions(),
	}); err != nil {
		return "", externalError("mute the user", err)
	}

	return fmt.Sprintf("%s has been muted.", target.SenderName), nil
}

func (r *Router) handleUnmute(ctx context.Context, ev *Event) (string, error) {
	target, err := replyTarget(ev, "unmute")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      ev.ChatID,
		UserID:      target.SenderID,
		Permissions: memberPermissions(),
	}); err != nil {
		return "", externalError("unmute the user", err)
	}

	return fmt.Sprintf("%s has been unmuted.", target.SenderName), nil
}

func (r *Router) handleRestrict(ctx context.Context, ev *Event) (string, error) {
	target, err := replyTarget(ev, "restrict")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      ev.ChatID,
		UserID:      target.SenderID,
		Permissions: restrictedPermissions(),
	}); err != nil {
		return "", externalError("restrict the user", err)
	}

	return fmt.Sprintf("%s has been restricted.", target.SenderName), nil
}

func (r *Router) handleUnrestrict(ctx context.Context, ev *Event) (string, error) {
	target, err := replyTarget(ev, "unrestrict")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      ev.ChatID,
		UserID:      target.SenderID,
		Permissions: memberPermissions(),
	}); err != nil {
		return "", externalError("lift the restrictions", err)
	}

	return fmt.Sprintf("%s is no longer restricted.", target.SenderName), nil
}

// handleKick removes the user without a lasting ban: ban, then lift the ban so
// they can rejoin through an invite.
func (r *Router) handleKick(ctx context.Context, ev *Event) (string, error) {
	target, err := r.removableTarget(ev, "kick")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: ev.ChatID,
		UserID: target.SenderID,
	}); err != nil {
		return "", externalError("kick the user", err)
	}

	if _, err := r.platform.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       ev.ChatID,
		UserID:       target.SenderID,
		OnlyIfBanned: true,
	}); err != nil {
		return "", externalError("lift the ban after kicking (the user stays banned, use /unban)", err)
	}

	return fmt.Sprintf("%s has been kicked.", target.SenderName), nil
}

func (r *Router) handleBan(ctx context.Context, ev *Event) (string, error) {
	target, err := r.removableTarget(ev, "ban")
	if err != nil {
		return "", err
	}

	if _, err := r.platform.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: ev.ChatID,
		UserID: target.SenderID,
	}); err != nil {
		return "", externalError("ban the user", err)
	}

	return fmt.Sprintf("%s has been banned.", target.SenderName), nil
}

// handleUnban accepts either a reply or a numeric user id, since banned users
// cannot post new messages to reply to.
func (r *Router) handleUnban(ctx context.Context, ev *Event) (string, error) {
	var (
		userID int64
		label  string
	)

	switch {
	case len(ev.Args) > 0:
		id, ok := parseChatID(ev.Args[0])
		if !ok || id < 0 {
			return "", usageError("Invalid user id %q. Usage: /unban <user_id> or reply to a message", ev.Args[0])
		}
		userID = id
		label = fmt.Sprintf("User %d", id)
	case ev.Reply != nil && ev.Reply.SenderID != 0:
		userID = ev.Reply.SenderID
		label = ev.Reply.SenderName
	default:
		return "", usageError("Usage: /unban <user_id> or reply to a message from the user")
	}

	if _, err := r.platform.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       ev.ChatID,
		UserID:       userID,
		OnlyIfBanned: true,
	}); err != nil {
		return "", externalError("unban the user", err)
	}

	return fmt.Sprintf("%s has been unbanned.", label), nil
}
