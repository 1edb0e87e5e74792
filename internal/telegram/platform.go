package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultCallTimeout bounds every Bot API call made by handlers.
const DefaultCallTimeout = 15 * time.Second

// Platform is the subset of *bot.Bot the router and handlers use.
type Platform interface {
	GetMe(ctx context.Context) (*models.User, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error)
	ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error)
	RestrictChatMember(ctx context.Context, params *bot.RestrictChatMemberParams) (bool, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error)
	GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error)
	GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error)
	GetChatMemberCount(ctx context.Context, params *bot.GetChatMemberCountParams) (int, error)
	SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error)
}

// boundedPlatform applies a per-call deadline on top of the library's own HTTP
// timeouts.
type boundedPlatform struct {
	next    Platform
	timeout time.Duration
}

// Bounded wraps p so that no single call can block longer than timeout.
func Bounded(p Platform, timeout time.Duration) Platform {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &boundedPlatform{next: p, timeout: timeout}
}

func (b *boundedPlatform) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *boundedPlatform) GetMe(ctx context.Context) (*models.User, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.GetMe(ctx)
}

func (b *boundedPlatform) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.SendMessage(ctx, params)
}

func (b *boundedPlatform) CopyMessage(ctx context.Context, params *bot.CopyMessageParams) (*models.MessageID, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.CopyMessage(ctx, params)
}

func (b *boundedPlatform) ForwardMessage(ctx context.Context, params *bot.ForwardMessageParams) (*models.Message, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.ForwardMessage(ctx, params)
}

func (b *boundedPlatform) RestrictChatMember(ctx context.Context, params *bot.RestrictChatMemberParams) (bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.RestrictChatMember(ctx, params)
}

func (b *boundedPlatform) BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.BanChatMember(ctx, params)
}

func (b *boundedPlatform) UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.UnbanChatMember(ctx, params)
}

func (b *boundedPlatform) GetChat(ctx context.Context, params *bot.GetChatParams) (*models.ChatFullInfo, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.GetChat(ctx, params)
}

func (b *boundedPlatform) GetChatMember(ctx context.Context, params *bot.GetChatMemberParams) (*models.ChatMember, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.GetChatMember(ctx, params)
}

func (b *boundedPlatform) GetChatMemberCount(ctx context.Context, params *bot.GetChatMemberCountParams) (int, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.GetChatMemberCount(ctx, params)
}

func (b *boundedPlatform) SetMyCommands(ctx context.Context, params *bot.SetMyCommandsParams) (bool, error) {
	ctx, cancel := b.bound(ctx)
	defer cancel()
	return b.next.SetMyCommands(ctx, params)
}

// ChatAdminLookup answers chat admin questions with getChatMember. It
// satisfies access.ChatAdminChecker.
type ChatAdminLookup struct {
	platform Platform
}

// NewChatAdminLookup constructs a ChatAdminLookup.
func NewChatAdminLookup(platform Platform) *ChatAdminLookup {
	return &ChatAdminLookup{platform: platform}
}

// IsChatAdmin reports whether userID is the creator or an administrator of chatID.
func (l *ChatAdminLookup) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if l == nil || l.platform == nil {
		return false, errors.New("chat admin lookup is not initialized")
	}

	member, err := l.platform.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}
	if member == nil {
		return false, errors.New("get chat member: empty response")
	}

	return isAdminMember(member.Type), nil
}

func isAdminMember(memberType models.ChatMemberType) bool {
	return memberType == models.ChatMemberTypeOwner || memberType == models.ChatMemberTypeAdministrator
}

// memberStatus renders a chat member type the way Telegram names it.
func memberStatus(memberType models.ChatMemberType) string {
	switch memberType {
	case models.ChatMemberTypeOwner:
		return "owner"
	case models.ChatMemberTypeAdministrator:
		return "administrator"
	case models.ChatMemberTypeMember:
		return "member"
	case models.ChatMemberTypeRestricted:
		return "restricted"
	case models.ChatMemberTypeLeft:
		return "left"
	case models.ChatMemberTypeBanned:
		return "banned"
	default:
		return string(memberType)
	}
}
