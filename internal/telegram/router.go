package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/feature/access"
	"tg_group_admin_bot/internal/feature/group"
	"tg_group_admin_bot/internal/logging"
)

const trackTimeout = 3 * time.Second

// UserTracker records users that talk to the bot.
type UserTracker interface {
	EnsureUser(ctx context.Context, profile domain.User) (bool, error)
}

// UserDirectory looks up tracked users.
type UserDirectory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	FindByName(ctx context.Context, name string) (domain.User, error)
}

// InboxStore keeps user messages until an operator handles them.
type InboxStore interface {
	Record(ctx context.Context, msg domain.InboxMessage) (domain.InboxMessage, error)
	Get(ctx context.Context, seq int64) (domain.InboxMessage, error)
	Pending(ctx context.Context, limit int) ([]domain.InboxMessage, error)
	Resolve(ctx context.Context, seq, adminID int64) error
	Clear(ctx context.Context, count int, adminID int64) (int64, error)
}

// TopicStore maps forum topic titles to thread ids.
type TopicStore interface {
	Save(ctx context.Context, chatID int64, title string, threadID int, source string) (domain.Topic, error)
	Lookup(ctx context.Context, chatID int64, title string) (domain.Topic, error)
	List(ctx context.Context, chatID int64) ([]domain.Topic, error)
}

// StatsSource feeds the admin panel.
type StatsSource interface {
	CountUsers(ctx context.Context) (int64, error)
	CountOperators(ctx context.Context) (int64, error)
}

// Options carries the optional collaborators of a Router. The Mongo-backed
// ones are nil when MONGO_URI is not configured.
type Options struct {
	BotName   string
	Users     UserTracker
	Directory UserDirectory
	Stats     StatsSource
	Inbox     InboxStore
	Topics    TopicStore
}

// Router turns updates into command invocations: it parses the command,
// checks the chat kind, asks the gate, runs the handler and sends exactly one
// reply.
type Router struct {
	platform Platform
	registry *group.Registry
	gate     *access.Gate
	opts     Options
	logger   *logrus.Entry

	commands []command
	byName   map[string]command

	selfID       int64
	selfUsername string

	newUpdateID func() string
}

// NewRouter wires the command table to its collaborators.
func NewRouter(platform Platform, registry *group.Registry, gate *access.Gate, logger *logrus.Entry, opts Options) *Router {
	if logger == nil {
		logger = logging.Logger()
	}

	table := commandTable()
	byName := make(map[string]command, len(table))
	for _, cmd := range table {
		byName[cmd.name] = cmd
	}

	return &Router{
		platform:    platform,
		registry:    registry,
		gate:        gate,
		opts:        opts,
		logger:      logger,
		commands:    table,
		byName:      byName,
		newUpdateID: uuid.NewString,
	}
}

// Init learns the bot's own identity and publishes the command menus.
func (r *Router) Init(ctx context.Context) error {
	me, err := r.platform.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot identity: %w", err)
	}
	if me == nil {
		return errors.New("get bot identity: empty response")
	}

	r.selfID = me.ID
	r.selfUsername = me.Username

	r.logger.WithFields(logging.Fields{
		"event":    "bot_identity",
		"bot_id":   me.ID,
		"username": me.Username,
		"groups":   r.registry.Len(),
	}).Info("resolved bot identity")

	r.syncMenus(ctx)
	return nil
}

// HandleUpdate processes one update. It never panics and never returns an
// error: failures are reported to the chat and logged.
func (r *Router) HandleUpdate(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	updateID := r.newUpdateID()

	switch {
	case update.Message != nil:
		r.trackUser(ctx, update.Message)

		ev, ok := newEvent(update.Message)
		if !ok {
			r.observe(ctx, updateID, update.Message)
			return
		}
		ev.UpdateID = updateID
		r.Dispatch(ctx, &ev)
	case update.MyChatMember != nil:
		r.handleMembership(ctx, updateID, update.MyChatMember)
	}
}

// Dispatch runs a parsed command event.
func (r *Router) Dispatch(ctx context.Context, ev *Event) {
	if ev == nil || ev.Command == "" || ev.ChatKind == ChatUnsupported {
		return
	}

	log := logging.Context{
		UserID:   ev.CallerID,
		ChatID:   ev.ChatID,
		Command:  ev.Command,
		UpdateID: ev.UpdateID,
	}.Apply(r.logger)

	if ev.Mention != "" && r.selfUsername != "" && !strings.EqualFold(ev.Mention, r.selfUsername) {
		log.WithField("event", "command_other_bot").Debug("command addressed to another bot")
		return
	}

	cmd, ok := r.byName[ev.Command]
	if !ok {
		if ev.ChatKind == ChatPrivate {
			r.reply(ctx, ev, fmt.Sprintf("Unknown command /%s. Send /help to see what I can do.", ev.Command))
		}
		log.WithField("event", "command_unknown").Debug("ignored unknown command")
		return
	}

	level := cmd.levelFor(ev.ChatKind)
	if level == access.LevelNone {
		r.reply(ctx, ev, wrongChatReply(cmd, ev.ChatKind))
		log.WithField("event", "command_wrong_chat").Info("command used in the wrong chat kind")
		return
	}

	if r.gate.Authorize(ctx, ev.CallerID, ev.ChatID, level) == access.Denied {
		r.reply(ctx, ev, replyForError(cmd.name, &CommandError{Kind: KindAuthorization}))
		log.WithFields(logging.Fields{
			"event": "command_denied",
			"level": level.String(),
		}).Warn("command denied")
		return
	}

	text, err := r.run(ctx, cmd, ev)
	if err != nil {
		r.logCommandError(log, err)
		r.reply(ctx, ev, replyForError(cmd.name, err))
		return
	}

	log.WithField("event", "command_ok").Info("command handled")
	r.reply(ctx, ev, text)
}

func (r *Router) run(ctx context.Context, cmd command, ev *Event) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"event":   "command_panic",
				"command": cmd.name,
				"stack":   string(debug.Stack()),
			}).Error("command handler panicked")
			reply = ""
			err = fmt.Errorf("/%s panicked: %v", cmd.name, rec)
		}
	}()

	return cmd.handle(r, ctx, ev)
}

func (r *Router) logCommandError(log *logrus.Entry, err error) {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		log.WithField("event", "command_failed").WithError(err).Error("command failed")
		return
	}

	entry := log.WithFields(logging.Fields{
		"event": "command_rejected",
		"kind":  cmdErr.Kind.String(),
	})
	if cmdErr.Err != nil {
		entry = entry.WithError(cmdErr.Err)
	}

	switch cmdErr.Kind {
	case KindExternal, KindPersistence:
		entry.Error("command failed")
	default:
		entry.Info("command rejected")
	}
}

// reply sends text to the event's chat as a reply to the command message.
func (r *Router) reply(ctx context.Context, ev *Event, text string) {
	if text == "" {
		return
	}

	params := &bot.SendMessageParams{
		ChatID: ev.ChatID,
		Text:   text,
	}
	if ev.MessageID != 0 {
		params.ReplyParameters = &models.ReplyParameters{
			MessageID:                ev.MessageID,
			AllowSendingWithoutReply: true,
		}
	}

	if _, err := r.platform.SendMessage(ctx, params); err != nil {
		logging.Context{
			ChatID:   ev.ChatID,
			Command:  ev.Command,
			UpdateID: ev.UpdateID,
			Event:    "reply_failed",
		}.Apply(r.logger).WithError(err).Warn("failed to send reply")
	}
}

func wrongChatReply(cmd command, kind ChatKind) string {
	if kind == ChatPrivate {
		return fmt.Sprintf("/%s can only be used in a group chat.", cmd.name)
	}
	return fmt.Sprintf("/%s can only be used in a private chat with the bot.", cmd.name)
}

func (r *Router) trackUser(ctx context.Context, msg *models.Message) {
	if r.opts.Users == nil || msg == nil || msg.From == nil || msg.From.IsBot {
		return
	}

	trackCtx, cancel := context.WithTimeout(ctx, trackTimeout)
	defer cancel()

	_, err := r.opts.Users.EnsureUser(trackCtx, domain.User{
		UserID:     msg.From.ID,
		Username:   msg.From.Username,
		FirstName:  msg.From.FirstName,
		LastChatID: msg.Chat.ID,
	})
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "user_track_failed",
			"user_id": msg.From.ID,
		}).WithError(err).Warn("failed to record user")
	}
}

// handleMembership registers a group when an admin adds the bot to it.
func (r *Router) handleMembership(ctx context.Context, updateID string, upd *models.ChatMemberUpdated) {
	if chatKindOf(upd.Chat.Type) != ChatGroup {
		return
	}
	if !joined(upd.OldChatMember.Type, upd.NewChatMember.Type) {
		return
	}

	log := logging.Context{
		UserID:   upd.From.ID,
		ChatID:   upd.Chat.ID,
		UpdateID: updateID,
	}.Apply(r.logger)

	if _, ok := r.registry.Get(upd.Chat.ID); ok {
		log.WithField("event", "group_rejoined").Info("bot re-added to a managed group")
		return
	}

	adder := upd.From.ID
	if !r.gate.IsGlobalAdmin(adder) && !r.gate.IsChatAdmin(ctx, adder, upd.Chat.ID) {
		log.WithField("event", "group_join_unregistered").Info("bot added by a non-admin, group not registered")
		return
	}

	managed, err := r.registry.Add(upd.Chat.ID, upd.Chat.Title)
	if err != nil {
		log.WithField("event", "group_auto_register_failed").WithError(err).Error("failed to register group")
		return
	}

	log.WithFields(logging.Fields{
		"event": "group_auto_registered",
		"name":  managed.Name,
	}).Info("registered group on join")

	ev := &Event{ChatID: upd.Chat.ID, UpdateID: updateID, Command: "my_chat_member"}
	r.reply(ctx, ev, fmt.Sprintf("This group is now managed as %s (%d).", managed.Name, managed.ChatID))
	r.syncMenus(ctx)
}

func joined(before, after models.ChatMemberType) bool {
	wasOut := before == models.ChatMemberTypeLeft || before == models.ChatMemberTypeBanned
	isIn := after == models.ChatMemberTypeMember || after == models.ChatMemberTypeAdministrator
	return wasOut && isIn
}
