package telegram

import (
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

// ChatKind is the coarse chat classification commands are scoped by.
type ChatKind int

const (
	ChatUnsupported ChatKind = iota
	ChatPrivate
	ChatGroup
)

func (k ChatKind) String() string {
	switch k {
	case ChatPrivate:
		return "private"
	case ChatGroup:
		return "group"
	default:
		return "unsupported"
	}
}

func chatKindOf(chatType models.ChatType) ChatKind {
	switch chatType {
	case models.ChatTypePrivate:
		return ChatPrivate
	case models.ChatTypeGroup, models.ChatTypeSupergroup:
		return ChatGroup
	default:
		return ChatUnsupported
	}
}

// MediaKind describes the media attached to a message.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaVideo
	MediaDocument
	MediaOther
)

func (m MediaKind) String() string {
	switch m {
	case MediaPhoto:
		return "photo"
	case MediaVideo:
		return "video"
	case MediaDocument:
		return "document"
	case MediaOther:
		return "other media"
	default:
		return "none"
	}
}

func mediaOf(msg *models.Message) MediaKind {
	switch {
	case msg == nil:
		return MediaNone
	case len(msg.Photo) > 0:
		return MediaPhoto
	case msg.Video != nil:
		return MediaVideo
	case msg.Document != nil:
		return MediaDocument
	case msg.Audio != nil, msg.Voice != nil, msg.Animation != nil, msg.Sticker != nil, msg.VideoNote != nil:
		return MediaOther
	default:
		return MediaNone
	}
}

// RepliedMessage is the message a command was sent in reply to.
type RepliedMessage struct {
	MessageID   int
	ChatID      int64
	SenderID    int64
	SenderName  string
	SenderIsBot bool
	Media       MediaKind
}

// Event is the per-command context handed to handlers. It is never persisted.
type Event struct {
	UpdateID   string
	CallerID   int64
	CallerName string
	ChatID     int64
	ChatKind   ChatKind
	ChatTitle  string
	MessageID  int
	Command    string
	// Mention is the bot username after "@" in "/cmd@name", if any.
	Mention string
	Args    []string
	RawArgs string
	Media   MediaKind
	// ThreadID is the forum topic the command was sent in, 0 outside topics.
	ThreadID int
	Reply    *RepliedMessage
}

// parseCommand splits "/cmd@bot rest" into its parts. ok is false for text that
// is not a command.
func parseCommand(text string) (command, mention, rawArgs string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", "", false
	}

	head := text
	if idx := strings.IndexAny(text, " \t\n"); idx >= 0 {
		head = text[:idx]
		rawArgs = strings.TrimSpace(text[idx+1:])
	}

	command = strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(command, '@'); at >= 0 {
		mention = command[at+1:]
		command = command[:at]
	}
	if command == "" {
		return "", "", "", false
	}

	return strings.ToLower(command), mention, rawArgs, true
}

// newEvent builds an Event from a message carrying a command in its text or
// media caption.
func newEvent(msg *models.Message) (Event, bool) {
	if msg == nil || msg.From == nil {
		return Event{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	command, mention, rawArgs, ok := parseCommand(text)
	if !ok {
		return Event{}, false
	}

	ev := Event{
		CallerID:   msg.From.ID,
		CallerName: displayName(msg.From),
		ChatID:     msg.Chat.ID,
		ChatKind:   chatKindOf(msg.Chat.Type),
		ChatTitle:  msg.Chat.Title,
		MessageID:  msg.ID,
		Command:    command,
		Mention:    mention,
		Args:       strings.Fields(rawArgs),
		RawArgs:    rawArgs,
		Media:      mediaOf(msg),
	}
	if msg.IsTopicMessage {
		ev.ThreadID = msg.MessageThreadID
	}

	if reply := msg.ReplyToMessage; reply != nil && !isTopicRoot(msg, reply) {
		replied := &RepliedMessage{
			MessageID: reply.ID,
			ChatID:    reply.Chat.ID,
			Media:     mediaOf(reply),
		}
		if reply.From != nil {
			replied.SenderID = reply.From.ID
			replied.SenderName = displayName(reply.From)
			replied.SenderIsBot = reply.From.IsBot
		}
		ev.Reply = replied
	}

	return ev, true
}

// isTopicRoot reports whether reply is only the topic-created message that
// Telegram attaches to every message posted in a forum topic.
func isTopicRoot(msg, reply *models.Message) bool {
	if !msg.IsTopicMessage {
		return false
	}
	return reply.ForumTopicCreated != nil || reply.ID == msg.MessageThreadID
}

func displayName(user *models.User) string {
	if user == nil {
		return ""
	}

	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	switch {
	case name != "" && user.Username != "":
		return name + " (@" + user.Username + ")"
	case name != "":
		return name
	case user.Username != "":
		return "@" + user.Username
	default:
		return "user " + strconv.FormatInt(user.ID, 10)
	}
}

// splitFirst returns the first whitespace-delimited token and the trimmed rest.
func splitFirst(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	idx := strings.IndexAny(raw, " \t\n")
	if idx < 0 {
		return raw, ""
	}
	return raw[:idx], strings.TrimSpace(raw[idx+1:])
}

// parseChatID parses a signed, non-zero chat or user id.
func parseChatID(token string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(token), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// unquote strips one pair of matching surrounding quotes.
func unquote(value string) string {
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return strings.TrimSpace(value[1 : len(value)-1])
		}
	}
	return value
}
