package domain

import (
	"strconv"
	"time"
)

// Inbox message sources.
const (
	SourcePrivate = "private"
	SourceMention = "mention"
)

// InboxMessage is a user message kept for the operators to review. Seq is the
// short number operators type as "m<seq>".
type InboxMessage struct {
	Seq          int64      `bson:"seq"`
	Source       string     `bson:"source"`
	ChatID       int64      `bson:"chat_id"`
	ChatTitle    string     `bson:"chat_title,omitempty"`
	MessageID    int        `bson:"message_id"`
	FromID       int64      `bson:"from_id"`
	FromUsername string     `bson:"from_username,omitempty"`
	FromFirst    string     `bson:"from_first,omitempty"`
	Text         string     `bson:"text,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	Handled      bool       `bson:"handled"`
	HandledBy    int64      `bson:"handled_by,omitempty"`
	HandledAt    *time.Time `bson:"handled_at,omitempty"`
}

// Ref renders the operator-facing reference, e.g. "m12".
func (m InboxMessage) Ref() string {
	return "m" + strconv.FormatInt(m.Seq, 10)
}

// Sender renders "First @username", falling back to the sender id.
func (m InboxMessage) Sender() string {
	name := m.FromFirst
	if name == "" {
		name = "user " + strconv.FormatInt(m.FromID, 10)
	}
	if m.FromUsername != "" {
		return name + " @" + m.FromUsername
	}
	return name
}
