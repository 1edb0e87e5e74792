package domain

import (
	"strconv"
	"time"
)

// User represents a Telegram user who interacted with the bot.
type User struct {
	UserID     int64     `bson:"user_id" json:"user_id"`
	Username   string    `bson:"username,omitempty" json:"username,omitempty"`
	FirstName  string    `bson:"first_name,omitempty" json:"first_name,omitempty"`
	Role       string    `bson:"role" json:"role"`
	LastChatID int64     `bson:"last_chat_id,omitempty" json:"last_chat_id,omitempty"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
	LastSeenAt time.Time `bson:"last_seen_at" json:"last_seen_at"`
}

// DisplayName renders the user as "First (@username)", falling back to the id.
func (u User) DisplayName() string {
	name := u.FirstName
	if name == "" {
		name = "User"
	}
	if u.Username != "" {
		return name + " (@" + u.Username + ")"
	}
	return name + " (ID: " + strconv.FormatInt(u.UserID, 10) + ")"
}
