package telegram

import (
	"context"

	"tg_group_admin_bot/internal/feature/access"
)

// handlerFunc runs one command. The returned text is sent as the single reply;
// an empty reply means the handler's own platform call was the visible result.
type handlerFunc func(r *Router, ctx context.Context, ev *Event) (string, error)

// command describes one entry of the command table. A LevelNone level means
// the command is not available in that chat kind.
type command struct {
	name        string
	usage       string
	description string
	private     access.Level
	group       access.Level
	handle      handlerFunc
}

func (c command) levelFor(kind ChatKind) access.Level {
	switch kind {
	case ChatPrivate:
		return c.private
	case ChatGroup:
		return c.group
	default:
		return access.LevelNone
	}
}

// operatorOnly reports whether only global admins can use the command anywhere.
func (c command) operatorOnly() bool {
	for _, level := range []access.Level{c.private, c.group} {
		if level == access.LevelPublic || level == access.LevelChatAdmin {
			return false
		}
	}
	return true
}

func (c command) usageLine() string {
	if c.usage == "" {
		return "/" + c.name
	}
	return "/" + c.name + " " + c.usage
}

func commandTable() []command {
	return []command{
		{name: "start", description: "Start the bot", private: access.LevelPublic, handle: (*Router).handleStart},
		{name: "help", description: "Show available commands", private: access.LevelPublic, handle: (*Router).handleHelp},
		{name: "status", description: "Show your membership status", private: access.LevelPublic, group: access.LevelPublic, handle: (*Router).handleStatus},
		{name: "admin", description: "Show the admin panel", private: access.LevelGlobalAdmin, handle: (*Router).handleAdmin},
		{name: "addgroup", usage: "<chat_id> [name]", description: "Register a group", private: access.LevelGlobalAdmin, handle: (*Router).handleAddGroup},
		{name: "removegroup", usage: "<chat_id>", description: "Unregister a group", private: access.LevelGlobalAdmin, handle: (*Router).handleRemoveGroup},
		{name: "listgroups", description: "List managed groups", private: access.LevelGlobalAdmin, handle: (*Router).handleListGroups},
		{name: "editgroupname", usage: "<chat_id> <name>", description: "Rename a managed group", private: access.LevelGlobalAdmin, handle: (*Router).handleEditGroupName},
		{name: "listusers", description: "List recently seen users", private: access.LevelGlobalAdmin, handle: (*Router).handleListUsers},
		{name: "say", usage: "[group] [topic] <text>", description: "Send a message as the bot", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: (*Router).handleSay},
		{name: "send_photo", usage: "[group] [topic]", description: "Copy the replied photo", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: mediaHandler(MediaPhoto)},
		{name: "send_video", usage: "[group] [topic]", description: "Copy the replied video", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: mediaHandler(MediaVideo)},
		{name: "send_document", usage: "[group] [topic]", description: "Copy the replied document", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: mediaHandler(MediaDocument)},
		{name: "forward", usage: "<group> [topic]", description: "Forward the replied message to a managed group", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: (*Router).handleForward},
		{name: "broadcast", usage: "<text>", description: "Send a message to every managed group", private: access.LevelGlobalAdmin, handle: (*Router).handleBroadcast},
		{name: "reply", usage: "[user_id|index|m<id>|@username] <text>", description: "Send a direct message to a user", private: access.LevelGlobalAdmin, handle: (*Router).handleReply},
		{name: "inbox", description: "List pending user messages", private: access.LevelGlobalAdmin, handle: (*Router).handleInbox},
		{name: "view", usage: "m<id>", description: "Show an inbox message", private: access.LevelGlobalAdmin, handle: (*Router).handleView},
		{name: "resolve", usage: "m<id>", description: "Mark an inbox message as handled", private: access.LevelGlobalAdmin, handle: (*Router).handleResolve},
		{name: "clearinbox", usage: "[count]", description: "Mark pending inbox messages as handled", private: access.LevelGlobalAdmin, handle: (*Router).handleClearInbox},
		{name: "topics", usage: "[group]", description: "List known forum topics", private: access.LevelGlobalAdmin, group: access.LevelChatAdmin, handle: (*Router).handleTopics},
		{name: "addtopic", usage: "\"Name\" <thread_id>", description: "Map a topic name to its thread id", group: access.LevelChatAdmin, handle: (*Router).handleAddTopic},
		{name: "mute", description: "Mute the replied user", group: access.LevelChatAdmin, handle: (*Router).handleMute},
		{name: "unmute", description: "Unmute the replied user", group: access.LevelChatAdmin, handle: (*Router).handleUnmute},
		{name: "restrict", description: "Stop the replied user from posting", group: access.LevelChatAdmin, handle: (*Router).handleRestrict},
		{name: "unrestrict", description: "Lift restrictions from the replied user", group: access.LevelChatAdmin, handle: (*Router).handleUnrestrict},
		{name: "kick", description: "Remove the replied user", group: access.LevelChatAdmin, handle: (*Router).handleKick},
		{name: "ban", description: "Ban the replied user", group: access.LevelChatAdmin, handle: (*Router).handleBan},
		{name: "unban", usage: "[user_id]", description: "Lift a ban", group: access.LevelChatAdmin, handle: (*Router).handleUnban},
		{name: "groupinfo", description: "Show information about this group", group: access.LevelChatAdmin, handle: (*Router).handleGroupInfo},
	}
}
