package telegram

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tg_group_admin_bot/internal/feature/access"
	"tg_group_admin_bot/internal/logging"
)

// syncMenus publishes the command menus per scope: public commands by default,
// every private command in each operator's chat, and the group commands for
// administrators of each managed group. Failures are logged and skipped.
// The whole pass shares menuSyncTimeout; scopes left when it runs out are
// counted as skipped.
func (r *Router) syncMenus(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, menuSyncTimeout)
	defer cancel()

	var published, failed, skipped int

	publish := func(scope models.BotCommandScope, commands []models.BotCommand, target int64) {
		if len(commands) == 0 {
			return
		}
		if ctx.Err() != nil {
			skipped++
			return
		}
		if _, err := r.platform.SetMyCommands(ctx, &bot.SetMyCommandsParams{
			Commands: commands,
			Scope:    scope,
		}); err != nil {
			failed++
			r.logger.WithFields(logging.Fields{
				"event":   "menu_sync_failed",
				"chat_id": target,
			}).WithError(err).Warn("failed to publish command menu")
			return
		}
		published++
	}

	publish(&models.BotCommandScopeDefault{}, r.menu(func(c command) bool {
		return c.private == access.LevelPublic
	}), 0)

	operatorMenu := r.menu(func(c command) bool { return c.private != access.LevelNone })
	for _, id := range r.gate.AdminIDs() {
		publish(&models.BotCommandScopeChat{ChatID: id}, operatorMenu, id)
	}

	groupMenu := r.menu(func(c command) bool { return c.group != access.LevelNone })
	for _, g := range r.registry.List() {
		publish(&models.BotCommandScopeChatAdministrators{ChatID: g.ChatID}, groupMenu, g.ChatID)
	}

	r.logger.WithFields(logging.Fields{
		"event":     "menu_sync",
		"published": published,
		"failed":    failed,
		"skipped":   skipped,
	}).Debug("synced command menus")
}

const menuSyncTimeout = 30 * time.Second

func (r *Router) menu(include func(command) bool) []models.BotCommand {
	var out []models.BotCommand
	for _, cmd := range r.commands {
		if include(cmd) {
			out = append(out, models.BotCommand{Command: cmd.name, Description: cmd.description})
		}
	}
	return out
}
