// Package access decides whether a caller may run a command, combining the
// configured operator allowlist with the platform's live chat admin status.
package access

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"tg_group_admin_bot/internal/logging"
)

const chatAdminTimeout = 5 * time.Second

// Level is the privilege a command requires in a given chat kind.
type Level int

const (
	// LevelNone marks a command as unavailable in a chat kind.
	LevelNone Level = iota
	// LevelPublic needs no privilege.
	LevelPublic
	// LevelChatAdmin needs a global admin or an admin of the current chat.
	LevelChatAdmin
	// LevelGlobalAdmin needs a configured operator.
	LevelGlobalAdmin
)

func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelChatAdmin:
		return "chat_admin"
	case LevelGlobalAdmin:
		return "global_admin"
	default:
		return "none"
	}
}

// Decision is the outcome of Authorize.
type Decision bool

const (
	// Allowed lets the command run.
	Allowed Decision = true
	// Denied stops the command before any side effect.
	Denied Decision = false
)

func (d Decision) String() string {
	if d {
		return "allowed"
	}
	return "denied"
}

// ChatAdminChecker answers whether userID administers chatID.
type ChatAdminChecker interface {
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}

// Gate holds the immutable operator set and the live admin lookup.
type Gate struct {
	admins  map[int64]struct{}
	checker ChatAdminChecker
	logger  *logrus.Entry
}

// NewGate constructs a Gate. A nil checker makes every chat admin lookup fail
// closed.
func NewGate(adminIDs []int64, checker ChatAdminChecker, logger *logrus.Entry) *Gate {
	if logger == nil {
		logger = logging.Logger()
	}

	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return &Gate{
		admins:  admins,
		checker: checker,
		logger:  logger,
	}
}

// AdminIDs returns the configured operator ids in ascending order.
func (g *Gate) AdminIDs() []int64 {
	ids := make([]int64, 0, len(g.admins))
	for id := range g.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// IsGlobalAdmin reports whether callerID is a configured operator.
func (g *Gate) IsGlobalAdmin(callerID int64) bool {
	if g == nil {
		return false
	}
	_, ok := g.admins[callerID]
	return ok
}

// IsChatAdmin asks the platform whether callerID administers chatID. Lookup
// failures count as "not an admin".
func (g *Gate) IsChatAdmin(ctx context.Context, callerID, chatID int64) bool {
	if g == nil || g.checker == nil || callerID == 0 || chatID == 0 {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lookupCtx, cancel := context.WithTimeout(ctx, chatAdminTimeout)
	defer cancel()

	ok, err := g.checker.IsChatAdmin(lookupCtx, chatID, callerID)
	if err != nil {
		g.logger.WithFields(logging.Fields{
			"event":   "chat_admin_lookup_failed",
			"user_id": callerID,
			"chat_id": chatID,
		}).WithError(err).Warn("could not confirm chat admin status")
		return false
	}

	return ok
}

// Authorize combines both authority sources for the required level.
func (g *Gate) Authorize(ctx context.Context, callerID, chatID int64, level Level) Decision {
	switch level {
	case LevelPublic:
		return Allowed
	case LevelGlobalAdmin:
		return Decision(g.IsGlobalAdmin(callerID))
	case LevelChatAdmin:
		if g.IsGlobalAdmin(callerID) {
			return Allowed
		}
		return Decision(g.IsChatAdmin(ctx, callerID, chatID))
	default:
		return Denied
	}
}
