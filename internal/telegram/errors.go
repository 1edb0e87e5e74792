package telegram

import (
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
)

// ErrorKind classifies a failed command for the user-facing reply.
type ErrorKind int

const (
	KindUsage ErrorKind = iota + 1
	KindAuthorization
	KindPrecondition
	KindExternal
	KindPersistence
)

func (k ErrorKind) String() string {
	switch k {
	case KindUsage:
		return "usage"
	case KindAuthorization:
		return "authorization"
	case KindPrecondition:
		return "precondition"
	case KindExternal:
		return "external"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// CommandError is returned by handlers. Message is shown to the user verbatim;
// Err carries the underlying cause for logs.
type CommandError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...interface{}) *CommandError {
	return &CommandError{Kind: KindUsage, Message: fmt.Sprintf(format, args...)}
}

func preconditionError(format string, args ...interface{}) *CommandError {
	return &CommandError{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// externalError wraps a failed platform call. action reads as "mute the user".
func externalError(action string, err error) *CommandError {
	return &CommandError{
		Kind:    KindExternal,
		Message: fmt.Sprintf("Failed to %s: %s.", action, platformReason(err)),
		Err:     err,
	}
}

// databaseError wraps a failed Mongo operation. action reads as "load the inbox".
func databaseError(action string, err error) *CommandError {
	return &CommandError{
		Kind:    KindExternal,
		Message: fmt.Sprintf("Database error: could not %s.", action),
		Err:     err,
	}
}

func persistenceError(err error) *CommandError {
	return &CommandError{
		Kind:    KindPersistence,
		Message: "Could not save the group registry, nothing was changed.",
		Err:     err,
	}
}

// platformReason turns a Bot API error into something a chat admin can act on.
func platformReason(err error) string {
	switch {
	case err == nil:
		return "unknown error"
	case errors.Is(err, bot.ErrorForbidden):
		return "the bot is not allowed to do that here (blocked, removed, or missing admin rights)"
	case errors.Is(err, bot.ErrorBadRequest):
		return "Telegram rejected the request (check the chat id and the bot's permissions)"
	default:
		return err.Error()
	}
}

// replyForError renders the single reply sent for a failed command.
func replyForError(command string, err error) string {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return fmt.Sprintf("Something went wrong while running /%s. Please try again later.", command)
	}

	switch cmdErr.Kind {
	case KindAuthorization:
		if cmdErr.Message != "" {
			return cmdErr.Message
		}
		return fmt.Sprintf("You are not authorized to use /%s.", command)
	default:
		return cmdErr.Message
	}
}
