package domain

import "encoding/json"

// ManagedGroup is a chat registered for moderation and relaying. ChatID is the
// registry key and is not part of the persisted value.
type ManagedGroup struct {
	ChatID       int64             `json:"-"`
	Name         string            `json:"name"`
	Restrictions []json.RawMessage `json:"restrictions"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (g ManagedGroup) Clone() ManagedGroup {
	out := ManagedGroup{
		ChatID:       g.ChatID,
		Name:         g.Name,
		Restrictions: make([]json.RawMessage, 0, len(g.Restrictions)),
	}
	for _, r := range g.Restrictions {
		out.Restrictions = append(out.Restrictions, append(json.RawMessage(nil), r...))
	}
	return out
}
