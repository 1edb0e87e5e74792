// Package group owns the registry of managed group chats, persisted as a single
// JSON document keyed by chat id.
package group

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"tg_group_admin_bot/internal/domain"
	"tg_group_admin_bot/internal/logging"
)

const (
	filePerm = 0o600
	dirPerm  = 0o755
)

var (
	// ErrCorrupt reports a registry document that exists but cannot be parsed.
	ErrCorrupt = errors.New("group registry document is corrupt")
	// ErrInvalidChatID rejects the zero chat id.
	ErrInvalidChatID = errors.New("chat id is required")
)

// Registry maps chat ids to managed groups. Every mutation rewrites the whole
// document before the in-memory state is replaced.
type Registry struct {
	mu     sync.RWMutex
	path   string
	groups map[int64]domain.ManagedGroup
	logger *logrus.Entry
}

// Load reads the registry document at path. A missing file yields an empty
// registry; any other read or decode failure wraps ErrCorrupt.
func Load(path string, logger *logrus.Entry) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("registry path is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	r := &Registry{
		path:   path,
		groups: make(map[int64]domain.ManagedGroup),
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.WithFields(logging.Fields{
				"event": "registry_empty",
				"path":  path,
			}).Info("no group registry document yet, starting empty")
			return r, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, path, err)
	}

	groups, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	r.groups = groups

	r.logger.WithFields(logging.Fields{
		"event":  "registry_loaded",
		"path":   path,
		"groups": len(groups),
	}).Info("loaded group registry")

	return r, nil
}

// Path returns the backing document path.
func (r *Registry) Path() string {
	return r.path
}

// Add inserts or overwrites the group name for chatID. An empty name falls back
// to "Group <id>". Existing restrictions are kept.
func (r *Registry) Add(chatID int64, name string) (domain.ManagedGroup, error) {
	if chatID == 0 {
		return domain.ManagedGroup{}, ErrInvalidChatID
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName(chatID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.groups[chatID]
	if exists && entry.Name == name {
		return entry.Clone(), nil
	}

	entry.ChatID = chatID
	entry.Name = name
	if entry.Restrictions == nil {
		entry.Restrictions = []json.RawMessage{}
	}

	next := r.copyLocked()
	next[chatID] = entry
	if err := r.commitLocked(next); err != nil {
		return domain.ManagedGroup{}, err
	}

	r.logger.WithFields(logging.Fields{
		"event":   "group_registered",
		"chat_id": chatID,
		"name":    name,
		"updated": exists,
	}).Info("registered group")

	return entry.Clone(), nil
}

// Remove deletes chatID and reports whether anything was removed. Absent ids
// return false without touching the document.
func (r *Registry) Remove(chatID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[chatID]; !ok {
		return false, nil
	}

	next := r.copyLocked()
	delete(next, chatID)
	if err := r.commitLocked(next); err != nil {
		return false, err
	}

	r.logger.WithFields(logging.Fields{
		"event":   "group_removed",
		"chat_id": chatID,
	}).Info("removed group")

	return true, nil
}

// Rename changes the display name of an already registered group.
func (r *Registry) Rename(chatID int64, name string) (domain.ManagedGroup, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ManagedGroup{}, false, errors.New("group name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.groups[chatID]
	if !ok {
		return domain.ManagedGroup{}, false, nil
	}
	if entry.Name == name {
		return entry.Clone(), true, nil
	}

	entry.Name = name
	next := r.copyLocked()
	next[chatID] = entry
	if err := r.commitLocked(next); err != nil {
		return domain.ManagedGroup{}, true, err
	}

	return entry.Clone(), true, nil
}

// Get returns a copy of the group registered under chatID.
func (r *Registry) Get(chatID int64) (domain.ManagedGroup, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.groups[chatID]
	if !ok {
		return domain.ManagedGroup{}, false
	}
	return entry.Clone(), true
}

// List returns a snapshot ordered by name (case-insensitive), then chat id.
func (r *Registry) List() []domain.ManagedGroup {
	r.mu.RLock()
	out := make([]domain.ManagedGroup, 0, len(r.groups))
	for _, entry := range r.groups {
		out = append(out, entry.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ChatID < out[j].ChatID
	})

	return out
}

// Len returns the number of registered groups.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// DefaultName is the display name used when none is supplied.
func DefaultName(chatID int64) string {
	return "Group " + strconv.FormatInt(chatID, 10)
}

func (r *Registry) copyLocked() map[int64]domain.ManagedGroup {
	next := make(map[int64]domain.ManagedGroup, len(r.groups)+1)
	for id, entry := range r.groups {
		next[id] = entry
	}
	return next
}

func (r *Registry) commitLocked(next map[int64]domain.ManagedGroup) error {
	raw, err := encode(next)
	if err != nil {
		return fmt.Errorf("encode group registry: %w", err)
	}
	if err := writeAtomic(r.path, raw); err != nil {
		return fmt.Errorf("save group registry: %w", err)
	}
	r.groups = next
	return nil
}

func decode(raw []byte) (map[int64]domain.ManagedGroup, error) {
	groups := make(map[int64]domain.ManagedGroup)
	if len(bytes.TrimSpace(raw)) == 0 {
		return groups, nil
	}

	var doc map[string]domain.ManagedGroup
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	for key, entry := range doc {
		chatID, err := parseKey(key)
		if err != nil {
			return nil, err
		}
		entry.ChatID = chatID
		if entry.Restrictions == nil {
			entry.Restrictions = []json.RawMessage{}
		}
		groups[chatID] = entry
	}

	return groups, nil
}

// parseKey accepts only the canonical decimal form encode writes, so a key such
// as "+5" or "007" cannot be silently renamed on the next save.
func parseKey(key string) (int64, error) {
	chatID, err := strconv.ParseInt(key, 10, 64)
	if err != nil || strconv.FormatInt(chatID, 10) != key {
		return 0, fmt.Errorf("invalid chat id key %q", key)
	}
	if chatID == 0 {
		return 0, fmt.Errorf("chat id key %q: %w", key, ErrInvalidChatID)
	}
	return chatID, nil
}

func encode(groups map[int64]domain.ManagedGroup) ([]byte, error) {
	doc := make(map[string]domain.ManagedGroup, len(groups))
	for id, entry := range groups {
		if entry.Restrictions == nil {
			entry.Restrictions = []json.RawMessage{}
		}
		doc[strconv.FormatInt(id, 10)] = entry
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

func writeAtomic(path string, content []byte) error {
	parentDir := filepath.Dir(path)
	if err := os.MkdirAll(parentDir, dirPerm); err != nil {
		return fmt.Errorf("ensure dir %s: %w", parentDir, err)
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}

	// Best effort directory sync; ignore failures.
	if dir, err := os.Open(parentDir); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}
