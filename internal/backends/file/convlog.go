package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"venmux/internal/types"
)

const conversationsDirName = "conversations"

// ConversationLog keeps one JSON file per (vendor, counterpart) pair. Writes
// read-modify-append the whole file; volume per counterpart is low, so the
// rewrite is cheaper than maintaining an index.
type ConversationLog struct {
	dir string
}

func NewConversationLog(dir string) *ConversationLog {
	return &ConversationLog{dir: dir}
}

func (l *ConversationLog) Append(ctx context.Context, vendorID, counterpart string, entry types.ConversationEntry) error {
	entries, err := l.History(ctx, vendorID, counterpart)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	dir := filepath.Join(l.dir, conversationsDirName, vendorID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Err(types.ErrStoreAccess, err, "creating %s", dir)
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(l.path(vendorID, counterpart), b, 0o644); err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	return nil
}

// History returns the pair's entries, oldest first. A missing file is an
// empty log.
func (l *ConversationLog) History(ctx context.Context, vendorID, counterpart string) ([]types.ConversationEntry, error) {
	b, err := os.ReadFile(l.path(vendorID, counterpart))
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ConversationEntry{}, nil
		}
		return nil, types.Err(types.ErrStoreAccess, err, "")
	}
	var entries []types.ConversationEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "conversation log %s/%s corrupt", vendorID, counterpart)
	}
	return entries, nil
}

func (l *ConversationLog) path(vendorID, counterpart string) string {
	return filepath.Join(l.dir, conversationsDirName, vendorID, sanitize(counterpart)+".json")
}

// sanitize keeps counterpart identifiers filesystem-safe.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == '@' || r == '+':
			return r
		default:
			return '_'
		}
	}, s)
}
