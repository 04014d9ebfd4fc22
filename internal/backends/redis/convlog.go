package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"

	"venmux/internal/types"
)

const (
	convKeyNameTemplate = "_venmux_conv_%s_%s"
)

var enc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
var dec, _ = zstd.NewReader(nil)

// ConversationLog stores each (vendor, counterpart) history as one
// zstd-compressed JSON blob. Histories are append-heavy and repetitive, so
// compression keeps the values small without an entry-level schema in redis.
type ConversationLog struct {
	cli *redis.Client
}

func NewConversationLog(cli *redis.Client) *ConversationLog {
	return &ConversationLog{cli: cli}
}

func (l *ConversationLog) Append(ctx context.Context, vendorID, counterpart string, entry types.ConversationEntry) error {
	entries, err := l.History(ctx, vendorID, counterpart)
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(b, nil)
	out := l.cli.Set(ctx, getConvKey(vendorID, counterpart), string(compressed), 0)
	if out.Err() != nil {
		return types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	return nil
}

func (l *ConversationLog) History(ctx context.Context, vendorID, counterpart string) ([]types.ConversationEntry, error) {
	out := l.cli.Get(ctx, getConvKey(vendorID, counterpart))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return []types.ConversationEntry{}, nil
		}
		return nil, types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	raw, err := dec.DecodeAll([]byte(out.Val()), nil)
	if err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "conversation blob %s/%s corrupt", vendorID, counterpart)
	}
	var entries []types.ConversationEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, types.Err(types.ErrStoreAccess, err, "conversation blob %s/%s corrupt", vendorID, counterpart)
	}
	return entries, nil
}

func getConvKey(vendorID, counterpart string) string {
	return fmt.Sprintf(convKeyNameTemplate, vendorID, counterpart)
}
