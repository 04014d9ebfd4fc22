package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"venmux/internal/types"
)

const (
	vendorKeyNameTemplate = "_venmux_vendor_%s"
)

// VendorStore keeps one JSON value per vendor record. Snapshot replaces the
// whole set: stale keys left by removed vendors are deleted in the same
// pass, so Load always reflects exactly the last snapshot.
type VendorStore struct {
	cli *redis.Client
}

func NewVendorStore(cli *redis.Client) *VendorStore {
	return &VendorStore{cli: cli}
}

func (s *VendorStore) Snapshot(ctx context.Context, records []types.VendorRecord) error {
	keep := make(map[string]bool, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		key := getVendorKey(rec.ID)
		keep[key] = true
		if out := s.cli.Set(ctx, key, string(b), 0); out.Err() != nil {
			return types.Err(types.ErrStoreAccess, out.Err(), "writing %s", key)
		}
	}

	out := s.cli.Keys(ctx, getVendorKey("*"))
	if out.Err() != nil {
		return types.Err(types.ErrStoreAccess, out.Err(), "")
	}
	stale := make([]string, 0)
	for _, key := range out.Val() {
		if !keep[key] {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		if outDel := s.cli.Del(ctx, stale...); outDel.Err() != nil {
			return types.Err(types.ErrStoreAccess, outDel.Err(), "")
		}
	}
	return nil
}

func (s *VendorStore) Load(ctx context.Context) ([]types.VendorRecord, error) {
	out := s.cli.Keys(ctx, getVendorKey("*"))
	if out.Err() != nil {
		log.WithError(out.Err()).Warn("vendor keys unreadable; starting empty")
		return []types.VendorRecord{}, nil
	}
	records := make([]types.VendorRecord, 0, len(out.Val()))
	for _, key := range out.Val() {
		outV := s.cli.Get(ctx, key)
		if outV.Err() != nil {
			log.WithError(outV.Err()).Warnf("vendor record %s unreadable; skipped", key)
			continue
		}
		var rec types.VendorRecord
		if err := json.Unmarshal([]byte(outV.Val()), &rec); err != nil {
			log.WithError(err).Warnf("vendor record %s corrupt; skipped", key)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func getVendorKey(id string) string {
	return fmt.Sprintf(vendorKeyNameTemplate, id)
}
