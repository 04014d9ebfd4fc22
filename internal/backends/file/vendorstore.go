package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"venmux/internal/types"
)

const vendorFileName = "vendors.json"

// VendorStore keeps the snapshot as one JSON array on disk. This is the
// authoritative backend: small record count, rewritten whole on every
// transition, replaced atomically via temp file + rename so readers never
// observe a half-written snapshot.
type VendorStore struct {
	dir string
}

func NewVendorStore(dir string) *VendorStore {
	return &VendorStore{dir: dir}
}

func (s *VendorStore) Snapshot(ctx context.Context, records []types.VendorRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return types.Err(types.ErrStoreAccess, err, "creating %s", s.dir)
	}
	if records == nil {
		records = []types.VendorRecord{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, vendorFileName+".*")
	if err != nil {
		return types.Err(types.ErrStoreAccess, err, "")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return types.Err(types.ErrStoreAccess, err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return types.Err(types.ErrStoreAccess, err, "")
	}
	if err := os.Rename(tmpName, s.path()); err != nil {
		_ = os.Remove(tmpName)
		return types.Err(types.ErrStoreAccess, err, "replacing %s", s.path())
	}
	return nil
}

// Load returns the last snapshot. Both a missing and an unreadable file come
// back as an empty list; a corrupt snapshot must never keep the process from
// starting.
func (s *VendorStore) Load(ctx context.Context) ([]types.VendorRecord, error) {
	b, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("vendor snapshot unreadable; starting empty")
		}
		return []types.VendorRecord{}, nil
	}
	var records []types.VendorRecord
	if err := json.Unmarshal(b, &records); err != nil {
		log.WithError(err).Warn("vendor snapshot corrupt; starting empty")
		return []types.VendorRecord{}, nil
	}
	return records, nil
}

func (s *VendorStore) path() string {
	return filepath.Join(s.dir, vendorFileName)
}
