package manager

import (
	"sort"
	"time"

	"venmux/internal/ports"
	"venmux/internal/types"
)

// Vendor is the live, in-memory form of one session: the durable record plus
// everything that must not survive a restart (pairing code, retry count, the
// provider handle and its refresh timer).
type Vendor struct {
	types.VendorRecord

	QR                string
	ReconnectAttempts int

	provider ports.Provider
	refresh  *time.Timer

	// gen counts provisions. Each adapter's event sink is bound to the
	// generation it was built under, so a replaced adapter's late callbacks
	// cannot drive the fresh session's transitions.
	gen uint64
}

// Registry owns every live vendor record. The manager is its only writer and
// always touches it under the coarse lock; remove is the single path that
// gives a vendor's port back.
type Registry struct {
	vendors map[string]*Vendor
}

func NewRegistry() *Registry {
	return &Registry{vendors: make(map[string]*Vendor)}
}

func (r *Registry) Insert(v *Vendor) {
	r.vendors[v.ID] = v
}

func (r *Registry) Get(id string) *Vendor {
	return r.vendors[id]
}

// ByNumber returns the vendor registered for an assigned number, nil if none.
func (r *Registry) ByNumber(number string) *Vendor {
	for _, v := range r.vendors {
		if v.AssignedNumber == number {
			return v
		}
	}
	return nil
}

// Remove deletes the vendor and releases its port. It reports whether the
// vendor was present, so racing cleanup paths can tell who actually won.
func (r *Registry) Remove(id string, alloc *Allocator) bool {
	v, ok := r.vendors[id]
	if !ok {
		return false
	}
	delete(r.vendors, id)
	alloc.Release(v.Port)
	return true
}

func (r *Registry) Len() int {
	return len(r.vendors)
}

func (r *Registry) List() []*Vendor {
	out := make([]*Vendor, 0, len(r.vendors))
	for _, v := range r.vendors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Records returns the persisted subset of every live vendor, sorted by id.
func (r *Registry) Records() []types.VendorRecord {
	out := make([]types.VendorRecord, 0, len(r.vendors))
	for _, v := range r.List() {
		out = append(out, v.VendorRecord)
	}
	return out
}

// MergeRecords overlays live registry records on top of persisted ones.
// In-memory entries win on id collision; persisted-only vendors (not yet
// rehydrated after a restart) are kept. Indexed merge, not array order.
func MergeRecords(persisted, live []types.VendorRecord) []types.VendorRecord {
	byID := make(map[string]types.VendorRecord, len(persisted)+len(live))
	for _, rec := range persisted {
		byID[rec.ID] = rec
	}
	for _, rec := range live {
		byID[rec.ID] = rec
	}
	out := make([]types.VendorRecord, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
