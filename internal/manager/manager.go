package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"venmux/internal/ports"
	"venmux/internal/types"
)

var timeNow = time.Now

func SetTimeNowFn(f func() time.Time) {
	timeNow = f
}

func RestoreTimeNow() {
	timeNow = time.Now
}

// Notifier receives lifecycle transitions for operator fan-out. Calls are
// best effort: the manager never blocks or fails a transition on one.
type Notifier interface {
	VendorEvent(ctx context.Context, event string, record types.VendorRecord)
}

// Lifecycle event names handed to the Notifier.
const (
	EventRegistered   = "registered"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventRetrying     = "retrying"
	EventRemoved      = "removed"
)

// Manager is the lifecycle coordinator: the only writer of the registry, the
// allocator and the store. Provider callbacks, timers and API calls all
// funnel through its one mutex, so no two transitions interleave their
// read-modify-write of the shared state, and the composite invariant
// (registry ↔ port pool ↔ snapshot) always moves as a unit.
type Manager struct {
	mu sync.Mutex

	cfg     types.ServiceConfig
	alloc   *Allocator
	reg     *Registry
	store   ports.VendorStore
	convlog ports.ConversationLog
	factory ports.Factory
	notify  Notifier // may be nil
}

func New(cfg types.ServiceConfig,
	store ports.VendorStore,
	convlog ports.ConversationLog,
	factory ports.Factory,
	notify Notifier,
) *Manager {
	return &Manager{
		cfg:     cfg,
		alloc:   NewAllocator(cfg.PortRangeStart, cfg.PortRangeEnd),
		reg:     NewRegistry(),
		store:   store,
		convlog: convlog,
		factory: factory,
		notify:  notify,
	}
}

// Register admits a new vendor session: duplicate check, port reservation,
// provider construction, registry insert, snapshot. The returned port is
// held until the vendor leaves the registry.
func (m *Manager) Register(ctx context.Context, name, assignedNumber string) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v := m.reg.ByNumber(assignedNumber); v != nil {
		return "", 0, types.Err(types.ErrAlreadyRegistered, nil, "number %s is vendor %s", assignedNumber, v.ID)
	}
	port, err := m.alloc.Acquire()
	if err != nil {
		return "", 0, err
	}

	v := &Vendor{
		VendorRecord: types.VendorRecord{
			ID:             uuid.NewString(),
			Name:           name,
			AssignedNumber: assignedNumber,
			Status:         types.StatusPending,
			Port:           port,
		},
	}
	if err := m.provisionLocked(ctx, v); err != nil {
		// The registration never reached the registry, so the port goes
		// straight back.
		m.alloc.Release(port)
		return "", 0, err
	}
	m.reg.Insert(v)
	m.persistLocked(ctx)
	vendorsRegisteredCounter.Inc()
	m.notifyEvent(ctx, EventRegistered, v.VendorRecord)
	log.WithField("vendor", v.ID).WithField("port", port).Info("vendor registered")
	return v.ID, port, nil
}

// Delete tears a vendor down. Deleting an unknown id is a no-op, because an
// explicit delete can race a connection-failure cleanup for the same vendor
// and only one of them finds anything left to do.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.reg.Get(id)
	if v == nil {
		return nil
	}
	m.removeLocked(ctx, v, EventRemoved)
	return nil
}

// Rename updates the display label. Identity fields are immutable; the API
// layer rejects them before this is reached.
func (m *Manager) Rename(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.reg.Get(id)
	if v == nil {
		return types.Err(types.ErrNotFound, nil, "vendor %s", id)
	}
	v.Name = name
	m.persistLocked(ctx)
	return nil
}

// List is the merged external read view: the persisted snapshot overlaid
// with the live registry. The store may still hold vendors that were not
// rehydrated after a restart; in-memory entries win on collision.
func (m *Manager) List(ctx context.Context) []types.VendorRecord {
	persisted, err := m.store.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("vendor store read failed; listing live registry only")
		persisted = nil
	}
	m.mu.Lock()
	live := m.reg.Records()
	m.mu.Unlock()
	return MergeRecords(persisted, live)
}

// Metrics derives connection counts from the registry on demand.
func (m *Manager) Metrics() types.ConnectionMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := types.ConnectionMetrics{
		Total:     m.reg.Len(),
		Available: m.alloc.Free(),
	}
	for _, v := range m.reg.List() {
		switch v.Status {
		case types.StatusConnected:
			out.Active++
		case types.StatusPending:
			out.Pending++
		}
	}
	return out
}

// Restore rehydrates the registry from the last snapshot. Previously
// connected vendors are re-provisioned on a freshly allocated port and go
// back through the pairing state machine; pending and disconnected ones
// stay store-only until
// re-registered (the merged List view still answers for them).
func (m *Manager) Restore(ctx context.Context) error {
	records, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	restored := 0
	for _, rec := range records {
		if rec.Status != types.StatusConnected {
			continue
		}
		port, err := m.alloc.Acquire()
		if err != nil {
			log.WithError(err).WithField("vendor", rec.ID).Warn("no port left to restore vendor")
			continue
		}
		v := &Vendor{VendorRecord: rec}
		v.Port = port
		v.Status = types.StatusPending
		if err := m.provisionLocked(ctx, v); err != nil {
			log.WithError(err).WithField("vendor", rec.ID).Warn("failed to restore vendor")
			m.alloc.Release(port)
			continue
		}
		m.reg.Insert(v)
		restored++
	}
	if restored > 0 {
		// The rewritten snapshot must keep the store-only vendors that were
		// not rehydrated; live records win on id collision.
		if err := m.store.Snapshot(ctx, MergeRecords(records, m.reg.Records())); err != nil {
			log.WithError(err).Error("vendor snapshot failed")
		}
	}
	log.WithField("persisted", len(records)).WithField("restored", restored).Info("vendor store loaded")
	return nil
}

// Run drives the retry sweep until ctx is cancelled. Blocking; callers put
// it on its own goroutine.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.RetrySweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep is one pass of the retry loop: every disconnected vendor below the
// attempt ceiling is moved back to pending with a fresh provider, exactly as
// at registration. Vendors at the ceiling are left alone for good.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, v := range m.reg.List() {
		if v.Status != types.StatusDisconnected || v.ReconnectAttempts >= types.MaxReconnectAttempts {
			continue
		}
		v.ReconnectAttempts++
		v.Status = types.StatusPending
		v.QR = ""
		changed = true
		sweepRetriesCounter.Inc()
		if err := m.provisionLocked(ctx, v); err != nil {
			// The attempt is spent; the next sweep may try again below the
			// ceiling.
			log.WithError(err).WithField("vendor", v.ID).Warn("retry provision failed")
			v.Status = types.StatusDisconnected
			continue
		}
		m.notifyEvent(ctx, EventRetrying, v.VendorRecord)
		log.WithField("vendor", v.ID).WithField("attempt", v.ReconnectAttempts).Info("retrying vendor connection")
	}
	if changed {
		m.persistLocked(ctx)
	}
}

// Shutdown terminates every provider without touching registry state. Used
// on process exit; the snapshot keeps what is needed to restore.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.reg.List() {
		m.stopRefreshLocked(v)
		if v.provider != nil {
			if err := v.provider.Terminate(); err != nil {
				log.WithError(err).WithField("vendor", v.ID).Warn("provider terminate failed")
			}
			v.provider = nil
		}
	}
}

// --- provider event sink ---
//
// Each provisioned adapter gets its own sink bound to a provision
// generation. Late events for vendors already cleaned up, or from an adapter
// that was since replaced, must be no-ops, never a resurrection: every
// handler checks existence and generation before applying the event.

type providerSink struct {
	m   *Manager
	gen uint64
}

var _ ports.EventSink = (*providerSink)(nil)

func (s *providerSink) PairingCodeIssued(vendorID, code string) {
	s.m.pairingCodeIssued(vendorID, code, s.gen)
}

func (s *providerSink) Ready(vendorID, identity string) {
	s.m.ready(vendorID, identity, s.gen)
}

func (s *providerSink) Disconnected(vendorID string) {
	s.m.disconnected(vendorID, s.gen)
}

func (s *providerSink) ConnectionFailed(vendorID string, err error) {
	s.m.connectionFailed(vendorID, err, s.gen)
}

// liveVendor resolves an event to its vendor only when the emitting adapter
// is still the current one.
func (m *Manager) liveVendor(vendorID string, gen uint64) *Vendor {
	v := m.reg.Get(vendorID)
	if v == nil || v.gen != gen {
		return nil
	}
	return v
}

func (m *Manager) pairingCodeIssued(vendorID, code string, gen uint64) {
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()

	providerEventsCounter.WithLabelValues("pairing_code").Inc()
	v := m.liveVendor(vendorID, gen)
	if v == nil || v.Status == types.StatusConnected {
		return
	}
	v.Status = types.StatusPending
	v.QR = code
	m.armRefreshLocked(v)
	m.persistLocked(ctx)
	log.WithField("vendor", vendorID).Debug("pairing code issued")
}

func (m *Manager) ready(vendorID, identity string, gen uint64) {
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()

	providerEventsCounter.WithLabelValues("ready").Inc()
	v := m.liveVendor(vendorID, gen)
	if v == nil {
		return
	}
	if identity != v.AssignedNumber {
		// The provider is the source of truth for the paired identity; a
		// mismatch is recorded, not blocking.
		log.WithField("vendor", vendorID).
			WithField("assigned", v.AssignedNumber).
			WithField("confirmed", identity).
			Warn("paired identity differs from assigned number")
	}
	m.stopRefreshLocked(v)
	v.Status = types.StatusConnected
	v.QR = ""
	v.PhoneNumber = identity
	v.LastConnection = timeNow().Unix()
	v.ReconnectAttempts = 0
	m.persistLocked(ctx)
	m.notifyEvent(ctx, EventConnected, v.VendorRecord)
	log.WithField("vendor", vendorID).WithField("number", identity).Info("vendor connected")
}

func (m *Manager) disconnected(vendorID string, gen uint64) {
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()

	providerEventsCounter.WithLabelValues("disconnected").Inc()
	v := m.liveVendor(vendorID, gen)
	if v == nil {
		return
	}
	m.stopRefreshLocked(v)
	v.Status = types.StatusDisconnected
	v.QR = ""
	m.persistLocked(ctx)
	m.notifyEvent(ctx, EventDisconnected, v.VendorRecord)
	log.WithField("vendor", vendorID).Warn("vendor disconnected")
}

func (m *Manager) connectionFailed(vendorID string, err error, gen uint64) {
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()

	providerEventsCounter.WithLabelValues("connection_failed").Inc()
	v := m.liveVendor(vendorID, gen)
	if v == nil {
		return
	}
	// Unlike a plain disconnect this is not retryable: the session is gone
	// and the slot goes back to the pool.
	log.WithError(err).WithField("vendor", vendorID).Error("unrecoverable connection failure")
	v.Status = types.StatusDisconnected
	m.removeLocked(ctx, v, EventRemoved)
}

// --- internals, all under m.mu ---

// provisionLocked builds and starts a fresh provider for v, replacing any
// previous one. Registration, code refresh and the retry sweep all come
// through here so the three paths cannot drift.
func (m *Manager) provisionLocked(ctx context.Context, v *Vendor) error {
	if v.provider != nil {
		if err := v.provider.Terminate(); err != nil {
			log.WithError(err).WithField("vendor", v.ID).Warn("provider terminate failed")
		}
		v.provider = nil
	}
	v.gen++
	p, err := m.factory(ports.SessionConfig{
		VendorID: v.ID,
		Port:     v.Port,
		Events:   &providerSink{m: m, gen: v.gen},
	})
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	v.provider = p
	return nil
}

// removeLocked is the single cleanup path: refresh timer stopped, provider
// terminated best-effort, port released, registry entry gone, snapshot
// rewritten. Safe to reach twice for the same vendor; the second caller
// finds no registry entry and never gets here.
func (m *Manager) removeLocked(ctx context.Context, v *Vendor, event string) {
	m.stopRefreshLocked(v)
	if v.provider != nil {
		if err := v.provider.Terminate(); err != nil {
			log.WithError(err).WithField("vendor", v.ID).Warn("provider terminate failed")
		}
		v.provider = nil
	}
	m.reg.Remove(v.ID, m.alloc)
	m.persistLocked(ctx)
	m.notifyEvent(ctx, event, v.VendorRecord)
	log.WithField("vendor", v.ID).Info("vendor removed")
}

// armRefreshLocked starts the code-refresh timer if it is not already
// running. Pairing codes expire; when the timer fires while the vendor is
// still pending, the adapter is torn down and rebuilt on the same port to
// mint a fresh code.
func (m *Manager) armRefreshLocked(v *Vendor) {
	if v.refresh != nil {
		return
	}
	id := v.ID
	v.refresh = time.AfterFunc(m.cfg.QRRefreshInterval(), func() {
		m.refreshPairing(id)
	})
}

func (m *Manager) stopRefreshLocked(v *Vendor) {
	if v.refresh != nil {
		v.refresh.Stop()
		v.refresh = nil
	}
}

// refreshPairing is the timer callback. The vendor may have connected or
// vanished since the timer was armed; both make this a no-op.
func (m *Manager) refreshPairing(vendorID string) {
	ctx := context.Background()
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.reg.Get(vendorID)
	if v == nil || v.Status != types.StatusPending {
		return
	}
	v.refresh = nil
	v.QR = ""
	qrRefreshCounter.Inc()
	log.WithField("vendor", vendorID).Info("pairing code expired; re-provisioning")
	if err := m.provisionLocked(ctx, v); err != nil {
		log.WithError(err).WithField("vendor", vendorID).Warn("re-provision after code expiry failed")
		v.Status = types.StatusDisconnected
	}
	m.persistLocked(ctx)
}

// persistLocked rewrites the snapshot before the caller returns, so a crash
// immediately after a transition loses at most the in-flight event. Snapshot
// failure is logged, never propagated: durability degrades, the process
// lives.
func (m *Manager) persistLocked(ctx context.Context) {
	start := time.Now()
	if err := m.store.Snapshot(ctx, m.reg.Records()); err != nil {
		log.WithError(err).Error("vendor snapshot failed")
		return
	}
	snapshotDurationHist.Observe(time.Since(start).Seconds())
}

func (m *Manager) notifyEvent(ctx context.Context, event string, rec types.VendorRecord) {
	if m.notify == nil {
		return
	}
	m.notify.VendorEvent(ctx, event, rec)
}
