package manager

import (
	"context"

	log "github.com/sirupsen/logrus"

	"venmux/internal/ports"
	"venmux/internal/types"
)

// Send delivers one message through a connected vendor's session and records
// it as a bot-authored conversation entry. A vendor that is absent or not
// yet connected is reported as not found; the caller cannot tell the two
// apart and should not be able to.
//
// When isGroup is set the target is a group name and is resolved through the
// provider's group lookup first.
func (m *Manager) Send(ctx context.Context, vendorID, target, message string, isGroup bool) error {
	v, provider, err := m.connectedVendor(vendorID)
	if err != nil {
		return err
	}

	// Provider I/O happens outside the coordinator lock: one slow vendor
	// must not stall the others' transitions.
	dest := target
	if isGroup {
		group, err := provider.FindGroup(ctx, target)
		if err != nil {
			messagesSentCounter.WithLabelValues("group_not_found").Inc()
			return types.Err(types.ErrNotFound, err, "group %q", target)
		}
		dest = group.ID
	}
	if err := provider.SendText(ctx, dest, message); err != nil {
		messagesSentCounter.WithLabelValues("delivery_error").Inc()
		return types.Err(types.ErrDeliveryFailure, err, "vendor %s to %s", vendorID, target)
	}
	messagesSentCounter.WithLabelValues("ok").Inc()

	entry := types.ConversationEntry{
		Sender:       types.SenderBot,
		Message:      message,
		VendorNumber: v.Number(),
		Timestamp:    timeNow().Unix(),
	}
	if err := m.convlog.Append(ctx, vendorID, target, entry); err != nil {
		// The message is already out; a log write problem is not a delivery
		// failure.
		log.WithError(err).WithField("vendor", vendorID).Warn("conversation log append failed")
	}
	return nil
}

// Broadcast attempts the message on every currently connected vendor
// independently and reports a per-vendor outcome list. One vendor failing
// never aborts the rest.
func (m *Manager) Broadcast(ctx context.Context, target, message string) []types.SendOutcome {
	m.mu.Lock()
	connected := make([]*Vendor, 0, m.reg.Len())
	for _, v := range m.reg.List() {
		if v.Status == types.StatusConnected && v.provider != nil {
			connected = append(connected, v)
		}
	}
	m.mu.Unlock()

	outcomes := make([]types.SendOutcome, 0, len(connected))
	for _, v := range connected {
		out := types.SendOutcome{VendorID: v.ID, Number: v.Number(), OK: true}
		if err := m.Send(ctx, v.ID, target, message, false); err != nil {
			out.OK = false
			out.Error = err.Error()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// FindGroup looks a group up by name on a connected vendor's session.
func (m *Manager) FindGroup(ctx context.Context, vendorID, name string) (types.GroupInfo, error) {
	_, provider, err := m.connectedVendor(vendorID)
	if err != nil {
		return types.GroupInfo{}, err
	}
	group, err := provider.FindGroup(ctx, name)
	if err != nil {
		return types.GroupInfo{}, types.Err(types.ErrNotFound, err, "group %q on vendor %s", name, vendorID)
	}
	return group, nil
}

// History reads the conversation log for one (vendor, counterpart) pair.
func (m *Manager) History(ctx context.Context, vendorID, counterpart string) ([]types.ConversationEntry, error) {
	return m.convlog.History(ctx, vendorID, counterpart)
}

// connectedVendor snapshots the vendor's identity and provider handle under
// the lock so callers can do I/O without holding it.
func (m *Manager) connectedVendor(vendorID string) (types.VendorRecord, ports.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.reg.Get(vendorID)
	if v == nil || v.Status != types.StatusConnected || v.provider == nil {
		return types.VendorRecord{}, nil, types.Err(types.ErrNotFound, nil, "vendor %s is not connected", vendorID)
	}
	return v.VendorRecord, v.provider, nil
}
