package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"venmux/internal/ports"
	"venmux/internal/types"
)

// Hub builds and tracks mock providers, one per provision call. The manager
// re-provisions sessions over their lifetime (code refresh, retry sweep), so
// tests that care about which instance is live ask the hub for the latest.
type Hub struct {
	mu        sync.Mutex
	providers map[string][]*Provider
	autoPair  bool
}

func NewHub() *Hub {
	return &Hub{providers: make(map[string][]*Provider)}
}

// NewAutoPairHub builds providers that issue a synthetic pairing code right
// after Start. This is what the dev binary runs with.
func NewAutoPairHub() *Hub {
	h := NewHub()
	h.autoPair = true
	return h
}

func (h *Hub) Factory() ports.Factory {
	return func(cfg ports.SessionConfig) (ports.Provider, error) {
		p := &Provider{
			vendorID: cfg.VendorID,
			port:     cfg.Port,
			events:   cfg.Events,
			autoPair: h.autoPair,
			groups:   make(map[string]types.GroupInfo),
		}
		h.mu.Lock()
		h.providers[cfg.VendorID] = append(h.providers[cfg.VendorID], p)
		h.mu.Unlock()
		return p, nil
	}
}

// Provider returns the most recently provisioned instance for a vendor, nil
// if none was ever built.
func (h *Hub) Provider(vendorID string) *Provider {
	h.mu.Lock()
	defer h.mu.Unlock()
	ps := h.providers[vendorID]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

// Instances reports how many providers were built for a vendor over its
// lifetime. Each refresh or retry re-provision adds one.
func (h *Hub) Instances(vendorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.providers[vendorID])
}

// SentMessage is one recorded outbound message.
type SentMessage struct {
	Target  string
	Message string
}

// Provider is an in-process stand-in for one external messaging connection.
// Tests drive its lifecycle explicitly with IssueCode / ConfirmReady /
// Drop / Fail.
type Provider struct {
	vendorID string
	port     int
	events   ports.EventSink
	autoPair bool

	mu         sync.Mutex
	started    bool
	terminated bool
	sendErr    error
	sent       []SentMessage
	groups     map[string]types.GroupInfo
}

var _ ports.Provider = (*Provider)(nil)

func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	if p.autoPair {
		// Emitted off the caller's goroutine: Start is invoked under the
		// coordinator lock and real providers never call back inline.
		go p.events.PairingCodeIssued(p.vendorID, uuid.NewString())
	}
	return nil
}

func (p *Provider) SendText(ctx context.Context, target, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return fmt.Errorf("connection for vendor %s is terminated", p.vendorID)
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, SentMessage{Target: target, Message: message})
	return nil
}

func (p *Provider) FindGroup(ctx context.Context, name string) (types.GroupInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.groups[name]
	if !ok {
		return types.GroupInfo{}, fmt.Errorf("group %q not found", name)
	}
	return g, nil
}

func (p *Provider) Terminate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = true
	return nil
}

// --- scripting hooks ---
// Synchronous on purpose: the test goroutine is never inside the
// coordinator, so delivering inline keeps assertions deterministic.

func (p *Provider) IssueCode(code string) {
	p.events.PairingCodeIssued(p.vendorID, code)
}

func (p *Provider) ConfirmReady(identity string) {
	p.events.Ready(p.vendorID, identity)
}

func (p *Provider) Drop() {
	p.events.Disconnected(p.vendorID)
}

func (p *Provider) Fail(err error) {
	p.events.ConnectionFailed(p.vendorID, err)
}

func (p *Provider) SetSendError(err error) {
	p.mu.Lock()
	p.sendErr = err
	p.mu.Unlock()
}

func (p *Provider) AddGroup(g types.GroupInfo) {
	p.mu.Lock()
	p.groups[g.Name] = g
	p.mu.Unlock()
}

func (p *Provider) Sent() []SentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SentMessage, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *Provider) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
