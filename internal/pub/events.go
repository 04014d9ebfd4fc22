package pub

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
	log "github.com/sirupsen/logrus"

	"venmux/internal/ports"
	"venmux/internal/types"
)

// EventNotifier publishes vendor lifecycle transitions to a topic. It is
// best effort by contract: publishing happens on its own goroutine and a
// failed publish is logged, never surfaced to the transition that caused it.
//
// filterExpr, when set, is a JMESPath expression evaluated against the event
// payload; only events it matches (boolean true) are published.
type EventNotifier struct {
	pub        ports.Publisher
	topicARN   string
	filterExpr string
}

func NewEventNotifier(pub ports.Publisher, topicARN, filterExpr string) *EventNotifier {
	return &EventNotifier{pub: pub, topicARN: topicARN, filterExpr: filterExpr}
}

func (n *EventNotifier) VendorEvent(ctx context.Context, event string, record types.VendorRecord) {
	payload := map[string]any{
		"event":          event,
		"vendorId":       record.ID,
		"name":           record.Name,
		"assignedNumber": record.AssignedNumber,
		"phoneNumber":    record.PhoneNumber,
		"status":         string(record.Status),
		"port":           record.Port,
	}
	if !n.matches(payload) {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warn("lifecycle event marshal failed")
		return
	}
	go func() {
		if err := n.pub.PublishRaw(context.Background(), n.topicARN, b); err != nil {
			log.WithError(err).WithField("event", event).Warn("lifecycle event publish failed")
		}
	}()
}

func (n *EventNotifier) matches(payload map[string]any) bool {
	if n.filterExpr == "" {
		return true
	}
	v, err := jmespath.Search(n.filterExpr, payload)
	if err != nil {
		log.WithError(err).Warn("event filter eval failed; dropping event")
		return false
	}
	// The filter must yield a boolean
	matched, ok := v.(bool)
	return ok && matched
}
