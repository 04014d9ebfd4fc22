package types

// VendorStatus is the connection state of a vendor session.
type VendorStatus string

const (
	StatusPending      VendorStatus = "pending"
	StatusConnected    VendorStatus = "connected"
	StatusDisconnected VendorStatus = "disconnected"
)

// MaxReconnectAttempts is the retry ceiling for the background sweep. A
// disconnected vendor at or above this count stays disconnected until it is
// re-registered by hand.
const MaxReconnectAttempts = 3

// VendorRecord is the durable subset of a vendor session. It carries no live
// provider handle and is what the store snapshots and rehydrates.
// AssignedNumber is the identity the caller asked to pair and is immutable
// after registration; PhoneNumber is the identity the provider actually
// confirmed and stays empty until the session reaches connected.
type VendorRecord struct {
	ID             string       `json:"id" dynamodbav:"id"`
	Name           string       `json:"name" dynamodbav:"name"`
	PhoneNumber    string       `json:"phoneNumber" dynamodbav:"phone_number"`
	AssignedNumber string       `json:"assignedNumber" dynamodbav:"assigned_number"`
	Status         VendorStatus `json:"status" dynamodbav:"status"`
	LastConnection int64        `json:"lastConnection" dynamodbav:"last_connection"`
	Port           int          `json:"port" dynamodbav:"port"`
}

// Number is the best identity for a vendor: the provider-confirmed one when
// paired, the requested one otherwise.
func (v VendorRecord) Number() string {
	if v.PhoneNumber != "" {
		return v.PhoneNumber
	}
	return v.AssignedNumber
}

// ConversationEntry is one line of the per-(vendor, counterpart) history.
// VendorNumber is set only when the sender is the vendor ("bot").
type ConversationEntry struct {
	Sender       string `json:"sender"` // "user" | "bot"
	Message      string `json:"message"`
	VendorNumber string `json:"vendorNumber,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// ConnectionMetrics is derived from the registry on demand, never stored.
type ConnectionMetrics struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Pending   int `json:"pending"`
	Available int `json:"available"`
}

// GroupInfo is the metadata returned by a group lookup on a vendor session.
type GroupInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Participants int    `json:"participants"`
}

// SendOutcome is one vendor's result within a broadcast.
type SendOutcome struct {
	VendorID string `json:"vendorId"`
	Number   string `json:"number,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}
