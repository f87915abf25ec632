package notify

import "time"

// Kind tags the known notification payload shapes. Unknown producers fall
// back to KindOther.
type Kind string

const (
	KindStatusChange   Kind = "status_change"
	KindNewBid         Kind = "new_bid"
	KindVendorActivity Kind = "vendor_activity"
	KindCompliance     Kind = "compliance"
	KindOther          Kind = "other"
)

// Severity levels used for display routing.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Recipient identifies a notification partition. Logs are never shared
// across recipients.
type Recipient struct {
	Role string `json:"role"`
	ID   string `json:"id"`
}

// Key returns the storage partition key for the recipient.
func (r Recipient) Key() string {
	return r.Role + ":" + r.ID
}

// Meta carries the kind-specific fields of a notification.
type Meta struct {
	Role      string `json:"role,omitempty"`
	JobID     string `json:"job_id,omitempty"`
	BidID     string `json:"bid_id,omitempty"`
	VendorID  string `json:"vendor_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Route     string `json:"route,omitempty"`
	DedupeKey string `json:"dedupe_key,omitempty"`
}

// Notification is a single entry in a recipient's log.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Kind      Kind      `json:"kind"`
	Severity  string    `json:"severity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
	DedupeKey string    `json:"dedupe_key,omitempty"`
	Meta      Meta      `json:"meta,omitempty"`
}

// Event is a notification fanned out to one or more recipients. Producers
// (service emits and poll-diff watchers) build events through the helpers in
// events.go so both paths share a deterministic dedupe key.
type Event struct {
	Recipients   []Recipient
	Notification Notification
}
