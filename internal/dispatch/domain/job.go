package domain

import "time"

// Job status constants. Transitions only move forward; see dispatch.CanTransition.
const (
	StatusUnassigned = "UNASSIGNED"
	StatusAssigned   = "ASSIGNED"
	StatusOnTheWay   = "ON_THE_WAY"
	StatusArrived    = "ARRIVED"
	StatusCompleted  = "COMPLETED"
)

// Urgency tiers drive the SLA lookup table.
const (
	UrgencyEmergency = "emergency"
	UrgencyUrgent    = "urgent"
	UrgencyStandard  = "standard"
)

// Bid modes. Under fixed mode vendors compete on ETA only and the job's
// quoted price overrides whatever price they submit.
const (
	BidModeOpen  = "open"
	BidModeFixed = "fixed"
)

// TokenScope identifies which public token a caller presented.
type TokenScope string

const (
	TokenScopeCustomer TokenScope = "customer"
	TokenScopeVendor   TokenScope = "vendor"
	TokenScopeGuest    TokenScope = "guest"
)

// Payment is the completion submission recorded on a job.
type Payment struct {
	Amount     float64   `json:"amount"`
	Method     string    `json:"method"`
	Note       string    `json:"note,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// Commission is derived from the reported payment at completion time.
type Commission struct {
	Rate          float64 `json:"rate"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	ChargeID      string  `json:"charge_id,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

// Job is a single customer service request tracked through its lifecycle.
// StatusVersion increases on every status write; writers must present the
// version they read and lose to a concurrent writer with ErrStaleWrite.
type Job struct {
	JobID       string `db:"job_id"`
	ServiceType string `db:"service_type"`
	Urgency     string `db:"urgency"`

	PickupAddress string   `db:"pickup_address"`
	PickupLat     float64  `db:"pickup_lat"`
	PickupLng     float64  `db:"pickup_lng"`
	DropoffAddr   string   `db:"dropoff_address"`
	DropoffLat    *float64 `db:"dropoff_lat"`
	DropoffLng    *float64 `db:"dropoff_lng"`

	Status        string `db:"status"`
	StatusVersion int    `db:"status_version"`

	AssignedVendorID string  `db:"assigned_vendor_id"`
	BiddingOpen      bool    `db:"bidding_open"`
	BidMode          string  `db:"bid_mode"`
	QuotedPrice      float64 `db:"quoted_price"`
	SelectedBidID    string  `db:"selected_bid_id"`

	CustomerToken string `db:"customer_token"`
	VendorToken   string `db:"vendor_token"`
	GuestToken    string `db:"guest_token"`

	ReportedPayment *Payment    `db:"-"`
	Commission      *Commission `db:"-"`

	UnderReported     bool   `db:"under_reported"`
	UnderReportReason string `db:"under_report_reason"`

	Rating *float64 `db:"rating"`

	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	AssignedAt  *time.Time `db:"assigned_at"`
	ArrivedAt   *time.Time `db:"arrived_at"`
	CompletedAt *time.Time `db:"completed_at"`
}

// Open reports whether the job still counts toward the active dispatch queue.
func (j *Job) Open() bool {
	return j.Status != StatusCompleted
}

// Bid is a vendor's price/ETA offer against an open job. Bids are never
// deleted; superseded bids remain for audit after selection.
type Bid struct {
	BidID       string    `db:"bid_id"`
	JobID       string    `db:"job_id"`
	VendorID    string    `db:"vendor_id"`
	VendorName  string    `db:"vendor_name"`
	VendorPhone string    `db:"vendor_phone"`
	ETAMinutes  int       `db:"eta_minutes"`
	Price       float64   `db:"price"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
