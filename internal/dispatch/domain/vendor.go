package domain

import "context"

// Vendor is the read model consumed by routing and the dashboard. It is
// owned by the vendor directory collaborator, not by this core.
type Vendor struct {
	VendorID         string   `db:"vendor_id"`
	Name             string   `db:"name"`
	Phone            string   `db:"phone"`
	City             string   `db:"city"`
	Lat              *float64 `db:"lat"`
	Lng              *float64 `db:"lng"`
	Active           bool     `db:"active"`
	Backlog          int      `db:"backlog"`
	ComplianceIssues []string `db:"-"`
}

// VendorDirectory is the read-only collaborator contract for vendor data.
type VendorDirectory interface {
	ListVendors(ctx context.Context) ([]Vendor, error)
}

// ComplianceTask is an expiring/missing-document task surfaced on the
// dashboard as a pass-through; this core does not validate document content.
type ComplianceTask struct {
	VendorID    string `json:"vendor_id"`
	VendorName  string `json:"vendor_name"`
	Document    string `json:"document"`
	Description string `json:"description"`
	DueInDays   int    `json:"due_in_days"`
}

// ComplianceSource is the read-only documents collaborator contract.
type ComplianceSource interface {
	ListTasks(ctx context.Context) ([]ComplianceTask, error)
}
