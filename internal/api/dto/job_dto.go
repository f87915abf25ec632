package dto

type CreateJobRequest struct {
	ServiceType   string   `json:"service_type" binding:"required"`
	Urgency       string   `json:"urgency"`
	PickupAddress string   `json:"pickup_address" binding:"required"`
	PickupLat     float64  `json:"pickup_lat" binding:"required"`
	PickupLng     float64  `json:"pickup_lng" binding:"required"`
	DropoffAddr   string   `json:"dropoff_address"`
	DropoffLat    *float64 `json:"dropoff_lat"`
	DropoffLng    *float64 `json:"dropoff_lng"`
	BidMode       string   `json:"bid_mode"`
	QuotedPrice   float64  `json:"quoted_price"`
}

type UpdateStatusRequest struct {
	Status  string `json:"status" binding:"required"`
	Version *int   `json:"version"`
}

type CompletionRequest struct {
	Amount  float64 `json:"amount" binding:"required"`
	Method  string  `json:"method" binding:"required"`
	Note    string  `json:"note"`
	Version *int    `json:"version"`
}

type SubmitBidRequest struct {
	VendorID    string  `json:"vendor_id"`
	VendorName  string  `json:"vendor_name" binding:"required"`
	VendorPhone string  `json:"vendor_phone" binding:"required"`
	ETAMinutes  int     `json:"eta_minutes" binding:"required"`
	Price       float64 `json:"price"`
}

type SelectBidRequest struct {
	BidID string `json:"bid_id" binding:"required"`
}

type RatingRequest struct {
	Stars float64 `json:"stars" binding:"required"`
}

type ListJobsRequest struct {
	Status   string `form:"status"`
	Urgency  string `form:"urgency"`
	VendorID string `form:"vendor_id"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type PaymentDTO struct {
	Amount     float64 `json:"amount"`
	Method     string  `json:"method"`
	Note       string  `json:"note,omitempty"`
	ReportedAt string  `json:"reported_at"`
}

type CommissionDTO struct {
	Rate   float64 `json:"rate"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

type JobDTO struct {
	JobID             string         `json:"job_id"`
	ServiceType       string         `json:"service_type"`
	Urgency           string         `json:"urgency"`
	PickupAddress     string         `json:"pickup_address"`
	PickupLat         float64        `json:"pickup_lat"`
	PickupLng         float64        `json:"pickup_lng"`
	DropoffAddress    string         `json:"dropoff_address,omitempty"`
	Status            string         `json:"status"`
	Version           int            `json:"version"`
	AssignedVendorID  string         `json:"assigned_vendor_id,omitempty"`
	BiddingOpen       bool           `json:"bidding_open"`
	BidMode           string         `json:"bid_mode"`
	QuotedPrice       float64        `json:"quoted_price,omitempty"`
	SelectedBidID     string         `json:"selected_bid_id,omitempty"`
	CustomerToken     string         `json:"customer_token,omitempty"`
	VendorToken       string         `json:"vendor_token,omitempty"`
	GuestToken        string         `json:"guest_token,omitempty"`
	ReportedPayment   *PaymentDTO    `json:"reported_payment,omitempty"`
	Commission        *CommissionDTO `json:"commission,omitempty"`
	UnderReported     bool           `json:"under_reported,omitempty"`
	UnderReportReason string         `json:"under_report_reason,omitempty"`
	Rating            *float64       `json:"rating,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

type BidDTO struct {
	BidID      string  `json:"bid_id"`
	JobID      string  `json:"job_id"`
	VendorName string  `json:"vendor_name"`
	ETAMinutes int     `json:"eta_minutes"`
	Price      float64 `json:"price"`
	CreatedAt  string  `json:"created_at"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}
