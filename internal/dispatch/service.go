package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
	"github.com/towbridge/dispatch/internal/notify"
	"github.com/towbridge/dispatch/internal/obs"
)

// EventPublisher receives lifecycle events. The notify engine implements it;
// tests pass nil to skip emission.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev notify.Event) error
}

// Config holds the dispatch business knobs.
type Config struct {
	// CommissionRate is applied to the reported completion amount.
	CommissionRate float64
	// UnderReportFloor flags completions reported below this fraction of the
	// selected bid price. Zero disables the check.
	UnderReportFloor float64
}

// Service is the job dispatch and bidding lifecycle engine.
type Service struct {
	store  storage.Store
	events EventPublisher
	cfg    Config
	logger *slog.Logger
}

func NewService(store storage.Store, events EventPublisher, cfg Config, logger *slog.Logger) *Service {
	if cfg.CommissionRate <= 0 {
		cfg.CommissionRate = 0.25
	}
	return &Service{
		store:  store,
		events: events,
		cfg:    cfg,
		logger: logger,
	}
}

// IntakeRequest is a guest/customer/admin job submission.
type IntakeRequest struct {
	ServiceType   string
	Urgency       string
	PickupAddress string
	PickupLat     float64
	PickupLng     float64
	DropoffAddr   string
	DropoffLat    *float64
	DropoffLng    *float64
	BidMode       string
	QuotedPrice   float64
}

// CreateJob opens a new job with bidding open and three freshly minted
// public tokens.
func (s *Service) CreateJob(ctx context.Context, req IntakeRequest) (*domain.Job, error) {
	urgency := req.Urgency
	if urgency == "" {
		urgency = domain.UrgencyStandard
	}
	switch urgency {
	case domain.UrgencyEmergency, domain.UrgencyUrgent, domain.UrgencyStandard:
	default:
		return nil, fmt.Errorf("unknown urgency %q", req.Urgency)
	}

	bidMode := req.BidMode
	if bidMode == "" {
		bidMode = domain.BidModeOpen
	}
	if bidMode != domain.BidModeOpen && bidMode != domain.BidModeFixed {
		return nil, fmt.Errorf("unknown bid mode %q", req.BidMode)
	}
	if bidMode == domain.BidModeFixed && req.QuotedPrice <= 0 {
		return nil, fmt.Errorf("fixed bid mode requires a quoted price")
	}

	now := time.Now()
	job := &domain.Job{
		JobID:         uuid.New().String(),
		ServiceType:   req.ServiceType,
		Urgency:       urgency,
		PickupAddress: req.PickupAddress,
		PickupLat:     req.PickupLat,
		PickupLng:     req.PickupLng,
		DropoffAddr:   req.DropoffAddr,
		DropoffLat:    req.DropoffLat,
		DropoffLng:    req.DropoffLng,
		Status:        domain.StatusUnassigned,
		StatusVersion: 0,
		BiddingOpen:   true,
		BidMode:       bidMode,
		QuotedPrice:   req.QuotedPrice,
		CustomerToken: uuid.New().String(),
		VendorToken:   uuid.New().String(),
		GuestToken:    uuid.New().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("service_type", job.ServiceType),
		slog.String("urgency", job.Urgency),
	)

	s.emit(ctx, notify.StatusChanged(job))
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

func (s *Service) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

// AdvanceStatus applies a bare status transition. The caller may pin the
// status version it read; otherwise the current version is used. A lost
// version race is retried once against a fresh read before ErrStaleWrite
// surfaces.
func (s *Service) AdvanceStatus(ctx context.Context, jobID, target string, version *int) (*domain.Job, error) {
	if !KnownStatus(target) {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, target)
	}

	pinned := version
	for attempt := 0; ; attempt++ {
		job, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if err := ValidateTransition(job.Status, target); err != nil {
			obs.RecordTransition(target, "rejected")
			return nil, err
		}

		// A job with bidding open and no winner stays unassigned; SelectBid is
		// the only path into ASSIGNED.
		if job.BiddingOpen && job.SelectedBidID == "" {
			obs.RecordTransition(target, "rejected")
			return nil, fmt.Errorf("%w: %s requires a selected bid", domain.ErrInvalidTransition, target)
		}

		v := job.StatusVersion
		if pinned != nil {
			v = *pinned
		}

		updated, err := s.store.AdvanceStatus(ctx, jobID, target, v)
		if err != nil {
			if errors.Is(err, domain.ErrStaleWrite) && attempt == 0 {
				// One automatic re-fetch-and-retry; the pin is dropped so the
				// retry revalidates against current state.
				pinned = nil
				continue
			}
			obs.RecordTransition(target, "stale")
			return nil, err
		}

		obs.RecordTransition(target, "applied")
		s.logger.Info("Job status advanced",
			slog.String("job_id", jobID),
			slog.String("from", job.Status),
			slog.String("to", target),
			slog.Int("version", updated.StatusVersion),
		)

		s.emit(ctx, notify.StatusChanged(updated))
		return updated, nil
	}
}

// CompletionRequest is the "report completion" submission payload.
type CompletionRequest struct {
	Amount  float64
	Method  string
	Note    string
	Version *int
}

// ReportCompletion is the only path to Completed. It atomically records the
// payment, computes the commission, sets the terminal status and closes
// bidding if still open.
func (s *Service) ReportCompletion(ctx context.Context, jobID string, req CompletionRequest) (*domain.Job, error) {
	if req.Amount <= 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, domain.ErrCompletionAmountInvalid
	}

	pinned := req.Version
	for attempt := 0; ; attempt++ {
		job, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if job.Status != domain.StatusArrived {
			obs.RecordTransition(domain.StatusCompleted, "rejected")
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, job.Status, domain.StatusCompleted)
		}

		payment := domain.Payment{
			Amount:     req.Amount,
			Method:     req.Method,
			Note:       req.Note,
			ReportedAt: time.Now(),
		}
		commission := domain.Commission{
			Rate:   s.cfg.CommissionRate,
			Amount: roundCurrency(s.cfg.CommissionRate * req.Amount),
			Status: "pending",
		}

		underReported, reason := s.checkUnderReport(ctx, job, req.Amount)

		v := job.StatusVersion
		if pinned != nil {
			v = *pinned
		}

		updated, err := s.store.CompleteJob(ctx, jobID, v, payment, commission, underReported, reason)
		if err != nil {
			if errors.Is(err, domain.ErrStaleWrite) && attempt == 0 {
				pinned = nil
				continue
			}
			obs.RecordTransition(domain.StatusCompleted, "stale")
			return nil, err
		}

		obs.RecordTransition(domain.StatusCompleted, "applied")
		s.logger.Info("Job completed",
			slog.String("job_id", jobID),
			slog.Float64("amount", payment.Amount),
			slog.String("method", payment.Method),
			slog.Float64("commission", commission.Amount),
			slog.Bool("under_reported", underReported),
		)

		s.emit(ctx, notify.StatusChanged(updated))
		return updated, nil
	}
}

// checkUnderReport compares the reported amount against the selected bid
// price when a floor is configured.
func (s *Service) checkUnderReport(ctx context.Context, job *domain.Job, amount float64) (bool, string) {
	if s.cfg.UnderReportFloor <= 0 || job.SelectedBidID == "" {
		return false, ""
	}

	bid, err := s.store.GetBid(ctx, job.SelectedBidID)
	if err != nil || bid.Price <= 0 {
		return false, ""
	}

	floor := roundCurrency(bid.Price * s.cfg.UnderReportFloor)
	if amount >= floor {
		return false, ""
	}
	return true, fmt.Sprintf("reported %.2f below %.2f floor of selected bid %.2f", amount, floor, bid.Price)
}

// BidRequest is a vendor's submission against an open job's vendor token.
type BidRequest struct {
	VendorID    string
	VendorName  string
	VendorPhone string
	ETAMinutes  int
	Price       float64
}

// SubmitBid upserts the vendor's bid on the job addressed by the vendor
// token. Under fixed bid mode the submitted price is replaced by the job's
// quoted price; only the ETA is vendor-supplied.
func (s *Service) SubmitBid(ctx context.Context, vendorToken string, req BidRequest) (*domain.Bid, error) {
	job, err := s.store.GetJobByToken(ctx, vendorToken, domain.TokenScopeVendor)
	if err != nil {
		return nil, err
	}
	if !job.BiddingOpen {
		return nil, domain.ErrBiddingClosed
	}
	if req.VendorPhone == "" {
		return nil, fmt.Errorf("vendor phone is required")
	}
	if req.ETAMinutes <= 0 {
		return nil, fmt.Errorf("eta must be positive")
	}

	price := req.Price
	if job.BidMode == domain.BidModeFixed {
		price = job.QuotedPrice
	} else if price <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}

	bid := &domain.Bid{
		BidID:       uuid.New().String(),
		JobID:       job.JobID,
		VendorID:    req.VendorID,
		VendorName:  req.VendorName,
		VendorPhone: req.VendorPhone,
		ETAMinutes:  req.ETAMinutes,
		Price:       price,
		CreatedAt:   time.Now(),
	}

	stored, err := s.store.UpsertBid(ctx, bid)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bid submitted",
		slog.String("job_id", job.JobID),
		slog.String("bid_id", stored.BidID),
		slog.String("vendor", stored.VendorName),
		slog.Float64("price", stored.Price),
		slog.Int("eta_minutes", stored.ETAMinutes),
	)

	s.emit(ctx, notify.BidReceived(job, stored))
	return stored, nil
}

// ListBidsByToken returns the bids visible to the customer token holder.
func (s *Service) ListBidsByToken(ctx context.Context, customerToken string) (*domain.Job, []domain.Bid, error) {
	job, err := s.store.GetJobByToken(ctx, customerToken, domain.TokenScopeCustomer)
	if err != nil {
		return nil, nil, err
	}
	bids, err := s.store.ListBids(ctx, job.JobID)
	if err != nil {
		return nil, nil, err
	}
	return job, bids, nil
}

// SelectBid closes bidding and assigns the winning vendor. First caller
// wins; concurrent losers receive ErrAlreadySelected.
func (s *Service) SelectBid(ctx context.Context, jobID, bidID string) (*domain.Job, error) {
	job, err := s.store.SelectBid(ctx, jobID, bidID)
	if err != nil {
		return nil, err
	}

	obs.RecordTransition(domain.StatusAssigned, "applied")
	s.logger.Info("Bid selected",
		slog.String("job_id", jobID),
		slog.String("bid_id", bidID),
		slog.String("vendor_id", job.AssignedVendorID),
	)

	s.emit(ctx, notify.StatusChanged(job))
	return job, nil
}

// SelectBidByToken is the customer-facing selection entry point.
func (s *Service) SelectBidByToken(ctx context.Context, customerToken, bidID string) (*domain.Job, error) {
	job, err := s.store.GetJobByToken(ctx, customerToken, domain.TokenScopeCustomer)
	if err != nil {
		return nil, err
	}
	return s.SelectBid(ctx, job.JobID, bidID)
}

// TrackByToken returns the guest tracking view for a job.
func (s *Service) TrackByToken(ctx context.Context, guestToken string) (*domain.Job, error) {
	return s.store.GetJobByToken(ctx, guestToken, domain.TokenScopeGuest)
}

// RateByToken records the customer's post-completion rating.
func (s *Service) RateByToken(ctx context.Context, guestToken string, stars float64) error {
	if stars < 1 || stars > 5 {
		return fmt.Errorf("rating must be between 1 and 5")
	}
	job, err := s.store.GetJobByToken(ctx, guestToken, domain.TokenScopeGuest)
	if err != nil {
		return err
	}
	if job.Status != domain.StatusCompleted {
		return fmt.Errorf("%w: job not completed", domain.ErrInvalidTransition)
	}
	return s.store.SetRating(ctx, job.JobID, stars)
}

// RevokeToken invalidates one of the job's public tokens.
func (s *Service) RevokeToken(ctx context.Context, jobID string, scope domain.TokenScope) error {
	return s.store.RevokeToken(ctx, jobID, scope)
}

// emit publishes an event; emission failures never fail the mutation that
// produced them.
func (s *Service) emit(ctx context.Context, ev notify.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish event",
			slog.String("dedupe_key", ev.Notification.Meta.DedupeKey),
			slog.Any("error", err),
		)
	}
}

// roundCurrency rounds to cents.
func roundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
