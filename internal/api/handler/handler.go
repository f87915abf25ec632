package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/towbridge/dispatch/internal/api/dto"
	"github.com/towbridge/dispatch/internal/dispatch"
	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/sla"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
	"github.com/towbridge/dispatch/internal/notify"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger      *slog.Logger
	Service     *dispatch.Service
	Store       storage.Store
	Vendors     domain.VendorDirectory
	Compliance  domain.ComplianceSource
	Notify      *notify.Engine
	Thresholds  sla.Thresholds
	RoutingTopN int
}

// DispatchHandler handles all dispatch HTTP requests.
type DispatchHandler struct {
	logger      *slog.Logger
	service     *dispatch.Service
	store       storage.Store
	vendors     domain.VendorDirectory
	compliance  domain.ComplianceSource
	notify      *notify.Engine
	thresholds  sla.Thresholds
	routingTopN int
}

// NewDispatchHandler creates a new DispatchHandler instance.
func NewDispatchHandler(deps *Dependencies) *DispatchHandler {
	return &DispatchHandler{
		logger:      deps.Logger,
		service:     deps.Service,
		store:       deps.Store,
		vendors:     deps.Vendors,
		compliance:  deps.Compliance,
		notify:      deps.Notify,
		thresholds:  deps.Thresholds,
		routingTopN: deps.RoutingTopN,
	}
}

// respondError maps the dispatch error taxonomy onto HTTP statuses with a
// human-readable reason. Everything in the taxonomy is a structured
// rejection, not a crash.
func (h *DispatchHandler) respondError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrBidNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrTokenInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBiddingClosed),
		errors.Is(err, domain.ErrAlreadySelected),
		errors.Is(err, domain.ErrCompletionAmountInvalid),
		errors.Is(err, domain.ErrStaleWrite):
		status = http.StatusConflict
	default:
		h.logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func paymentDTO(p *domain.Payment) *dto.PaymentDTO {
	if p == nil {
		return nil
	}
	return &dto.PaymentDTO{
		Amount:     p.Amount,
		Method:     p.Method,
		Note:       p.Note,
		ReportedAt: p.ReportedAt.Format(time.RFC3339),
	}
}

func commissionDTO(cm *domain.Commission) *dto.CommissionDTO {
	if cm == nil {
		return nil
	}
	return &dto.CommissionDTO{
		Rate:   cm.Rate,
		Amount: cm.Amount,
		Status: cm.Status,
	}
}

// jobDTO renders a job for the admin surface, tokens included.
func jobDTO(j *domain.Job) dto.JobDTO {
	return dto.JobDTO{
		JobID:             j.JobID,
		ServiceType:       j.ServiceType,
		Urgency:           j.Urgency,
		PickupAddress:     j.PickupAddress,
		PickupLat:         j.PickupLat,
		PickupLng:         j.PickupLng,
		DropoffAddress:    j.DropoffAddr,
		Status:            j.Status,
		Version:           j.StatusVersion,
		AssignedVendorID:  j.AssignedVendorID,
		BiddingOpen:       j.BiddingOpen,
		BidMode:           j.BidMode,
		QuotedPrice:       j.QuotedPrice,
		SelectedBidID:     j.SelectedBidID,
		CustomerToken:     j.CustomerToken,
		VendorToken:       j.VendorToken,
		GuestToken:        j.GuestToken,
		ReportedPayment:   paymentDTO(j.ReportedPayment),
		Commission:        commissionDTO(j.Commission),
		UnderReported:     j.UnderReported,
		UnderReportReason: j.UnderReportReason,
		Rating:            j.Rating,
		CreatedAt:         j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         j.UpdatedAt.Format(time.RFC3339),
	}
}

// publicJobDTO strips tokens and financials for tokenized surfaces.
func publicJobDTO(j *domain.Job) dto.JobDTO {
	out := jobDTO(j)
	out.CustomerToken = ""
	out.VendorToken = ""
	out.GuestToken = ""
	out.Commission = nil
	out.UnderReported = false
	out.UnderReportReason = ""
	return out
}

func bidDTO(b *domain.Bid) dto.BidDTO {
	return dto.BidDTO{
		BidID:      b.BidID,
		JobID:      b.JobID,
		VendorName: b.VendorName,
		ETAMinutes: b.ETAMinutes,
		Price:      b.Price,
		CreatedAt:  b.CreatedAt.Format(time.RFC3339),
	}
}
