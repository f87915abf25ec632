package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/shared/postgresql"
)

// Postgres implements Store on top of the shared PostgreSQL client.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgres(pg *postgresql.Client, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     pg.GetDB(),
		logger: logger,
	}
}

// jobRow is the flat column representation of a job.
type jobRow struct {
	JobID       string  `db:"job_id"`
	ServiceType string  `db:"service_type"`
	Urgency     string  `db:"urgency"`
	PickupAddr  string  `db:"pickup_address"`
	PickupLat   float64 `db:"pickup_lat"`
	PickupLng   float64 `db:"pickup_lng"`

	DropoffAddr sql.NullString  `db:"dropoff_address"`
	DropoffLat  sql.NullFloat64 `db:"dropoff_lat"`
	DropoffLng  sql.NullFloat64 `db:"dropoff_lng"`

	Status        string `db:"status"`
	StatusVersion int    `db:"status_version"`

	AssignedVendorID sql.NullString `db:"assigned_vendor_id"`
	BiddingOpen      bool           `db:"bidding_open"`
	BidMode          string         `db:"bid_mode"`
	QuotedPrice      float64        `db:"quoted_price"`
	SelectedBidID    sql.NullString `db:"selected_bid_id"`

	CustomerToken sql.NullString `db:"customer_token"`
	VendorToken   sql.NullString `db:"vendor_token"`
	GuestToken    sql.NullString `db:"guest_token"`

	PaymentAmount     sql.NullFloat64 `db:"payment_amount"`
	PaymentMethod     sql.NullString  `db:"payment_method"`
	PaymentNote       sql.NullString  `db:"payment_note"`
	PaymentReportedAt sql.NullTime    `db:"payment_reported_at"`

	CommissionRate    sql.NullFloat64 `db:"commission_rate"`
	CommissionAmount  sql.NullFloat64 `db:"commission_amount"`
	CommissionStatus  sql.NullString  `db:"commission_status"`
	CommissionCharge  sql.NullString  `db:"commission_charge_id"`
	CommissionFailure sql.NullString  `db:"commission_failure_reason"`

	UnderReported     bool           `db:"under_reported"`
	UnderReportReason sql.NullString `db:"under_report_reason"`

	Rating sql.NullFloat64 `db:"rating"`

	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	AssignedAt  sql.NullTime `db:"assigned_at"`
	ArrivedAt   sql.NullTime `db:"arrived_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

const jobColumns = `
	job_id, service_type, urgency,
	pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng,
	status, status_version,
	assigned_vendor_id, bidding_open, bid_mode, quoted_price, selected_bid_id,
	customer_token, vendor_token, guest_token,
	payment_amount, payment_method, payment_note, payment_reported_at,
	commission_rate, commission_amount, commission_status, commission_charge_id, commission_failure_reason,
	under_reported, under_report_reason, rating,
	created_at, updated_at, assigned_at, arrived_at, completed_at`

func (r *jobRow) toDomain() *domain.Job {
	job := &domain.Job{
		JobID:             r.JobID,
		ServiceType:       r.ServiceType,
		Urgency:           r.Urgency,
		PickupAddress:     r.PickupAddr,
		PickupLat:         r.PickupLat,
		PickupLng:         r.PickupLng,
		DropoffAddr:       r.DropoffAddr.String,
		Status:            r.Status,
		StatusVersion:     r.StatusVersion,
		AssignedVendorID:  r.AssignedVendorID.String,
		BiddingOpen:       r.BiddingOpen,
		BidMode:           r.BidMode,
		QuotedPrice:       r.QuotedPrice,
		SelectedBidID:     r.SelectedBidID.String,
		CustomerToken:     r.CustomerToken.String,
		VendorToken:       r.VendorToken.String,
		GuestToken:        r.GuestToken.String,
		UnderReported:     r.UnderReported,
		UnderReportReason: r.UnderReportReason.String,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.DropoffLat.Valid {
		v := r.DropoffLat.Float64
		job.DropoffLat = &v
	}
	if r.DropoffLng.Valid {
		v := r.DropoffLng.Float64
		job.DropoffLng = &v
	}
	if r.PaymentAmount.Valid {
		job.ReportedPayment = &domain.Payment{
			Amount:     r.PaymentAmount.Float64,
			Method:     r.PaymentMethod.String,
			Note:       r.PaymentNote.String,
			ReportedAt: r.PaymentReportedAt.Time,
		}
	}
	if r.CommissionRate.Valid {
		job.Commission = &domain.Commission{
			Rate:          r.CommissionRate.Float64,
			Amount:        r.CommissionAmount.Float64,
			Status:        r.CommissionStatus.String,
			ChargeID:      r.CommissionCharge.String,
			FailureReason: r.CommissionFailure.String,
		}
	}
	if r.Rating.Valid {
		v := r.Rating.Float64
		job.Rating = &v
	}
	if r.AssignedAt.Valid {
		t := r.AssignedAt.Time
		job.AssignedAt = &t
	}
	if r.ArrivedAt.Valid {
		t := r.ArrivedAt.Time
		job.ArrivedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}
	return job
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullF64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func (s *Postgres) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, service_type, urgency,
			pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng,
			status, status_version,
			bidding_open, bid_mode, quoted_price,
			customer_token, vendor_token, guest_token,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9,
			$10, $11,
			$12, $13, $14,
			$15, $16, $17,
			$18, $19
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.ServiceType,
		job.Urgency,
		job.PickupAddress,
		job.PickupLat,
		job.PickupLng,
		nullStr(job.DropoffAddr),
		nullF64(job.DropoffLat),
		nullF64(job.DropoffLng),
		job.Status,
		job.StatusVersion,
		job.BiddingOpen,
		job.BidMode,
		job.QuotedPrice,
		nullStr(job.CustomerToken),
		nullStr(job.VendorToken),
		nullStr(job.GuestToken),
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Postgres) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &row, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain(), nil
}

func (s *Postgres) GetJobByToken(ctx context.Context, token string, scope domain.TokenScope) (*domain.Job, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	var column string
	switch scope {
	case domain.TokenScopeCustomer:
		column = "customer_token"
	case domain.TokenScopeVendor:
		column = "vendor_token"
	case domain.TokenScopeGuest:
		column = "guest_token"
	default:
		return nil, domain.ErrTokenInvalid
	}

	var row jobRow
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + column + ` = $1`

	err := s.db.GetContext(ctx, &row, query, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}

	return row.toDomain(), nil
}

func (s *Postgres) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Urgency != "" {
		query += fmt.Sprintf(" AND urgency = $%d", argIdx)
		args = append(args, filter.Urgency)
		argIdx++
	}

	if filter.VendorID != "" {
		query += fmt.Sprintf(" AND assigned_vendor_id = $%d", argIdx)
		args = append(args, filter.VendorID)
		argIdx++
	}

	if !filter.ActiveSince.IsZero() {
		query += fmt.Sprintf(" AND (status <> $%d OR completed_at >= $%d)", argIdx, argIdx+1)
		args = append(args, domain.StatusCompleted, filter.ActiveSince)
		argIdx += 2
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	if filter.PageSize > 0 {
		// Fetch one extra so the caller can detect another page.
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.PageSize+1)
	}

	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i := range rows {
		jobs[i] = *rows[i].toDomain()
	}
	return jobs, nil
}

func (s *Postgres) AdvanceStatus(ctx context.Context, jobID, to string, version int) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2,
		    status_version = status_version + 1,
		    assigned_at = CASE WHEN $2 = $4 THEN NOW() ELSE assigned_at END,
		    arrived_at  = CASE WHEN $2 = $5 THEN NOW() ELSE arrived_at END,
		    updated_at = NOW()
		WHERE job_id = $1
		  AND status_version = $3
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, jobID, to, version, domain.StatusAssigned, domain.StatusArrived)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedWrite(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to advance status: %w", err)
	}

	return row.toDomain(), nil
}

func (s *Postgres) CompleteJob(ctx context.Context, jobID string, version int, payment domain.Payment, commission domain.Commission, underReported bool, reason string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $4,
		    status_version = status_version + 1,
		    bidding_open = FALSE,
		    payment_amount = $5,
		    payment_method = $6,
		    payment_note = $7,
		    payment_reported_at = $8,
		    commission_rate = $9,
		    commission_amount = $10,
		    commission_status = $11,
		    under_reported = $12,
		    under_report_reason = $13,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1
		  AND status_version = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query,
		jobID,
		version,
		domain.StatusArrived,
		domain.StatusCompleted,
		payment.Amount,
		payment.Method,
		nullStr(payment.Note),
		payment.ReportedAt,
		commission.Rate,
		commission.Amount,
		commission.Status,
		underReported,
		nullStr(reason),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissedWrite(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}

	return row.toDomain(), nil
}

// classifyMissedWrite distinguishes a vanished job from a lost version race.
func (s *Postgres) classifyMissedWrite(ctx context.Context, jobID string) error {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = $1)`, jobID)
	if err != nil {
		return fmt.Errorf("failed to classify missed write: %w", err)
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return domain.ErrStaleWrite
}

func (s *Postgres) RevokeToken(ctx context.Context, jobID string, scope domain.TokenScope) error {
	var column string
	switch scope {
	case domain.TokenScopeCustomer:
		column = "customer_token"
	case domain.TokenScopeVendor:
		column = "vendor_token"
	case domain.TokenScopeGuest:
		column = "guest_token"
	default:
		return domain.ErrTokenInvalid
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET `+column+` = NULL, updated_at = NOW() WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Postgres) SetRating(ctx context.Context, jobID string, rating float64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET rating = $2, updated_at = NOW() WHERE job_id = $1`, jobID, rating)
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *Postgres) UpsertBid(ctx context.Context, bid *domain.Bid) (*domain.Bid, error) {
	query := `
		INSERT INTO bids (
			bid_id, job_id, vendor_id, vendor_name, vendor_phone,
			eta_minutes, price, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (job_id, vendor_phone) DO UPDATE
		SET vendor_id = EXCLUDED.vendor_id,
		    vendor_name = EXCLUDED.vendor_name,
		    eta_minutes = EXCLUDED.eta_minutes,
		    price = EXCLUDED.price,
		    updated_at = EXCLUDED.updated_at
		RETURNING bid_id, job_id, vendor_id, vendor_name, vendor_phone, eta_minutes, price, created_at, updated_at
	`

	var out domain.Bid
	err := s.db.GetContext(ctx, &out, query,
		bid.BidID,
		bid.JobID,
		bid.VendorID,
		bid.VendorName,
		bid.VendorPhone,
		bid.ETAMinutes,
		bid.Price,
		bid.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bid: %w", err)
	}

	return &out, nil
}

func (s *Postgres) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	var bid domain.Bid
	query := `
		SELECT bid_id, job_id, vendor_id, vendor_name, vendor_phone, eta_minutes, price, created_at, updated_at
		FROM bids WHERE bid_id = $1
	`

	err := s.db.GetContext(ctx, &bid, query, bidID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBidNotFound
		}
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}

	return &bid, nil
}

func (s *Postgres) ListBids(ctx context.Context, jobID string) ([]domain.Bid, error) {
	var bids []domain.Bid
	query := `
		SELECT bid_id, job_id, vendor_id, vendor_name, vendor_phone, eta_minutes, price, created_at, updated_at
		FROM bids WHERE job_id = $1
		ORDER BY price ASC, eta_minutes ASC
	`

	err := s.db.SelectContext(ctx, &bids, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}

	return bids, nil
}

func (s *Postgres) ListBidsForJobs(ctx context.Context, jobIDs []string) ([]domain.Bid, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	var bids []domain.Bid
	query := `
		SELECT bid_id, job_id, vendor_id, vendor_name, vendor_phone, eta_minutes, price, created_at, updated_at
		FROM bids
		WHERE job_id = ANY($1)
		ORDER BY created_at DESC
	`

	err := s.db.SelectContext(ctx, &bids, query, pq.Array(jobIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}

	return bids, nil
}

func (s *Postgres) SelectBid(ctx context.Context, jobID, bidID string) (*domain.Job, error) {
	bid, err := s.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.JobID != jobID {
		return nil, domain.ErrBidNotFound
	}

	vendorID := bid.VendorID
	if vendorID == "" {
		vendorID = bid.VendorPhone
	}

	// The guard clause makes selection first-caller-wins; losers fall through
	// to classification below.
	query := `
		UPDATE jobs
		SET selected_bid_id = $2,
		    assigned_vendor_id = $3,
		    status = $4,
		    status_version = status_version + 1,
		    bidding_open = FALSE,
		    assigned_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1
		  AND bidding_open = TRUE
		  AND selected_bid_id IS NULL
		RETURNING ` + jobColumns

	var row jobRow
	err = s.db.GetContext(ctx, &row, query, jobID, bidID, vendorID, domain.StatusAssigned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifySelectFailure(ctx, jobID)
		}
		return nil, fmt.Errorf("failed to select bid: %w", err)
	}

	return row.toDomain(), nil
}

func (s *Postgres) classifySelectFailure(ctx context.Context, jobID string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.SelectedBidID != "" {
		return domain.ErrAlreadySelected
	}
	return domain.ErrBiddingClosed
}
