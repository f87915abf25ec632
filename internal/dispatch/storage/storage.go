package storage

import (
	"context"
	"time"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// JobFilter narrows ListJobs results. Zero values mean "no filter".
type JobFilter struct {
	Status   string
	Urgency  string
	VendorID string
	PageSize int
	Cursor   *JobCursor

	// ActiveSince drops jobs completed before the given time. Jobs in any
	// non-terminal status always pass.
	ActiveSince time.Time
}

// JobCursor is the keyset cursor for job listing, ordered by
// (created_at DESC, job_id DESC).
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// Store is the durable job record store and bid ledger. Postgres is the
// production implementation; Memory backs engine and handler tests.
//
// Status writes are optimistic: the caller passes the status_version it read
// and receives domain.ErrStaleWrite when the version advanced underneath it.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	GetJobByToken(ctx context.Context, token string, scope domain.TokenScope) (*domain.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error)

	// AdvanceStatus writes a validated bare status transition.
	AdvanceStatus(ctx context.Context, jobID, to string, version int) (*domain.Job, error)

	// CompleteJob atomically records the completion submission, the derived
	// commission, status COMPLETED, and closes bidding if still open.
	CompleteJob(ctx context.Context, jobID string, version int, payment domain.Payment, commission domain.Commission, underReported bool, reason string) (*domain.Job, error)

	RevokeToken(ctx context.Context, jobID string, scope domain.TokenScope) error
	SetRating(ctx context.Context, jobID string, rating float64) error

	// UpsertBid inserts a vendor's bid or, when the same vendor already bid
	// on the job, updates it in place.
	UpsertBid(ctx context.Context, bid *domain.Bid) (*domain.Bid, error)
	GetBid(ctx context.Context, bidID string) (*domain.Bid, error)
	ListBids(ctx context.Context, jobID string) ([]domain.Bid, error)

	// ListBidsForJobs returns the bids belonging to the given jobs, newest
	// first. The snapshot watcher uses it to bound its poll.
	ListBidsForJobs(ctx context.Context, jobIDs []string) ([]domain.Bid, error)

	// SelectBid marks the winning bid, assigns the vendor and closes bidding.
	// Exactly one caller ever succeeds per job.
	SelectBid(ctx context.Context, jobID, bidID string) (*domain.Job, error)
}
