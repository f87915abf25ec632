package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// Memory is the in-process Store used by tests and local development. A
// single mutex serializes every mutation, which also gives the per-job
// write-ordering guarantee the version checks rely on.
type Memory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	bids map[string]*domain.Bid
}

func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		bids: make(map[string]*domain.Bid),
	}
}

// copyJob returns a deep enough copy that callers cannot mutate shared state
// outside the lock.
func copyJob(j *domain.Job) *domain.Job {
	cp := *j
	if j.ReportedPayment != nil {
		p := *j.ReportedPayment
		cp.ReportedPayment = &p
	}
	if j.Commission != nil {
		c := *j.Commission
		cp.Commission = &c
	}
	return &cp
}

func (s *Memory) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = copyJob(job)
	return nil
}

func (s *Memory) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return copyJob(j), nil
}

func (s *Memory) GetJobByToken(ctx context.Context, token string, scope domain.TokenScope) (*domain.Job, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		var match bool
		switch scope {
		case domain.TokenScopeCustomer:
			match = j.CustomerToken == token
		case domain.TokenScopeVendor:
			match = j.VendorToken == token
		case domain.TokenScopeGuest:
			match = j.GuestToken == token
		}
		if match {
			return copyJob(j), nil
		}
	}
	return nil, domain.ErrTokenInvalid
}

func (s *Memory) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]domain.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Urgency != "" && j.Urgency != filter.Urgency {
			continue
		}
		if filter.VendorID != "" && j.AssignedVendorID != filter.VendorID {
			continue
		}
		if !filter.ActiveSince.IsZero() && j.Status == domain.StatusCompleted &&
			(j.CompletedAt == nil || j.CompletedAt.Before(filter.ActiveSince)) {
			continue
		}
		jobs = append(jobs, *copyJob(j))
	}

	sort.Slice(jobs, func(a, b int) bool {
		if !jobs[a].CreatedAt.Equal(jobs[b].CreatedAt) {
			return jobs[a].CreatedAt.After(jobs[b].CreatedAt)
		}
		return jobs[a].JobID > jobs[b].JobID
	})

	if filter.Cursor != nil {
		cut := 0
		for i, j := range jobs {
			if j.CreatedAt.Before(filter.Cursor.CreatedAt) ||
				(j.CreatedAt.Equal(filter.Cursor.CreatedAt) && j.JobID < filter.Cursor.JobID) {
				cut = i
				break
			}
			cut = i + 1
		}
		jobs = jobs[cut:]
	}

	if filter.PageSize > 0 && len(jobs) > filter.PageSize+1 {
		jobs = jobs[:filter.PageSize+1]
	}

	return jobs, nil
}

func (s *Memory) AdvanceStatus(ctx context.Context, jobID, to string, version int) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.StatusVersion != version {
		return nil, domain.ErrStaleWrite
	}

	now := time.Now()
	j.Status = to
	j.StatusVersion++
	j.UpdatedAt = now
	switch to {
	case domain.StatusAssigned:
		j.AssignedAt = &now
	case domain.StatusArrived:
		j.ArrivedAt = &now
	}

	return copyJob(j), nil
}

func (s *Memory) CompleteJob(ctx context.Context, jobID string, version int, payment domain.Payment, commission domain.Commission, underReported bool, reason string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.StatusVersion != version || j.Status != domain.StatusArrived {
		return nil, domain.ErrStaleWrite
	}

	now := time.Now()
	j.Status = domain.StatusCompleted
	j.StatusVersion++
	j.BiddingOpen = false
	j.ReportedPayment = &payment
	j.Commission = &commission
	j.UnderReported = underReported
	j.UnderReportReason = reason
	j.CompletedAt = &now
	j.UpdatedAt = now

	return copyJob(j), nil
}

func (s *Memory) RevokeToken(ctx context.Context, jobID string, scope domain.TokenScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}

	switch scope {
	case domain.TokenScopeCustomer:
		j.CustomerToken = ""
	case domain.TokenScopeVendor:
		j.VendorToken = ""
	case domain.TokenScopeGuest:
		j.GuestToken = ""
	default:
		return domain.ErrTokenInvalid
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) SetRating(ctx context.Context, jobID string, rating float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	j.Rating = &rating
	j.UpdatedAt = time.Now()
	return nil
}

func (s *Memory) UpsertBid(ctx context.Context, bid *domain.Bid) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.bids {
		if b.JobID == bid.JobID && b.VendorPhone == bid.VendorPhone {
			b.VendorID = bid.VendorID
			b.VendorName = bid.VendorName
			b.ETAMinutes = bid.ETAMinutes
			b.Price = bid.Price
			b.UpdatedAt = bid.CreatedAt
			cp := *b
			return &cp, nil
		}
	}

	cp := *bid
	cp.UpdatedAt = bid.CreatedAt
	s.bids[bid.BidID] = &cp
	out := cp
	return &out, nil
}

func (s *Memory) GetBid(ctx context.Context, bidID string) (*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bids[bidID]
	if !ok {
		return nil, domain.ErrBidNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Memory) ListBids(ctx context.Context, jobID string) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var bids []domain.Bid
	for _, b := range s.bids {
		if b.JobID == jobID {
			bids = append(bids, *b)
		}
	}
	sort.Slice(bids, func(a, c int) bool {
		if bids[a].Price != bids[c].Price {
			return bids[a].Price < bids[c].Price
		}
		return bids[a].ETAMinutes < bids[c].ETAMinutes
	})
	return bids, nil
}

func (s *Memory) ListBidsForJobs(ctx context.Context, jobIDs []string) ([]domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(jobIDs))
	for _, id := range jobIDs {
		wanted[id] = struct{}{}
	}

	bids := make([]domain.Bid, 0, len(s.bids))
	for _, b := range s.bids {
		if _, ok := wanted[b.JobID]; !ok {
			continue
		}
		bids = append(bids, *b)
	}
	sort.Slice(bids, func(a, c int) bool {
		return bids[a].CreatedAt.After(bids[c].CreatedAt)
	})
	return bids, nil
}

func (s *Memory) SelectBid(ctx context.Context, jobID, bidID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[bidID]
	if !ok || bid.JobID != jobID {
		return nil, domain.ErrBidNotFound
	}

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if j.SelectedBidID != "" {
		return nil, domain.ErrAlreadySelected
	}
	if !j.BiddingOpen {
		return nil, domain.ErrBiddingClosed
	}

	vendorID := bid.VendorID
	if vendorID == "" {
		vendorID = bid.VendorPhone
	}

	now := time.Now()
	j.SelectedBidID = bidID
	j.AssignedVendorID = vendorID
	j.Status = domain.StatusAssigned
	j.StatusVersion++
	j.BiddingOpen = false
	j.AssignedAt = &now
	j.UpdatedAt = now

	return copyJob(j), nil
}
