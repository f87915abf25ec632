package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

func seedJob(t *testing.T, s *Memory, mutate func(*domain.Job)) *domain.Job {
	t.Helper()
	job := &domain.Job{
		JobID:         "job-" + fmt.Sprint(time.Now().UnixNano()),
		ServiceType:   "towing",
		Urgency:       domain.UrgencyStandard,
		PickupAddress: "1200 Main St",
		Status:        domain.StatusUnassigned,
		BiddingOpen:   true,
		BidMode:       domain.BidModeOpen,
		CustomerToken: "cust-token",
		VendorToken:   "vend-token",
		GuestToken:    "guest-token",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	return job
}

func TestMemoryGetJob(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	got, err := s.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.JobID, got.JobID)

	// Returned copies must not alias stored state.
	got.Status = domain.StatusCompleted
	again, err := s.GetJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnassigned, again.Status)

	_, err = s.GetJob(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryGetJobByToken(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	tests := []struct {
		name    string
		token   string
		scope   domain.TokenScope
		wantErr bool
	}{
		{name: "customer token", token: job.CustomerToken, scope: domain.TokenScopeCustomer},
		{name: "vendor token", token: job.VendorToken, scope: domain.TokenScopeVendor},
		{name: "guest token", token: job.GuestToken, scope: domain.TokenScopeGuest},
		{name: "cross-scope use rejected", token: job.CustomerToken, scope: domain.TokenScopeVendor, wantErr: true},
		{name: "empty token rejected", token: "", scope: domain.TokenScopeGuest, wantErr: true},
		{name: "unknown token", token: "nope", scope: domain.TokenScopeGuest, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetJobByToken(ctx, tt.token, tt.scope)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrTokenInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, job.JobID, got.JobID)
		})
	}
}

func TestMemoryAdvanceStatusVersionGuard(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	updated, err := s.AdvanceStatus(ctx, job.JobID, domain.StatusAssigned, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.StatusVersion)
	assert.NotNil(t, updated.AssignedAt)

	// Replay with the consumed version loses.
	_, err = s.AdvanceStatus(ctx, job.JobID, domain.StatusOnTheWay, 0)
	assert.ErrorIs(t, err, domain.ErrStaleWrite)

	_, err = s.AdvanceStatus(ctx, "missing", domain.StatusAssigned, 0)
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryCompleteJob(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, func(j *domain.Job) {
		j.Status = domain.StatusArrived
		j.StatusVersion = 3
	})

	payment := domain.Payment{Amount: 120, Method: "card", ReportedAt: time.Now()}
	commission := domain.Commission{Rate: 0.25, Amount: 30, Status: "pending"}

	done, err := s.CompleteJob(ctx, job.JobID, 3, payment, commission, false, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, 4, done.StatusVersion)
	assert.False(t, done.BiddingOpen)
	require.NotNil(t, done.CompletedAt)

	// Terminal: a second completion fails the status guard.
	_, err = s.CompleteJob(ctx, job.JobID, 4, payment, commission, false, "")
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
}

func TestMemoryCompleteJobRequiresArrived(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	_, err := s.CompleteJob(ctx, job.JobID, 0, domain.Payment{Amount: 50}, domain.Commission{}, false, "")
	assert.ErrorIs(t, err, domain.ErrStaleWrite)
}

func TestMemoryUpsertBid(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	first, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-1", JobID: job.JobID, VendorName: "Ace", VendorPhone: "+15550100",
		ETAMinutes: 30, Price: 120, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	second, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-2", JobID: job.JobID, VendorID: "v-1", VendorName: "Ace", VendorPhone: "+15550100",
		ETAMinutes: 20, Price: 100, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, first.BidID, second.BidID)
	assert.Equal(t, 100.0, second.Price)

	bids, err := s.ListBids(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, 20, bids[0].ETAMinutes)

	// A vendor who first bid anonymously and resubmitted with a directory ID
	// is assigned by that ID, not the phone fallback.
	assert.Equal(t, "v-1", bids[0].VendorID)

	selected, err := s.SelectBid(ctx, job.JobID, first.BidID)
	require.NoError(t, err)
	assert.Equal(t, "v-1", selected.AssignedVendorID)
}

func TestMemoryListBidsOrdering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	for i, b := range []domain.Bid{
		{VendorName: "C", VendorPhone: "+3", ETAMinutes: 10, Price: 150},
		{VendorName: "A", VendorPhone: "+1", ETAMinutes: 40, Price: 90},
		{VendorName: "B", VendorPhone: "+2", ETAMinutes: 15, Price: 90},
	} {
		b.BidID = fmt.Sprintf("bid-%d", i)
		b.JobID = job.JobID
		b.CreatedAt = time.Now()
		_, err := s.UpsertBid(ctx, &b)
		require.NoError(t, err)
	}

	bids, err := s.ListBids(ctx, job.JobID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, "B", bids[0].VendorName, "cheapest then fastest first")
	assert.Equal(t, "A", bids[1].VendorName)
	assert.Equal(t, "C", bids[2].VendorName)
}

func TestMemorySelectBid(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	winner, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-1", JobID: job.JobID, VendorID: "v-1",
		VendorName: "Ace", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	loser, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-2", JobID: job.JobID,
		VendorName: "Metro", VendorPhone: "+15550200", ETAMinutes: 25, Price: 90, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	selected, err := s.SelectBid(ctx, job.JobID, winner.BidID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, selected.Status)
	assert.Equal(t, "v-1", selected.AssignedVendorID)
	assert.False(t, selected.BiddingOpen)

	_, err = s.SelectBid(ctx, job.JobID, loser.BidID)
	assert.ErrorIs(t, err, domain.ErrAlreadySelected)

	_, err = s.SelectBid(ctx, job.JobID, "missing")
	assert.ErrorIs(t, err, domain.ErrBidNotFound)
}

func TestMemorySelectBidFallsBackToPhone(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	bid, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-1", JobID: job.JobID,
		VendorName: "Ace", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	selected, err := s.SelectBid(ctx, job.JobID, bid.BidID)
	require.NoError(t, err)
	assert.Equal(t, "+15550100", selected.AssignedVendorID)
}

func TestMemorySelectBidClosedBidding(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, func(j *domain.Job) {
		j.BiddingOpen = false
	})

	bid, err := s.UpsertBid(ctx, &domain.Bid{
		BidID: "bid-1", JobID: job.JobID,
		VendorName: "Ace", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	_, err = s.SelectBid(ctx, job.JobID, bid.BidID)
	assert.ErrorIs(t, err, domain.ErrBiddingClosed)
}

func TestMemoryRevokeToken(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	job := seedJob(t, s, nil)

	require.NoError(t, s.RevokeToken(ctx, job.JobID, domain.TokenScopeVendor))

	_, err := s.GetJobByToken(ctx, job.VendorToken, domain.TokenScopeVendor)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	// Other scopes survive.
	_, err = s.GetJobByToken(ctx, job.CustomerToken, domain.TokenScopeCustomer)
	assert.NoError(t, err)

	assert.ErrorIs(t, s.RevokeToken(ctx, "missing", domain.TokenScopeVendor), domain.ErrJobNotFound)
}

func TestMemoryListJobs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		j := &domain.Job{
			JobID:     fmt.Sprintf("job-%d", i),
			Status:    domain.StatusUnassigned,
			Urgency:   domain.UrgencyStandard,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i == 4 {
			j.Urgency = domain.UrgencyEmergency
		}
		require.NoError(t, s.CreateJob(ctx, j))
	}

	t.Run("newest first", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, JobFilter{})
		require.NoError(t, err)
		require.Len(t, jobs, 5)
		assert.Equal(t, "job-4", jobs[0].JobID)
		assert.Equal(t, "job-0", jobs[4].JobID)
	})

	t.Run("urgency filter", func(t *testing.T) {
		jobs, err := s.ListJobs(ctx, JobFilter{Urgency: domain.UrgencyEmergency})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "job-4", jobs[0].JobID)
	})

	t.Run("cursor pagination", func(t *testing.T) {
		page, err := s.ListJobs(ctx, JobFilter{PageSize: 2})
		require.NoError(t, err)
		// One extra row signals another page.
		require.Len(t, page, 3)

		cursor := &JobCursor{CreatedAt: page[1].CreatedAt, JobID: page[1].JobID}
		next, err := s.ListJobs(ctx, JobFilter{PageSize: 2, Cursor: cursor})
		require.NoError(t, err)
		require.NotEmpty(t, next)
		assert.Equal(t, "job-2", next[0].JobID)
	})
}

func TestMemoryListJobsActiveSince(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	stale := now.Add(-3 * time.Hour)
	recent := now.Add(-10 * time.Minute)
	for _, j := range []*domain.Job{
		{JobID: "j-open", Status: domain.StatusOnTheWay},
		{JobID: "j-recent", Status: domain.StatusCompleted, CompletedAt: &recent},
		{JobID: "j-stale", Status: domain.StatusCompleted, CompletedAt: &stale},
	} {
		j.CreatedAt = now
		require.NoError(t, s.CreateJob(ctx, j))
	}

	jobs, err := s.ListJobs(ctx, JobFilter{ActiveSince: now.Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	ids := []string{jobs[0].JobID, jobs[1].JobID}
	assert.Contains(t, ids, "j-open")
	assert.Contains(t, ids, "j-recent")
}

func TestMemoryListBidsForJobs(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	jobA := seedJob(t, s, func(j *domain.Job) { j.JobID = "job-a" })
	jobB := seedJob(t, s, func(j *domain.Job) { j.JobID = "job-b" })

	for i, jobID := range []string{jobA.JobID, jobA.JobID, jobB.JobID} {
		_, err := s.UpsertBid(ctx, &domain.Bid{
			BidID: fmt.Sprintf("bid-%d", i), JobID: jobID,
			VendorPhone: fmt.Sprintf("+%d", i), ETAMinutes: 10 + i, Price: 100,
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	bids, err := s.ListBidsForJobs(ctx, []string{jobA.JobID})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	for _, b := range bids {
		assert.Equal(t, jobA.JobID, b.JobID)
	}

	none, err := s.ListBidsForJobs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
