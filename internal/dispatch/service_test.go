package dispatch

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
	"github.com/towbridge/dispatch/internal/dispatch/storage"
	"github.com/towbridge/dispatch/internal/notify"
)

// recordingPublisher captures every emitted event for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) PublishEvent(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Notification.Meta.DedupeKey)
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *storage.Memory, *recordingPublisher) {
	t.Helper()
	store := storage.NewMemory()
	events := &recordingPublisher{}
	svc := NewService(store, events, Config{
		CommissionRate:   0.25,
		UnderReportFloor: 0.5,
	}, testLogger())
	return svc, store, events
}

func createJob(t *testing.T, svc *Service, req IntakeRequest) *domain.Job {
	t.Helper()
	if req.ServiceType == "" {
		req.ServiceType = "towing"
	}
	if req.PickupAddress == "" {
		req.PickupAddress = "1200 Main St"
	}
	job, err := svc.CreateJob(context.Background(), req)
	require.NoError(t, err)
	return job
}

// driveToArrived moves a fresh job through bid selection and the forward
// transitions so completion tests can start at ARRIVED.
func driveToArrived(t *testing.T, svc *Service, job *domain.Job, bidPrice float64) *domain.Bid {
	t.Helper()
	ctx := context.Background()

	bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
		VendorID:    "v-100",
		VendorName:  "Ace Towing",
		VendorPhone: "+15550100",
		ETAMinutes:  20,
		Price:       bidPrice,
	})
	require.NoError(t, err)

	_, err = svc.SelectBid(ctx, job.JobID, bid.BidID)
	require.NoError(t, err)

	_, err = svc.AdvanceStatus(ctx, job.JobID, domain.StatusOnTheWay, nil)
	require.NoError(t, err)
	_, err = svc.AdvanceStatus(ctx, job.JobID, domain.StatusArrived, nil)
	require.NoError(t, err)

	return bid
}

func TestCreateJob(t *testing.T) {
	tests := []struct {
		name    string
		req     IntakeRequest
		wantErr bool
	}{
		{
			name: "defaults applied",
			req:  IntakeRequest{ServiceType: "towing", PickupAddress: "1200 Main St"},
		},
		{
			name: "emergency open bidding",
			req: IntakeRequest{
				ServiceType:   "jump_start",
				Urgency:       domain.UrgencyEmergency,
				PickupAddress: "1200 Main St",
				BidMode:       domain.BidModeOpen,
			},
		},
		{
			name: "fixed mode with quote",
			req: IntakeRequest{
				ServiceType:   "towing",
				PickupAddress: "1200 Main St",
				BidMode:       domain.BidModeFixed,
				QuotedPrice:   150,
			},
		},
		{
			name:    "unknown urgency rejected",
			req:     IntakeRequest{ServiceType: "towing", Urgency: "asap"},
			wantErr: true,
		},
		{
			name:    "unknown bid mode rejected",
			req:     IntakeRequest{ServiceType: "towing", BidMode: "auction"},
			wantErr: true,
		},
		{
			name:    "fixed mode without quote rejected",
			req:     IntakeRequest{ServiceType: "towing", BidMode: domain.BidModeFixed},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(t)
			job, err := svc.CreateJob(context.Background(), tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, domain.StatusUnassigned, job.Status)
			assert.Equal(t, 0, job.StatusVersion)
			assert.True(t, job.BiddingOpen)
			assert.NotEmpty(t, job.CustomerToken)
			assert.NotEmpty(t, job.VendorToken)
			assert.NotEmpty(t, job.GuestToken)
			assert.NotEqual(t, job.CustomerToken, job.VendorToken)
			assert.NotEqual(t, job.VendorToken, job.GuestToken)
		})
	}
}

func TestAdvanceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("forward chain increments version", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		got, err := svc.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusArrived, got.Status)
		assert.Equal(t, 3, got.StatusVersion)
		assert.NotNil(t, got.AssignedAt)
		assert.NotNil(t, got.ArrivedAt)
	})

	t.Run("regression rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		_, err := svc.AdvanceStatus(ctx, job.JobID, domain.StatusOnTheWay, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := svc.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusArrived, got.Status)
		assert.Equal(t, 3, got.StatusVersion, "rejected transition must not bump the version")
	})

	t.Run("completed unreachable without completion report", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		_, err := svc.AdvanceStatus(ctx, job.JobID, domain.StatusCompleted, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown target status rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.AdvanceStatus(ctx, job.JobID, "CANCELLED", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("bare advance cannot assign while bidding is open", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.AdvanceStatus(ctx, job.JobID, domain.StatusAssigned, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := svc.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusUnassigned, got.Status)
		assert.True(t, got.BiddingOpen)
		assert.Empty(t, got.SelectedBidID)
		assert.Empty(t, got.AssignedVendorID)
	})

	t.Run("stale pinned version retries against fresh read", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100,
		})
		require.NoError(t, err)
		_, err = svc.SelectBid(ctx, job.JobID, bid.BidID)
		require.NoError(t, err)

		// The caller pins the version it read before selection bumped it. The
		// first write loses; the automatic retry drops the pin, revalidates
		// against current state and applies the still-legal move.
		stale := 0
		got, err := svc.AdvanceStatus(ctx, job.JobID, domain.StatusOnTheWay, &stale)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusOnTheWay, got.Status)
		assert.Equal(t, 2, got.StatusVersion)
	})

	t.Run("missing job", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.AdvanceStatus(ctx, "nope", domain.StatusAssigned, nil)
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

func TestReportCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("records payment and commission atomically", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		done, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{
			Amount: 120,
			Method: "card",
		})
		require.NoError(t, err)

		assert.Equal(t, domain.StatusCompleted, done.Status)
		assert.False(t, done.BiddingOpen)
		require.NotNil(t, done.ReportedPayment)
		assert.Equal(t, 120.0, done.ReportedPayment.Amount)
		assert.Equal(t, "card", done.ReportedPayment.Method)
		require.NotNil(t, done.Commission)
		assert.Equal(t, 0.25, done.Commission.Rate)
		assert.Equal(t, 30.0, done.Commission.Amount)
		assert.Equal(t, "pending", done.Commission.Status)
		assert.NotNil(t, done.CompletedAt)
		assert.False(t, done.UnderReported)
	})

	t.Run("commission rounds to cents", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		done, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 99.99, Method: "cash"})
		require.NoError(t, err)
		assert.Equal(t, 25.0, done.Commission.Amount)
	})

	t.Run("flags amounts far below the selected bid", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 200)

		done, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 40, Method: "cash"})
		require.NoError(t, err)
		assert.True(t, done.UnderReported)
		assert.NotEmpty(t, done.UnderReportReason)
	})

	t.Run("rejected before arrival", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 50, Method: "cash"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("invalid amounts", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1)} {
			_, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: amount, Method: "cash"})
			assert.ErrorIs(t, err, domain.ErrCompletionAmountInvalid)
		}
	})

	t.Run("double completion rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		_, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 120, Method: "card"})
		require.NoError(t, err)
		_, err = svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 120, Method: "card"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestSubmitBid(t *testing.T) {
	ctx := context.Background()

	t.Run("resubmission replaces the vendor's bid", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		first, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName:  "Ace Towing",
			VendorPhone: "+15550100",
			ETAMinutes:  30,
			Price:       120,
		})
		require.NoError(t, err)

		second, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName:  "Ace Towing",
			VendorPhone: "+15550100",
			ETAMinutes:  18,
			Price:       95,
		})
		require.NoError(t, err)

		assert.Equal(t, first.BidID, second.BidID, "same vendor must keep one bid per job")
		assert.Equal(t, 95.0, second.Price)
		assert.Equal(t, 18, second.ETAMinutes)

		bids, err := store.ListBids(ctx, job.JobID)
		require.NoError(t, err)
		assert.Len(t, bids, 1)
	})

	t.Run("distinct vendors keep distinct bids", func(t *testing.T) {
		svc, store, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 30, Price: 120,
		})
		require.NoError(t, err)
		_, err = svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Metro Tow", VendorPhone: "+15550200", ETAMinutes: 25, Price: 110,
		})
		require.NoError(t, err)

		bids, err := store.ListBids(ctx, job.JobID)
		require.NoError(t, err)
		assert.Len(t, bids, 2)
		// Cheapest first.
		assert.Equal(t, "Metro Tow", bids[0].VendorName)
	})

	t.Run("fixed mode overrides submitted price", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{
			BidMode:     domain.BidModeFixed,
			QuotedPrice: 150,
		})

		bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName:  "Ace Towing",
			VendorPhone: "+15550100",
			ETAMinutes:  22,
			Price:       999,
		})
		require.NoError(t, err)
		assert.Equal(t, 150.0, bid.Price)
	})

	t.Run("closed bidding rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)

		_, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Late Tow", VendorPhone: "+15550300", ETAMinutes: 10, Price: 80,
		})
		assert.ErrorIs(t, err, domain.ErrBiddingClosed)
	})

	t.Run("bad token rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		createJob(t, svc, IntakeRequest{})

		_, err := svc.SubmitBid(ctx, "not-a-token", BidRequest{
			VendorName: "Ace", VendorPhone: "+15550100", ETAMinutes: 10, Price: 80,
		})
		assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{VendorName: "Ace", ETAMinutes: 10, Price: 80})
		assert.Error(t, err, "missing phone")

		_, err = svc.SubmitBid(ctx, job.VendorToken, BidRequest{VendorName: "Ace", VendorPhone: "+1555", Price: 80})
		assert.Error(t, err, "missing eta")

		_, err = svc.SubmitBid(ctx, job.VendorToken, BidRequest{VendorName: "Ace", VendorPhone: "+1555", ETAMinutes: 10})
		assert.Error(t, err, "missing price in open mode")
	})
}

func TestSelectBid(t *testing.T) {
	ctx := context.Background()

	t.Run("winner assigned and bidding closed", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorID: "v-100", VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100,
		})
		require.NoError(t, err)

		selected, err := svc.SelectBid(ctx, job.JobID, bid.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, selected.Status)
		assert.Equal(t, "v-100", selected.AssignedVendorID)
		assert.Equal(t, bid.BidID, selected.SelectedBidID)
		assert.False(t, selected.BiddingOpen)
		assert.NotNil(t, selected.AssignedAt)
	})

	t.Run("second selection loses", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		a, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100,
		})
		require.NoError(t, err)
		b, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Metro Tow", VendorPhone: "+15550200", ETAMinutes: 25, Price: 90,
		})
		require.NoError(t, err)

		_, err = svc.SelectBid(ctx, job.JobID, a.BidID)
		require.NoError(t, err)
		_, err = svc.SelectBid(ctx, job.JobID, b.BidID)
		assert.ErrorIs(t, err, domain.ErrAlreadySelected)
	})

	t.Run("concurrent selection picks exactly one winner", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		const vendors = 8
		bidIDs := make([]string, vendors)
		for i := 0; i < vendors; i++ {
			bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
				VendorName:  "Vendor",
				VendorPhone: "+1555010" + string(rune('0'+i)),
				ETAMinutes:  10 + i,
				Price:       float64(100 + i),
			})
			require.NoError(t, err)
			bidIDs[i] = bid.BidID
		}

		var wg sync.WaitGroup
		results := make(chan error, vendors)
		for _, bidID := range bidIDs {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := svc.SelectBid(ctx, job.JobID, id)
				results <- err
			}(bidID)
		}
		wg.Wait()
		close(results)

		wins := 0
		for err := range results {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, domain.ErrAlreadySelected)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("customer token selection", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		bid, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
			VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100,
		})
		require.NoError(t, err)

		selected, err := svc.SelectBidByToken(ctx, job.CustomerToken, bid.BidID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, selected.Status)
	})

	t.Run("unknown bid", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		_, err := svc.SelectBid(ctx, job.JobID, "nope")
		assert.ErrorIs(t, err, domain.ErrBidNotFound)
	})
}

func TestRateByToken(t *testing.T) {
	ctx := context.Background()

	t.Run("after completion", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})
		driveToArrived(t, svc, job, 100)
		_, err := svc.ReportCompletion(ctx, job.JobID, CompletionRequest{Amount: 120, Method: "card"})
		require.NoError(t, err)

		require.NoError(t, svc.RateByToken(ctx, job.GuestToken, 4.5))

		got, err := svc.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		require.NotNil(t, got.Rating)
		assert.Equal(t, 4.5, *got.Rating)
	})

	t.Run("before completion rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		err := svc.RateByToken(ctx, job.GuestToken, 4)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("out of range rejected", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		job := createJob(t, svc, IntakeRequest{})

		assert.Error(t, svc.RateByToken(ctx, job.GuestToken, 0))
		assert.Error(t, svc.RateByToken(ctx, job.GuestToken, 5.5))
	})
}

func TestRevokeToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	job := createJob(t, svc, IntakeRequest{})

	// Guest revocation must not touch the other scopes.
	require.NoError(t, svc.RevokeToken(ctx, job.JobID, domain.TokenScopeGuest))

	_, err := svc.TrackByToken(ctx, job.GuestToken)
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)

	_, _, err = svc.ListBidsByToken(ctx, job.CustomerToken)
	assert.NoError(t, err)

	_, err = svc.SubmitBid(ctx, job.VendorToken, BidRequest{
		VendorName: "Ace", VendorPhone: "+15550100", ETAMinutes: 10, Price: 80,
	})
	assert.NoError(t, err)
}

func TestServiceEmitsDeterministicDedupeKeys(t *testing.T) {
	ctx := context.Background()
	svc, _, events := newTestService(t)
	job := createJob(t, svc, IntakeRequest{})

	_, err := svc.SubmitBid(ctx, job.VendorToken, BidRequest{
		VendorName: "Ace Towing", VendorPhone: "+15550100", ETAMinutes: 20, Price: 100,
	})
	require.NoError(t, err)

	keys := events.keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "job|"+job.JobID+"|status|UNASSIGNED", keys[0])
	assert.Equal(t, "bid|"+job.JobID+"|+15550100|20|100.00", keys[1])
}
