package notify

import (
	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// Snapshot diffing lives outside the engine: the engine only guarantees
// dedupe-by-key, while these functions decide what counts as a new
// condition between two poll cycles. Both sides meeting at a deterministic
// dedupe key is what makes repeated detections collapse.

// DiffJobs returns events for jobs whose status changed between snapshots.
// Jobs absent from prev are treated as newly created.
func DiffJobs(prev, cur []domain.Job) []Event {
	before := make(map[string]string, len(prev))
	for _, j := range prev {
		before[j.JobID] = j.Status
	}

	var events []Event
	for i := range cur {
		j := cur[i]
		old, known := before[j.JobID]
		if known && old == j.Status {
			continue
		}
		events = append(events, StatusChanged(&j))
	}
	return events
}

// DiffBids returns events for bids that are new or changed price/ETA since
// the previous snapshot.
func DiffBids(jobs []domain.Job, prev, cur []domain.Bid) []Event {
	byJob := make(map[string]*domain.Job, len(jobs))
	for i := range jobs {
		byJob[jobs[i].JobID] = &jobs[i]
	}

	before := make(map[string]string, len(prev))
	for _, b := range prev {
		before[b.BidID] = bidDedupeKey(b)
	}

	var events []Event
	for i := range cur {
		b := cur[i]
		if key, known := before[b.BidID]; known && key == bidDedupeKey(b) {
			continue
		}
		job, ok := byJob[b.JobID]
		if !ok {
			continue
		}
		events = append(events, BidReceived(job, &b))
	}
	return events
}

// DiffVendors returns events for vendors whose active flag flipped.
func DiffVendors(prev, cur []domain.Vendor) []Event {
	before := make(map[string]bool, len(prev))
	seen := make(map[string]bool, len(prev))
	for _, v := range prev {
		before[v.VendorID] = v.Active
		seen[v.VendorID] = true
	}

	var events []Event
	for _, v := range cur {
		if !seen[v.VendorID] {
			continue
		}
		if before[v.VendorID] == v.Active {
			continue
		}
		events = append(events, VendorActivity(v))
	}
	return events
}
