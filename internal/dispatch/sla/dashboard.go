package sla

import (
	"sort"
	"time"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// scorecardWindow is the rolling window for vendor completed-job stats.
const scorecardWindow = 45 * 24 * time.Hour

// QueueEntry pairs a job with its escalation assessment.
type QueueEntry struct {
	Job        domain.Job `json:"job"`
	Assessment Assessment `json:"assessment"`
}

// Scorecard summarizes a vendor's completed jobs over the rolling window.
type Scorecard struct {
	VendorID          string  `json:"vendor_id"`
	VendorName        string  `json:"vendor_name"`
	CompletedJobs     int     `json:"completed_jobs"`
	AvgArrivalMinutes float64 `json:"avg_arrival_minutes"`
	AvgRating         float64 `json:"avg_rating"`
	GrossRevenue      float64 `json:"gross_revenue"`
	SLAHitRate        float64 `json:"sla_hit_rate"`
}

// Dashboard is the read-only operational view recomputed on every refresh.
type Dashboard struct {
	GeneratedAt     time.Time               `json:"generated_at"`
	Queue           []QueueEntry            `json:"queue"`
	Escalations     []QueueEntry            `json:"escalations"`
	ComplianceTasks []domain.ComplianceTask `json:"compliance_tasks"`
	Scorecards      []Scorecard             `json:"scorecards"`
}

// BuildDashboard assembles the dashboard from current snapshots. Missing
// derived data degrades to zero values; a dashboard read never errors on
// absent fields.
func BuildDashboard(jobs []domain.Job, vendors []domain.Vendor, tasks []domain.ComplianceTask, now time.Time, t Thresholds) Dashboard {
	d := Dashboard{
		GeneratedAt:     now,
		ComplianceTasks: tasks,
	}

	for i := range jobs {
		job := jobs[i]
		a := Evaluate(&job, now, t)
		entry := QueueEntry{Job: job, Assessment: a}

		if job.Open() {
			d.Queue = append(d.Queue, entry)
			if a.AtRisk || a.Severe {
				d.Escalations = append(d.Escalations, entry)
			}
		}
	}

	// Most pressed first.
	sort.Slice(d.Escalations, func(a, b int) bool {
		return d.Escalations[a].Assessment.MinutesRemaining < d.Escalations[b].Assessment.MinutesRemaining
	})

	d.Scorecards = buildScorecards(jobs, vendors, now, t)
	return d
}

type scorecardAcc struct {
	completed      int
	arrivalMinutes float64
	arrivalCount   int
	ratingSum      float64
	ratingCount    int
	revenue        float64
	withinSLA      int
}

func buildScorecards(jobs []domain.Job, vendors []domain.Vendor, now time.Time, t Thresholds) []Scorecard {
	cutoff := now.Add(-scorecardWindow)
	accs := make(map[string]*scorecardAcc)

	for i := range jobs {
		job := jobs[i]
		if job.Status != domain.StatusCompleted || job.AssignedVendorID == "" {
			continue
		}
		if job.CompletedAt == nil || job.CompletedAt.Before(cutoff) {
			continue
		}

		acc, ok := accs[job.AssignedVendorID]
		if !ok {
			acc = &scorecardAcc{}
			accs[job.AssignedVendorID] = acc
		}

		acc.completed++
		if job.ArrivedAt != nil && job.AssignedAt != nil {
			acc.arrivalMinutes += job.ArrivedAt.Sub(*job.AssignedAt).Minutes()
			acc.arrivalCount++
		}
		if job.Rating != nil {
			acc.ratingSum += *job.Rating
			acc.ratingCount++
		}
		if job.ReportedPayment != nil {
			acc.revenue += job.ReportedPayment.Amount
		}
		if job.CompletedAt.Sub(job.CreatedAt).Minutes() <= float64(t.Minutes(job.Urgency)) {
			acc.withinSLA++
		}
	}

	var cards []Scorecard
	for _, v := range vendors {
		acc, ok := accs[v.VendorID]
		if !ok {
			continue
		}
		card := Scorecard{
			VendorID:      v.VendorID,
			VendorName:    v.Name,
			CompletedJobs: acc.completed,
			GrossRevenue:  acc.revenue,
		}
		if acc.arrivalCount > 0 {
			card.AvgArrivalMinutes = acc.arrivalMinutes / float64(acc.arrivalCount)
		}
		if acc.ratingCount > 0 {
			card.AvgRating = acc.ratingSum / float64(acc.ratingCount)
		}
		if acc.completed > 0 {
			card.SLAHitRate = float64(acc.withinSLA) / float64(acc.completed)
		}
		cards = append(cards, card)
	}

	sort.Slice(cards, func(a, b int) bool {
		return cards[a].VendorName < cards[b].VendorName
	})
	return cards
}
