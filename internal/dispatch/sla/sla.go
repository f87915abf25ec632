// Package sla derives urgency and escalation state from job metadata and
// elapsed time. Everything here is a pure function over (job, now); nothing
// mutates the job, and repeated calls with identical inputs are identical.
package sla

import (
	"time"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// Thresholds maps urgency tier to the maximum acceptable open-duration in
// minutes.
type Thresholds struct {
	Emergency int
	Urgent    int
	Standard  int
}

// DefaultThresholds are the fixed tiers; they are not persisted per job.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Emergency: 15,
		Urgent:    45,
		Standard:  120,
	}
}

// Minutes returns the SLA budget for an urgency tier.
func (t Thresholds) Minutes(urgency string) int {
	switch urgency {
	case domain.UrgencyEmergency:
		return t.Emergency
	case domain.UrgencyUrgent:
		return t.Urgent
	default:
		return t.Standard
	}
}

// warningBand is the fraction of the SLA budget inside which a job counts
// as at risk.
const warningBand = 0.2

// Assessment is the derived escalation state for one job.
type Assessment struct {
	OpenMinutes      float64 `json:"open_minutes"`
	SLAMinutes       int     `json:"sla_minutes"`
	MinutesRemaining float64 `json:"minutes_remaining"`
	AtRisk           bool    `json:"at_risk"`
	Severe           bool    `json:"severe"`
}

// Evaluate computes the assessment for a job at the given instant.
func Evaluate(job *domain.Job, now time.Time, t Thresholds) Assessment {
	open := now.Sub(job.CreatedAt).Minutes()
	budget := t.Minutes(job.Urgency)
	remaining := float64(budget) - open

	a := Assessment{
		OpenMinutes:      open,
		SLAMinutes:       budget,
		MinutesRemaining: remaining,
	}

	if job.Status == domain.StatusCompleted {
		return a
	}

	if remaining <= 0 {
		a.Severe = true
	} else if remaining <= float64(budget)*warningBand {
		a.AtRisk = true
	}
	return a
}
