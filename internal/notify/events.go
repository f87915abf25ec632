package notify

import (
	"fmt"
	"strings"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// Recipient identities. Customers and guests are partitioned per job; the
// dispatch desk is a single shared admin identity.
func AdminRecipient() Recipient {
	return Recipient{Role: "admin", ID: "dispatch"}
}

func CustomerRecipient(jobID string) Recipient {
	return Recipient{Role: "customer", ID: jobID}
}

func VendorRecipient(vendorID string) Recipient {
	return Recipient{Role: "vendor", ID: vendorID}
}

// Dedupe keys are deterministic per (entity id, condition, value) so the
// direct emit path and the poll-diff path collapse into one stored entry.

func statusDedupeKey(jobID, status string) string {
	return fmt.Sprintf("job|%s|status|%s", jobID, status)
}

func bidDedupeKey(b domain.Bid) string {
	return fmt.Sprintf("bid|%s|%s|%d|%.2f", b.JobID, b.VendorPhone, b.ETAMinutes, b.Price)
}

func vendorDedupeKey(vendorID string, active bool) string {
	return fmt.Sprintf("vendor|%s|active|%t", vendorID, active)
}

func statusLabel(status string) string {
	switch status {
	case domain.StatusUnassigned:
		return "unassigned"
	case domain.StatusAssigned:
		return "assigned"
	case domain.StatusOnTheWay:
		return "on the way"
	case domain.StatusArrived:
		return "arrived"
	case domain.StatusCompleted:
		return "completed"
	}
	return strings.ToLower(status)
}

// StatusChanged builds the fan-out for a job reaching a new status.
func StatusChanged(job *domain.Job) Event {
	recipients := []Recipient{AdminRecipient(), CustomerRecipient(job.JobID)}
	if job.AssignedVendorID != "" {
		recipients = append(recipients, VendorRecipient(job.AssignedVendorID))
	}

	severity := SeverityInfo
	if job.Urgency == domain.UrgencyEmergency {
		severity = SeverityWarning
	}

	return Event{
		Recipients: recipients,
		Notification: Notification{
			Title:    fmt.Sprintf("Job %s %s", shortID(job.JobID), statusLabel(job.Status)),
			Body:     fmt.Sprintf("%s job at %s is now %s.", job.ServiceType, job.PickupAddress, statusLabel(job.Status)),
			Kind:     KindStatusChange,
			Severity: severity,
			Meta: Meta{
				JobID:     job.JobID,
				Status:    job.Status,
				Route:     "/jobs/" + job.JobID,
				DedupeKey: statusDedupeKey(job.JobID, job.Status),
			},
		},
	}
}

// BidReceived builds the fan-out for a new or revised vendor bid.
func BidReceived(job *domain.Job, bid *domain.Bid) Event {
	return Event{
		Recipients: []Recipient{AdminRecipient(), CustomerRecipient(job.JobID)},
		Notification: Notification{
			Title: fmt.Sprintf("New bid on job %s", shortID(job.JobID)),
			Body: fmt.Sprintf("%s offered $%.2f, ETA %d min.",
				bid.VendorName, bid.Price, bid.ETAMinutes),
			Kind:     KindNewBid,
			Severity: SeverityInfo,
			Meta: Meta{
				JobID:     job.JobID,
				BidID:     bid.BidID,
				Route:     "/jobs/" + job.JobID + "/bids",
				DedupeKey: bidDedupeKey(*bid),
			},
		},
	}
}

// VendorActivity builds the admin-only event for an active-flag flip.
func VendorActivity(v domain.Vendor) Event {
	verb := "went offline"
	if v.Active {
		verb = "is back online"
	}
	return Event{
		Recipients: []Recipient{AdminRecipient()},
		Notification: Notification{
			Title:    fmt.Sprintf("Vendor %s %s", v.Name, verb),
			Body:     fmt.Sprintf("%s (%s) %s.", v.Name, v.City, verb),
			Kind:     KindVendorActivity,
			Severity: SeverityInfo,
			Meta: Meta{
				VendorID:  v.VendorID,
				Route:     "/vendors/" + v.VendorID,
				DedupeKey: vendorDedupeKey(v.VendorID, v.Active),
			},
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
