// Package routing ranks candidate vendors for unassigned jobs. Suggestions
// are purely advisory; nothing here mutates assignment.
package routing

import (
	"math"
	"sort"

	"github.com/towbridge/dispatch/internal/dispatch/domain"
)

// DefaultTopN is the number of candidates suggested per job.
const DefaultTopN = 3

// Candidate is one ranked vendor suggestion.
type Candidate struct {
	VendorID   string  `json:"vendor_id"`
	VendorName string  `json:"vendor_name"`
	Phone      string  `json:"phone,omitempty"`
	City       string  `json:"city,omitempty"`
	DistanceKm float64 `json:"distance_km"`
	Backlog    int     `json:"backlog"`
}

// Suggestion is the candidate set for one unassigned job.
type Suggestion struct {
	JobID      string      `json:"job_id"`
	Candidates []Candidate `json:"candidates"`
}

// Suggest ranks active vendors for a job by great-circle distance to the
// pickup point, ascending, with current backlog as the tiebreak. Vendors
// without coordinates are excluded.
func Suggest(job *domain.Job, vendors []domain.Vendor, topN int) Suggestion {
	if topN <= 0 {
		topN = DefaultTopN
	}

	var candidates []Candidate
	for _, v := range vendors {
		if !v.Active || v.Lat == nil || v.Lng == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			VendorID:   v.VendorID,
			VendorName: v.Name,
			Phone:      v.Phone,
			City:       v.City,
			DistanceKm: haversineKm(*v.Lat, *v.Lng, job.PickupLat, job.PickupLng),
			Backlog:    v.Backlog,
		})
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].DistanceKm != candidates[b].DistanceKm {
			return candidates[a].DistanceKm < candidates[b].DistanceKm
		}
		return candidates[a].Backlog < candidates[b].Backlog
	})

	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	return Suggestion{
		JobID:      job.JobID,
		Candidates: candidates,
	}
}

// SuggestAll produces suggestions for every unassigned job.
func SuggestAll(jobs []domain.Job, vendors []domain.Vendor, topN int) []Suggestion {
	var out []Suggestion
	for i := range jobs {
		if jobs[i].Status != domain.StatusUnassigned {
			continue
		}
		out = append(out, Suggest(&jobs[i], vendors, topN))
	}
	return out
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
