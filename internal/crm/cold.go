package crm

import "time"

// ColdDeal is an open opportunity flagged as cold, with the reason.
type ColdDeal struct {
	Opportunity
	DaysSinceActivity int    `json:"days_since_activity"`
	DaysSinceModified int    `json:"days_since_modified"`
	Reason            string `json:"reason"`
}

// DetectCold flags opportunities with no activity for coldDays (or none ever
// recorded) or no modification for stalledDays.
func DetectCold(records []Opportunity, now time.Time, coldDays, stalledDays int) []ColdDeal {
	var out []ColdDeal
	for _, r := range records {
		modified := daysBetween(r.LastModifiedDate, now)
		activity := -1
		if r.LastActivityDate != nil {
			activity = daysBetween(*r.LastActivityDate, now)
		}

		var reason string
		switch {
		case activity < 0:
			reason = "no activity recorded"
		case activity >= coldDays:
			reason = "no recent activity"
		case modified >= stalledDays:
			reason = "not modified recently"
		default:
			continue
		}
		out = append(out, ColdDeal{
			Opportunity:       r,
			DaysSinceActivity: activity,
			DaysSinceModified: modified,
			Reason:            reason,
		})
	}
	return out
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}
