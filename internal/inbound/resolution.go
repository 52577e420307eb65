package inbound

import (
	"strings"

	"github.com/youneslaaroussi/dealwhisperer/internal/models"
)

// Resolution is a deal status transition inferred from reply text.
type Resolution struct {
	PreviousStatus string
	NewStatus      string
}

type resolutionRule struct {
	keywords []string
	result   Resolution
}

// resolutionRules are checked in order; the first rule with any keyword
// present in the lower-cased text wins.
var resolutionRules = []resolutionRule{
	{
		keywords: []string{"closed", "won"},
		result:   Resolution{PreviousStatus: models.StatusStalled, NewStatus: models.StatusClosedWon},
	},
	{
		keywords: []string{"progress", "moving forward", "active"},
		result:   Resolution{PreviousStatus: models.StatusStalled, NewStatus: models.StatusActive},
	},
}

// InferResolution maps a stakeholder reply to a status transition. ok is
// false when no rule matches.
func InferResolution(text string) (Resolution, bool) {
	lower := strings.ToLower(text)
	for _, rule := range resolutionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.result, true
			}
		}
	}
	return Resolution{}, false
}
