package notifier

import (
	"fmt"
	"strings"
)

// MessageForRole renders the nudge sent to a stakeholder holding role.
func MessageForRole(role, dealName string) string {
	switch strings.ToLower(role) {
	case "pm":
		return fmt.Sprintf("Deal: *%s* has stalled. Any obstacles from a product perspective?", dealName)
	case "salesrep", "salesrep1", "salesrep2":
		return fmt.Sprintf("Following up on *%s*: Did you manage to connect? If not, what's holding you back?", dealName)
	default:
		return fmt.Sprintf("Attention needed for deal: *%s*. Status update requested.", dealName)
	}
}

// InferRole recovers the recipient role from a rendered message. Rules are
// checked in order.
func InferRole(text string) string {
	switch {
	case strings.Contains(text, "product perspective"):
		return "PM"
	case strings.Contains(text, "manage to connect"), strings.Contains(text, "holding you back"):
		return "SalesRep"
	default:
		return "Unknown"
	}
}

// ContextLine is the secondary line naming the deal under a notification.
func ContextLine(dealName, dealID string) string {
	return fmt.Sprintf("Related Deal: *%s* (ID: %s)", dealName, dealID)
}
