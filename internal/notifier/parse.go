package notifier

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// Deal is a stale deal reported by the CRM workflow.
type Deal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	lineSplit = regexp.MustCompile(`\r?\n`)
	dealLine  = regexp.MustCompile(`^- (.*?)\s+\(.*\)`)
)

// ParseFlowOutput extracts deals from the workflow's text report, one
// "- Name (details)" entry per line. The report carries no stable id, so the
// name stands in for it. Lines that do not match are dropped.
func ParseFlowOutput(output string, log logrus.FieldLogger) []Deal {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return nil
	}
	var deals []Deal
	for _, line := range lineSplit.Split(trimmed, -1) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := dealLine.FindStringSubmatch(line)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			log.WithField("line", line).Warn("could not parse flow output line")
			continue
		}
		name := strings.TrimSpace(m[1])
		log.WithField("deal", name).Warn("using deal name as placeholder id")
		deals = append(deals, Deal{ID: name, Name: name})
	}
	return deals
}
