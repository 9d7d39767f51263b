// Package route assigns finalized tickets to an operational team.
package route

import (
	"strings"

	"github.com/movemate-io/movemate/pkg/protocol"
)

// raKeywords flag interpersonal, behavioral, and safety issues handled
// by resident assistants.
var raKeywords = []string{
	"roommate",
	"dispute",
	"noise",
	"loud",
	"music",
	"party",
	"alcohol",
	"medical",
	"injury",
	"emergency",
	"wellness",
	"behavior",
	"safety",
	"dorm",
	"furniture",
	"damage",
}

// maintenanceKeywords flag physical-infrastructure issues handled by the
// maintenance team.
var maintenanceKeywords = []string{
	"heat",
	"heating",
	"hvac",
	"ac",
	"air",
	"water",
	"leak",
	"plumbing",
	"pipe",
	"electrical",
	"outlet",
	"light",
	"bulb",
	"power",
	"appliance",
	"laundry",
	"trash",
	"mold",
	"pest",
}

// Fields is the subset of ticket data the router inspects.
type Fields struct {
	Team      protocol.Team
	Category  string
	IssueType string
	Summary   string
}

// DetermineTeam resolves the team responsible for a ticket. A pre-set
// team is returned unchanged so retries are idempotent. The RA keyword
// set is checked before the maintenance set; text matching both routes
// to RA. Unmatched tickets fall back to RA so nothing is dropped.
func DetermineTeam(f Fields) protocol.Team {
	if f.Team != "" {
		return f.Team
	}

	category := strings.ToLower(f.Category)
	text := strings.ToLower(f.IssueType + " " + f.Summary)

	if matchesAny(text, raKeywords) || category == "resident life" {
		return protocol.TeamRA
	}
	if matchesAny(text, maintenanceKeywords) || category == "maintenance" {
		return protocol.TeamMaintenance
	}
	return protocol.TeamRA
}

// TeamFromCategory infers a team from the category alone, for records
// that predate routing. The empty string means no inference was possible.
func TeamFromCategory(category string) protocol.Team {
	switch category {
	case "Resident Life":
		return protocol.TeamRA
	case "Maintenance":
		return protocol.TeamMaintenance
	}
	return ""
}

func matchesAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
