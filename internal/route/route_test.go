package route

import (
	"testing"

	"github.com/movemate-io/movemate/pkg/protocol"
)

func TestDetermineTeam(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
		want   protocol.Team
	}{
		{
			name:   "explicit team wins",
			fields: Fields{Team: protocol.TeamMaintenance, Category: "Resident Life", Summary: "roommate dispute"},
			want:   protocol.TeamMaintenance,
		},
		{
			name:   "maintenance keywords",
			fields: Fields{IssueType: "Plumbing", Summary: "water leak under the sink"},
			want:   protocol.TeamMaintenance,
		},
		{
			name:   "ra keywords",
			fields: Fields{IssueType: "Noise disturbance", Summary: "roommate playing loud music"},
			want:   protocol.TeamRA,
		},
		{
			name:   "ra beats maintenance on mixed text",
			fields: Fields{IssueType: "Noise", Summary: "loud banging from the water heater"},
			want:   protocol.TeamRA,
		},
		{
			name:   "category resident life without keywords",
			fields: Fields{Category: "Resident Life", IssueType: "Question", Summary: "general inquiry"},
			want:   protocol.TeamRA,
		},
		{
			name:   "category maintenance without keywords",
			fields: Fields{Category: "Maintenance", IssueType: "Fixture", Summary: "broken towel rack"},
			want:   protocol.TeamMaintenance,
		},
		{
			name:   "no match defaults to ra",
			fields: Fields{IssueType: "Other", Summary: "something odd happened"},
			want:   protocol.TeamRA,
		},
		{
			name:   "case insensitive category",
			fields: Fields{Category: "MAINTENANCE", Summary: "cosmetic scuff"},
			want:   protocol.TeamMaintenance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineTeam(tt.fields); got != tt.want {
				t.Errorf("DetermineTeam(%+v) = %q, want %q", tt.fields, got, tt.want)
			}
		})
	}
}

func TestDetermineTeamIsPure(t *testing.T) {
	f := Fields{IssueType: "Noise", Summary: "loud music at night"}
	first := DetermineTeam(f)
	for i := 0; i < 10; i++ {
		if got := DetermineTeam(f); got != first {
			t.Fatalf("DetermineTeam not deterministic: %q then %q", first, got)
		}
	}
}

func TestTeamFromCategory(t *testing.T) {
	if got := TeamFromCategory("Resident Life"); got != protocol.TeamRA {
		t.Errorf("Resident Life = %q", got)
	}
	if got := TeamFromCategory("Maintenance"); got != protocol.TeamMaintenance {
		t.Errorf("Maintenance = %q", got)
	}
	if got := TeamFromCategory("Something Else"); got != "" {
		t.Errorf("unknown category = %q, want empty", got)
	}
}
