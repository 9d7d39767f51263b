package protocol

import "strings"

// Classification is the structured record the model extracts from a
// conversation. Fields fill in over multiple turns; zero values mean
// "not yet known".
type Classification struct {
	Category  string `json:"category,omitempty"`
	IssueType string `json:"issue_type,omitempty"`
	Location  string `json:"location,omitempty"`
	Urgency   string `json:"urgency,omitempty"`
	Summary   string `json:"summary,omitempty"`
	// Reply is the assistant's spoken response for the latest turn.
	Reply string `json:"reply,omitempty"`
	// NeedsMoreInfo is the model's own determination that required
	// fields are still missing. It is trusted as-is.
	NeedsMoreInfo bool `json:"needs_more_info"`
	// Timestamp is when the conversation started (RFC 3339). Set on the
	// first turn and echoed unchanged afterwards.
	Timestamp string `json:"timestamp,omitempty"`
}

// FieldSet reports whether v carries real information. "Unknown" is the
// model's placeholder for a field it could not fill and counts as empty.
func FieldSet(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, "unknown")
}

// SchemaComplete reports whether the record holds every required field
// and the model is not waiting on more details. A ticket is created if
// and only if this is true after a classification turn.
func (c Classification) SchemaComplete() bool {
	return FieldSet(c.Category) &&
		FieldSet(c.IssueType) &&
		FieldSet(c.Location) &&
		FieldSet(c.Urgency) &&
		FieldSet(c.Summary) &&
		!c.NeedsMoreInfo
}

// IsZero reports whether no field has been populated yet.
func (c Classification) IsZero() bool {
	return c == Classification{}
}
