package telegram

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/movemate-io/movemate/pkg/protocol"
)

// TicketNote renders a created ticket as a Telegram HTML confirmation.
func TicketNote(t *protocol.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Ticket filed</b> — %s\n", escapeHTML(t.Summary))
	fmt.Fprintf(&b, "Team: %s\n", teamLabel(t.Team))
	fmt.Fprintf(&b, "Queue position: %d\n", t.QueuePosition)
	fmt.Fprintf(&b, "Reference: <code>%s</code>", escapeHTML(t.ID))
	return b.String()
}

func teamLabel(team protocol.Team) string {
	switch team {
	case protocol.TeamMaintenance:
		return "Maintenance"
	case protocol.TeamRA:
		return "Resident Advisor"
	default:
		return string(team)
	}
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

var reTag = regexp.MustCompile(`</?[a-z]+[^>]*>`)

// StripTags removes HTML tags, used as the plain-text fallback when
// Telegram rejects a formatted message.
func StripTags(html string) string {
	s := reTag.ReplaceAllString(html, "")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}
