// Package filter derives the searchable view of an issue collection.
package filter

import (
	"strings"

	"github.com/joescharf/civicadmin/internal/models"
)

// Issues returns the issues whose type, location, status or priority
// contains search, ignoring case. Order is preserved. An empty search
// returns issues unchanged.
func Issues(issues []models.Issue, search string) []models.Issue {
	if search == "" {
		return issues
	}

	needle := strings.ToLower(search)
	out := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if Matches(issue, needle) {
			out = append(out, issue)
		}
	}
	return out
}

// Matches reports whether a lower-cased needle occurs in one of the
// searchable fields. Empty fields never match.
func Matches(issue models.Issue, needle string) bool {
	for _, field := range []string{
		issue.Type,
		issue.Location,
		string(issue.Status),
		string(issue.Priority),
	} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
