package models

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// IssueStatus represents the triage state of a reported issue.
type IssueStatus string

const (
	IssueStatusNew          IssueStatus = "New"
	IssueStatusProcessing   IssueStatus = "Processing"
	IssueStatusCompleted    IssueStatus = "Completed"
	IssueStatusSortingItOut IssueStatus = "Sorting it out"
)

// IssueStatuses lists every status an operator can assign, in display order.
var IssueStatuses = []IssueStatus{
	IssueStatusNew,
	IssueStatusProcessing,
	IssueStatusCompleted,
	IssueStatusSortingItOut,
}

// IssuePriority represents the urgency assigned by the backend.
type IssuePriority string

const (
	IssuePriorityHigh   IssuePriority = "HIGH"
	IssuePriorityMedium IssuePriority = "MEDIUM"
	IssuePriorityLow    IssuePriority = "LOW"
)

// UnderReview is the expected-completion sentinel for "no date yet".
// The backend has no notion of an unset date.
const UnderReview = "Under Review"

// Wire names of the fields this client understands.
const (
	fieldID       = "IssueID"
	fieldType     = "IssueType"
	fieldLocation = "UserLocation"
	fieldStatus   = "Status"
	fieldPriority = "Priority"
	fieldExpected = "ExpectedCompletionDate"
)

// Issue is a citizen-reported issue as served by the backend.
type Issue struct {
	ID                     string
	Type                   string
	Location               string
	Status                 IssueStatus
	Priority               IssuePriority
	ExpectedCompletionDate string

	// Extra holds backend fields this client does not model. They are sent
	// back untouched on update because the update body is the full record.
	Extra map[string]json.RawMessage
}

// ParseStatus resolves a case-insensitive status name to its canonical form.
// Dashes and underscores are accepted in place of spaces.
func ParseStatus(s string) (IssueStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	for _, st := range IssueStatuses {
		if strings.ToLower(string(st)) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q (want one of: New, Processing, Completed, Sorting it out)", s)
}

// WithUpdate returns a copy of the issue carrying the new status and
// expected-completion date. An empty status keeps the current one (or New
// when there is none); an empty date becomes UnderReview.
func (i Issue) WithUpdate(status IssueStatus, expected string) Issue {
	out := i
	out.Extra = maps.Clone(i.Extra)

	if status == "" {
		status = i.Status
	}
	if status == "" {
		status = IssueStatusNew
	}
	out.Status = status

	expected = strings.TrimSpace(expected)
	if expected == "" {
		expected = UnderReview
	}
	out.ExpectedCompletionDate = expected
	return out
}

// UnmarshalJSON decodes a backend record. Known fields holding anything
// other than a JSON string are treated as missing and kept in Extra.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode issue: %w", err)
	}

	*i = Issue{}
	take := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		delete(raw, key)
		return s
	}

	i.ID = take(fieldID)
	i.Type = take(fieldType)
	i.Location = take(fieldLocation)
	i.Status = IssueStatus(take(fieldStatus))
	i.Priority = IssuePriority(take(fieldPriority))
	i.ExpectedCompletionDate = take(fieldExpected)

	if len(raw) > 0 {
		i.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the full record, known fields on top of Extra.
// Empty known fields are omitted so that a value kept in Extra survives.
func (i Issue) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(i.Extra)+6)
	for k, v := range i.Extra {
		out[k] = v
	}

	put := func(key, val string) {
		if val != "" {
			out[key] = val
		}
	}
	put(fieldID, i.ID)
	put(fieldType, i.Type)
	put(fieldLocation, i.Location)
	put(fieldStatus, string(i.Status))
	put(fieldPriority, string(i.Priority))
	put(fieldExpected, i.ExpectedCompletionDate)

	return json.Marshal(out)
}
