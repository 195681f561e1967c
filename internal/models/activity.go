package models

import "time"

// ActivityKind identifies which operator action an Activity records.
type ActivityKind string

const (
	ActivityRefresh ActivityKind = "refresh"
	ActivityUpdate  ActivityKind = "update"
	ActivityStats   ActivityKind = "stats"
)

// Activity is one journal entry: an operator action and its outcome.
// Issue data and tokens are never stored.
type Activity struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	IssueID   string       `json:"issueId,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Failed reports whether the action ended in an error.
func (a *Activity) Failed() bool {
	return a.Error != ""
}
