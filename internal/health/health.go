// Package health scores the state of the issue backlog from the list the
// server returns.
package health

import (
	"github.com/joescharf/civicadmin/internal/models"
)

// BacklogHealth is a 0-100 score for the issue backlog.
type BacklogHealth struct {
	Total        int
	Completion   int // 0-30
	PriorityLoad int // 0-25
	Triage       int // 0-25
	Scheduling   int // 0-20

	Open        int
	OpenHigh    int
	Untriaged   int
	Unscheduled int
	IssueCount  int
}

// Scorer computes backlog health.
type Scorer struct{}

// NewScorer returns a new backlog Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score computes the health of issues. An empty backlog is fully healthy.
func (s *Scorer) Score(issues []models.Issue) *BacklogHealth {
	h := &BacklogHealth{IssueCount: len(issues)}
	for _, i := range issues {
		if i.Status == models.IssueStatusCompleted {
			continue
		}
		h.Open++
		if i.Priority == models.IssuePriorityHigh {
			h.OpenHigh++
		}
		if i.Status == models.IssueStatusNew || i.Status == "" {
			h.Untriaged++
		}
		if i.ExpectedCompletionDate == "" || i.ExpectedCompletionDate == models.UnderReview {
			h.Unscheduled++
		}
	}

	// Completion (30 pts) - share of all issues that are done
	h.Completion = scoreShare(h.IssueCount-h.Open, h.IssueCount, 30)

	// Priority load (25 pts) - fewer open HIGH issues = better
	h.PriorityLoad = scoreHighLoad(h.OpenHigh, 25)

	// Triage (25 pts) - open issues someone has looked at
	h.Triage = scoreShare(h.Open-h.Untriaged, h.Open, 25)

	// Scheduling (20 pts) - open issues with a committed date
	h.Scheduling = scoreShare(h.Open-h.Unscheduled, h.Open, 20)

	h.Total = h.Completion + h.PriorityLoad + h.Triage + h.Scheduling
	return h
}

// Grade maps the total to a one-word label.
func (h *BacklogHealth) Grade() string {
	switch {
	case h.Total >= 80:
		return "healthy"
	case h.Total >= 50:
		return "strained"
	default:
		return "critical"
	}
}

// scoreShare awards maxPoints in proportion to part/whole. Nothing to
// measure counts as full marks.
func scoreShare(part, whole, maxPoints int) int {
	if whole == 0 {
		return maxPoints
	}
	return maxPoints * part / whole
}

// scoreHighLoad penalizes a growing number of open high-priority issues.
func scoreHighLoad(count, maxPoints int) int {
	switch {
	case count == 0:
		return maxPoints
	case count <= 2:
		return int(float64(maxPoints) * 0.8)
	case count <= 5:
		return int(float64(maxPoints) * 0.6)
	case count <= 10:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.2)
	}
}
