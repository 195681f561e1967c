package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NoSummary is shown when the backend sends no narrative summary.
const NoSummary = "No summary available."

// Count is a tolerant integer. The backend serializes some numbers as
// strings; anything that is not a number or numeric string decodes to 0.
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	*c = 0

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*c = Count(v)
		} else if f, err := n.Float64(); err == nil {
			*c = Count(f)
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*c = Count(v)
		}
	}
	return nil
}

// KeyMetrics holds the headline counters of the dashboard.
type KeyMetrics struct {
	TotalPending   Count `json:"totalPending"`
	HighPriority   Count `json:"highPriority"`
	TotalCompleted Count `json:"totalCompleted"`
}

// NamedCount is one bar/slice of a breakdown chart.
type NamedCount struct {
	Name  string `json:"name"`
	Value Count  `json:"value"`
}

// Stats is an immutable snapshot of the aggregate statistics. Missing
// fields decode to their zero values.
type Stats struct {
	KeyMetrics KeyMetrics   `json:"keyMetrics"`
	ByStatus   []NamedCount `json:"byStatus"`
	ByPriority []NamedCount `json:"byPriority"`
	Summary    string       `json:"aiExecutiveSummary"`
}

// SummaryText returns the narrative summary or NoSummary when it is empty.
func (s Stats) SummaryText() string {
	if strings.TrimSpace(s.Summary) == "" {
		return NoSummary
	}
	return s.Summary
}
