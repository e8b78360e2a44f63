// Package types defines the flat record shape shared by the export writers.
package types

// Record is one exported aggregate row. Month is empty for series that are
// not month-bucketed, like the subscriber history.
type Record struct {
	Metric string `json:"metric"`
	Month  string `json:"month,omitempty"`
	Member string `json:"member"`
	Score  int64  `json:"score"`
}
