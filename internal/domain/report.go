package domain

import (
	"encoding/json"
	"time"
)

// CoverageReport summarises one variant's run: line accounting, join coverage
// and the outcome. Success with Gaps > 0 is allowed but never reported as
// full coverage.
type CoverageReport struct {
	RunID   string `json:"run_id"`
	Variant string `json:"variant"`

	Total     int64    `json:"total"`
	Matched   int64    `json:"matched"`
	Gaps      int64    `json:"gaps"`
	GapSample []string `json:"gap_sample"`

	LinesRead       int64 `json:"lines_read"`
	LinesSkipped    int64 `json:"lines_skipped"`
	UnknownElements int64 `json:"unknown_elements"`
	Filtered        int64 `json:"filtered"`

	RowsWritten int64  `json:"rows_written"`
	Batches     int    `json:"batches"`
	Artifact    string `json:"artifact,omitempty"`

	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// FullCoverage reports whether every emitted row was verified against the
// station table.
func (r CoverageReport) FullCoverage() bool {
	return r.Success && r.Total > 0 && r.Gaps == 0 && r.Matched == r.Total
}

// ApplyCoverage copies the join tallies into the report.
func (r *CoverageReport) ApplyCoverage(c *Coverage) {
	r.Total = c.Total
	r.Matched = c.Matched
	r.Gaps = c.Gaps
	r.GapSample = c.GapSample()
}

// SerializeReport encodes a report as the JSON message body.
func SerializeReport(r CoverageReport) ([]byte, error) {
	if r.GapSample == nil {
		r.GapSample = []string{}
	}
	return json.Marshal(r)
}
