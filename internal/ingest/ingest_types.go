package ingest

import "time"

type FeedType string

const (
	FeedTelemetry FeedType = "TELEMETRY"
	FeedActivity  FeedType = "ACTIVITY"
	FeedPresence  FeedType = "PRESENCE"
	FeedSchedule  FeedType = "SCHEDULE"
	FeedRoster    FeedType = "ROSTER"
	FeedBilling   FeedType = "BILLING"
)

// RawActivityRecord is one normalized row from any feed. It is never mutated
// after creation; rows failing required-field presence are reported as
// RowErrors instead.
type RawActivityRecord struct {
	IdentityHint  string
	EquipmentHint string
	Start         time.Time
	End           *time.Time
	Site          string
	ActivityType  string
	Feed          FeedType
	SourcePath    string
	RowIndex      int
	AdjacentDay   bool
}

// RosterRow is one usable row from a roster or billing source.
type RosterRow struct {
	Name       string
	ExternalID string
	Equipment  string
	SourcePath string
	RowIndex   int
}

// RowError is the failure arm of per-row ingestion; it localizes a bad row
// without failing the file.
type RowError struct {
	SourcePath string
	RowIndex   int
	Reason     string
}

// FileReport describes one consumed source file for the run manifest.
type FileReport struct {
	Path            string    `json:"path"`
	Feed            FeedType  `json:"feed"`
	RowCount        int       `json:"row_count"`
	Accepted        int       `json:"accepted"`
	Skipped         int       `json:"skipped"`
	ModTime         time.Time `json:"mod_time"`
	AdjacentDayUsed bool      `json:"adjacent_day_used"`
}

// Result is everything the ingestion stage hands forward.
type Result struct {
	Records   []RawActivityRecord
	RowErrors []RowError
	Files     []FileReport
	Warnings  []string
}

// FeedFileCount returns the number of usable files ingested for a feed type.
func (r *Result) FeedFileCount(feed FeedType) int {
	n := 0
	for _, f := range r.Files {
		if f.Feed == feed {
			n++
		}
	}
	return n
}
