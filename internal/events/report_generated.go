package events

const ReportGeneratedTopic = "rollcall.report.generated"

// ReportGeneratedEvent announces a committed report bundle to export
// collaborators. The payload carries identifiers, not the bundle itself;
// consumers fetch the artifact by date.
type ReportGeneratedEvent struct {
	RunID         string `json:"run_id"`
	Date          string `json:"date"`
	VerdictCount  int    `json:"verdict_count"`
	ExcludedCount int    `json:"excluded_count"`
	Signature     string `json:"signature"`
}
