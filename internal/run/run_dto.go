package run

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Feed keys accepted in ReconcileRequest.Files. Roster and billing paths may
// also come from configuration instead.
const (
	FileKeyRoster    = "roster"
	FileKeyBilling   = "billing"
	FileKeyTelemetry = "telemetry"
	FileKeyActivity  = "activity"
	FileKeyPresence  = "presence"
	FileKeySchedule  = "schedule"
)

// ReconcileRequest is the engine invocation contract: one date (or an
// inclusive range) plus resolved file paths per feed type. File discovery is
// the caller's concern.
type ReconcileRequest struct {
	Date    string              `json:"date" binding:"required"`
	EndDate string              `json:"end_date"`
	Files   map[string][]string `json:"files" binding:"required"`
}

// ReconcileResult is the structured outcome of a run. No other side channel
// is required for correctness.
type ReconcileResult struct {
	Status        string  `json:"status"`
	Error         *string `json:"error"`
	VerdictCount  int     `json:"verdict_count"`
	ExcludedCount int     `json:"excluded_count"`
}
