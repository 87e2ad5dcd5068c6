package classify

import (
	"time"

	"rollcall/internal/linker"
	"rollcall/internal/registry"
)

type Status string

const (
	StatusOnTime              Status = "ON_TIME"
	StatusLate                Status = "LATE"
	StatusEarlyEnd            Status = "EARLY_END"
	StatusNotOnJob            Status = "NOT_ON_JOB"
	StatusUnverified          Status = "UNVERIFIED"
	StatusExcludedNoTelemetry Status = "EXCLUDED_NO_TELEMETRY"
	StatusExcludedNoSchedule  Status = "EXCLUDED_NO_SCHEDULE"
)

// AllStatuses lists every verdict status, in summary display order.
var AllStatuses = []Status{
	StatusOnTime,
	StatusLate,
	StatusEarlyEnd,
	StatusNotOnJob,
	StatusUnverified,
	StatusExcludedNoTelemetry,
	StatusExcludedNoSchedule,
}

// ScheduleEntry is one identity-day expectation. Synthetic entries come from
// the policy default window and are never conflated with a verified schedule.
type ScheduleEntry struct {
	NameKey   string    `json:"name_key"`
	Date      time.Time `json:"date"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Site      string    `json:"site,omitempty"`
	Source    string    `json:"source"`
	Synthetic bool      `json:"synthetic"`
}

// DayVerdict is the final attendance classification for one identity on one
// date, with its full audit trail. Immutable once produced.
type DayVerdict struct {
	Identity     registry.CanonicalIdentity `json:"identity"`
	Date         time.Time                  `json:"date"`
	Status       Status                     `json:"status"`
	Reason       string                     `json:"reason"`
	ActualStart  *time.Time                 `json:"actual_start,omitempty"`
	ActualEnd    *time.Time                 `json:"actual_end,omitempty"`
	AssignedSite string                     `json:"assigned_site,omitempty"`
	Scheduled    *ScheduleEntry             `json:"scheduled,omitempty"`
	Records      []linker.LinkedRecord      `json:"-"`

	// RecordRefs is the serializable audit trail: source path and row index
	// of every contributing linked record.
	RecordRefs []RecordRef `json:"record_refs"`
}

// RecordRef points back at one contributing source row.
type RecordRef struct {
	SourcePath string `json:"source_path"`
	RowIndex   int    `json:"row_index"`
	Feed       string `json:"feed"`
}

// Excluded reports whether the verdict was gated out rather than classified.
func (v DayVerdict) Excluded() bool {
	return v.Status == StatusExcludedNoTelemetry || v.Status == StatusExcludedNoSchedule
}
