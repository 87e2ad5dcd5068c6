package report

import (
	"errors"
	"fmt"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/integrity"
	"rollcall/internal/linker"

	"github.com/google/uuid"
)

// ErrSummaryMismatch means the summary counts diverged from the flat verdict
// list. This exact bug class existed historically; it is a hard invariant
// here and must never be silently corrected.
var ErrSummaryMismatch = errors.New("summary counts diverge from verdict list")

// Bundle is the sole artifact handed to export collaborators: the flat
// verdict list, the per-status summary, the quarantine section, and the run
// manifest.
type Bundle struct {
	RunID      uuid.UUID                  `json:"run_id"`
	Date       string                     `json:"date"`
	Verdicts   []classify.DayVerdict      `json:"verdicts"`
	Summary    map[string]int             `json:"summary"`
	Quarantine []linker.QuarantinedRecord `json:"quarantine"`
	Manifest   integrity.RunManifest      `json:"manifest"`
}

func (b *Bundle) VerdictCount() int {
	return len(b.Verdicts)
}

func (b *Bundle) ExcludedCount() int {
	n := 0
	for _, v := range b.Verdicts {
		if v.Excluded() {
			n++
		}
	}
	return n
}

// Assemble builds the report bundle and enforces the summary/list
// consistency invariant against both an independent recount and the manifest.
func Assemble(
	runID uuid.UUID,
	date time.Time,
	verdicts []classify.DayVerdict,
	quarantine []linker.QuarantinedRecord,
	manifest integrity.RunManifest,
) (*Bundle, error) {
	summary := make(map[string]int, len(classify.AllStatuses))
	for _, v := range verdicts {
		summary[string(v.Status)]++
	}

	if err := verifySummary(summary, verdicts); err != nil {
		return nil, err
	}
	if err := compareCounts(summary, manifest.StatusCounts); err != nil {
		return nil, fmt.Errorf("%w (manifest)", err)
	}

	if quarantine == nil {
		quarantine = []linker.QuarantinedRecord{}
	}

	return &Bundle{
		RunID:      runID,
		Date:       date.Format("2006-01-02"),
		Verdicts:   verdicts,
		Summary:    summary,
		Quarantine: quarantine,
		Manifest:   manifest,
	}, nil
}

// verifySummary recounts the flat list from scratch and compares.
func verifySummary(summary map[string]int, verdicts []classify.DayVerdict) error {
	recount := make(map[string]int)
	for _, v := range verdicts {
		recount[string(v.Status)]++
	}
	return compareCounts(summary, recount)
}

func compareCounts(a, b map[string]int) error {
	for k, v := range a {
		if b[k] != v {
			return fmt.Errorf("%w: status %s has %d vs %d", ErrSummaryMismatch, k, v, b[k])
		}
	}
	for k, v := range b {
		if a[k] != v {
			return fmt.Errorf("%w: status %s has %d vs %d", ErrSummaryMismatch, k, a[k], v)
		}
	}
	return nil
}
