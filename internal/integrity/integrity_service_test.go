package integrity

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/classify"
	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/linker"
	"rollcall/internal/registry"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func resultWithFiles(feeds ...ingest.FeedType) *ingest.Result {
	res := &ingest.Result{}
	for i, f := range feeds {
		res.Files = append(res.Files, ingest.FileReport{
			Path:     string(f) + ".csv",
			Feed:     f,
			RowCount: 10 + i,
		})
	}
	return res
}

func TestCheckCoverage_RequiresActivityFeed(t *testing.T) {
	enf := NewEnforcer(config.Default())

	err := enf.CheckCoverage(context.Background(), resultWithFiles(ingest.FeedPresence, ingest.FeedSchedule))
	assert.ErrorIs(t, err, ErrMandatoryCoverage)

	assert.NoError(t, enf.CheckCoverage(context.Background(), resultWithFiles(ingest.FeedTelemetry, ingest.FeedSchedule)))
	assert.NoError(t, enf.CheckCoverage(context.Background(), resultWithFiles(ingest.FeedActivity, ingest.FeedSchedule)))
}

func TestCheckCoverage_ScheduleGate(t *testing.T) {
	// Synthetic default on: a missing schedule feed passes.
	enf := NewEnforcer(config.Default())
	assert.NoError(t, enf.CheckCoverage(context.Background(), resultWithFiles(ingest.FeedTelemetry)))

	// Synthetic default off: the same input is a hard failure.
	cfg := config.Default()
	cfg.SyntheticSchedule = false
	strict := NewEnforcer(cfg)
	err := strict.CheckCoverage(context.Background(), resultWithFiles(ingest.FeedTelemetry))
	assert.ErrorIs(t, err, ErrMandatoryCoverage)
}

func TestCorroborate_PassesCleanVerdicts(t *testing.T) {
	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	end := start.Add(9 * time.Hour)
	sched := classify.ScheduleEntry{NameKey: "j. rivera", Start: start, End: end}

	verdicts := []classify.DayVerdict{
		{
			Identity:    registry.CanonicalIdentity{NameKey: "j. rivera"},
			Status:      classify.StatusOnTime,
			ActualStart: &start,
			ActualEnd:   &end,
			Scheduled:   &sched,
			Records:     []linker.LinkedRecord{{Verified: true}},
		},
		{
			Identity: registry.CanonicalIdentity{NameKey: "m. okafor"},
			Status:   classify.StatusExcludedNoTelemetry,
		},
	}

	enf := NewEnforcer(config.Default())
	assert.NoError(t, enf.Corroborate(context.Background(), verdicts))
}

func TestCorroborate_RejectsVerdictWithoutActivity(t *testing.T) {
	sched := classify.ScheduleEntry{NameKey: "j. rivera"}
	verdicts := []classify.DayVerdict{{
		Identity:  registry.CanonicalIdentity{NameKey: "j. rivera"},
		Status:    classify.StatusLate,
		Scheduled: &sched,
	}}

	enf := NewEnforcer(config.Default())
	err := enf.Corroborate(context.Background(), verdicts)
	assert.ErrorIs(t, err, ErrCorroboration)
}

func TestCorroborate_RejectsUnverifiedContributingRecord(t *testing.T) {
	start := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	sched := classify.ScheduleEntry{NameKey: "j. rivera"}
	verdicts := []classify.DayVerdict{{
		Identity:    registry.CanonicalIdentity{NameKey: "j. rivera"},
		Status:      classify.StatusOnTime,
		ActualStart: &start,
		Scheduled:   &sched,
		Records:     []linker.LinkedRecord{{Verified: true}, {Verified: false}},
	}}

	enf := NewEnforcer(config.Default())
	err := enf.Corroborate(context.Background(), verdicts)
	assert.ErrorIs(t, err, ErrCorroboration)
}

func TestSignature_DeterministicAndOrderIndependent(t *testing.T) {
	files := []ingest.FileReport{
		{Path: "a.csv", Feed: ingest.FeedTelemetry, RowCount: 10},
		{Path: "b.csv", Feed: ingest.FeedSchedule, RowCount: 5},
	}
	reversed := []ingest.FileReport{files[1], files[0]}

	sig := Signature("2025-03-10", files)
	assert.Len(t, sig, 12)
	assert.Equal(t, sig, Signature("2025-03-10", reversed))

	// Any input change moves the signature.
	changed := []ingest.FileReport{
		{Path: "a.csv", Feed: ingest.FeedTelemetry, RowCount: 11},
		files[1],
	}
	assert.NotEqual(t, sig, Signature("2025-03-10", changed))
	assert.NotEqual(t, sig, Signature("2025-03-11", files))
}

func TestBuildManifest(t *testing.T) {
	ingested := resultWithFiles(ingest.FeedTelemetry, ingest.FeedSchedule)
	ingested.RowErrors = []ingest.RowError{{SourcePath: "a.csv", RowIndex: 3, Reason: "bad start time"}}
	ingested.Warnings = []string{"feed file skipped: ghost.csv"}

	reg := &registry.Registry{Identities: map[string]registry.CanonicalIdentity{
		"j. rivera": {NameKey: "j. rivera"},
	}}
	linkage := &linker.Result{
		Linked:      []linker.LinkedRecord{{Verified: true}},
		Quarantine:  []linker.QuarantinedRecord{{Reason: "unlinkable"}},
		Ambiguities: []string{"equipment T-101 claimed twice"},
	}
	verdicts := []classify.DayVerdict{
		{Status: classify.StatusOnTime},
		{Status: classify.StatusOnTime},
		{Status: classify.StatusExcludedNoTelemetry},
	}

	runID := uuid.New()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	enf := NewEnforcer(config.Default())
	m := enf.BuildManifest(runID, date, ingested, reg, linkage, verdicts)

	assert.Equal(t, runID, m.RunID)
	assert.Equal(t, "2025-03-10", m.Date)
	assert.Equal(t, 1, m.RegistrySize)
	assert.Equal(t, 1, m.LinkedCount)
	assert.Equal(t, 1, m.QuarantinedCount)
	assert.Equal(t, 1, m.RowErrorCount)
	assert.Len(t, m.Warnings, 2)
	assert.Equal(t, 2, m.StatusCounts[string(classify.StatusOnTime)])
	assert.Equal(t, 1, m.StatusCounts[string(classify.StatusExcludedNoTelemetry)])
	assert.Equal(t, Signature("2025-03-10", ingested.Files), m.Signature)
}
