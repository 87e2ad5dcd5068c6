package classify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/ingest"
	"rollcall/internal/linker"
	"rollcall/internal/registry"

	"go.uber.org/zap"
)

// sitePrecedence breaks majority-vote ties by feed quality.
var sitePrecedence = map[ingest.FeedType]int{
	ingest.FeedPresence:  0,
	ingest.FeedActivity:  1,
	ingest.FeedTelemetry: 2,
}

//go:generate mockgen -source=classify_service.go -destination=mock/classify_service_mock.go -package=mock
type Service interface {
	ClassifyAll(
		ctx context.Context,
		reg *registry.Registry,
		linked []linker.LinkedRecord,
		schedules map[string]ScheduleEntry,
		date time.Time,
	) ([]DayVerdict, error)
}

type service struct {
	cfg    config.Engine
	logger *zap.Logger
}

func NewService(cfg config.Engine, logger ...*zap.Logger) Service {
	l := zap.L().Named("classify.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("classify.service")
	}
	return &service{cfg: cfg, logger: l}
}

// ClassifyAll produces one verdict per registry identity for the date.
// Identities are walked in sorted name-key order and every rule is
// deterministic, so identical inputs yield identical verdicts.
func (s *service) ClassifyAll(
	ctx context.Context,
	reg *registry.Registry,
	linked []linker.LinkedRecord,
	schedules map[string]ScheduleEntry,
	date time.Time,
) ([]DayVerdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byIdentity := make(map[string][]linker.LinkedRecord)
	for _, lr := range linked {
		byIdentity[lr.Identity.NameKey] = append(byIdentity[lr.Identity.NameKey], lr)
	}

	keys := make([]string, 0, len(reg.Identities))
	for k := range reg.Identities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	verdicts := make([]DayVerdict, 0, len(keys))
	for _, key := range keys {
		identity := reg.Identities[key]
		verdicts = append(verdicts, s.classify(identity, date, byIdentity[key], schedules, reg))
	}

	// Defensive: a linked identity absent from the registry should be
	// structurally impossible, but gets an explicit Unverified verdict rather
	// than silence if it ever happens.
	orphans := make([]string, 0)
	for key := range byIdentity {
		if !reg.Contains(key) {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		recs := byIdentity[key]
		verdicts = append(verdicts, DayVerdict{
			Identity:   recs[0].Identity,
			Date:       date,
			Status:     StatusUnverified,
			Reason:     "identity not present in canonical registry",
			Records:    recs,
			RecordRefs: refs(recs),
		})
		s.logger.Error("linked identity missing from registry", zap.String("name_key", key))
	}

	return verdicts, nil
}

// classify applies the status rules in fixed order; first match wins.
// Site mismatch dominates punctuality: an on-time arrival at the wrong
// location is not attendance.
func (s *service) classify(
	identity registry.CanonicalIdentity,
	date time.Time,
	records []linker.LinkedRecord,
	schedules map[string]ScheduleEntry,
	reg *registry.Registry,
) DayVerdict {
	verdict := DayVerdict{
		Identity:   identity,
		Date:       date,
		Records:    records,
		RecordRefs: refs(records),
	}

	activity := activityRecords(records)
	if len(activity) == 0 {
		verdict.Status = StatusExcludedNoTelemetry
		verdict.Reason = "no telemetry or activity records for this date"
		return verdict
	}

	entry, ok := schedules[identity.NameKey]
	if !ok {
		if !s.cfg.SyntheticSchedule {
			verdict.Status = StatusExcludedNoSchedule
			verdict.Reason = "no schedule entry and synthetic default disabled"
			return verdict
		}
		synth, err := SyntheticEntry(identity.NameKey, date, s.cfg.DefaultWindowStart, s.cfg.DefaultWindowEnd)
		if err != nil {
			verdict.Status = StatusExcludedNoSchedule
			verdict.Reason = fmt.Sprintf("synthetic schedule unavailable: %v", err)
			return verdict
		}
		entry = synth
	}
	verdict.Scheduled = &entry

	actualStart, actualEnd := window(activity, date)
	verdict.ActualStart = &actualStart
	verdict.ActualEnd = &actualEnd
	verdict.AssignedSite = assignedSite(records)

	if entry.Site != "" && verdict.AssignedSite != "" && !siteMatches(verdict.AssignedSite, entry.Site) {
		verdict.Status = StatusNotOnJob
		verdict.Reason = fmt.Sprintf("observed at %q, scheduled at %q", verdict.AssignedSite, entry.Site)
		return verdict
	}

	if late := actualStart.Sub(entry.Start); late > s.cfg.LateThreshold {
		verdict.Status = StatusLate
		verdict.Reason = fmt.Sprintf("%d minutes late", int(late/time.Minute))
		return verdict
	}

	if early := entry.End.Sub(actualEnd); early > s.cfg.EarlyThreshold {
		verdict.Status = StatusEarlyEnd
		verdict.Reason = fmt.Sprintf("left %d minutes early", int(early/time.Minute))
		return verdict
	}

	verdict.Status = StatusOnTime
	verdict.Reason = "within scheduled window"
	return verdict
}

// activityRecords filters to the feeds that count as observed activity.
// Presence logs vote on site but do not by themselves establish a work
// window.
func activityRecords(records []linker.LinkedRecord) []linker.LinkedRecord {
	var out []linker.LinkedRecord
	for _, lr := range records {
		if lr.Raw.Feed == ingest.FeedTelemetry || lr.Raw.Feed == ingest.FeedActivity {
			out = append(out, lr)
		}
	}
	return out
}

// window computes the earliest start and latest end across the full record
// set. No early decision: every record is seen before the bounds settle.
// Adjacent-day records keep their clock times but are re-anchored onto the
// target date, so they compare against that day's schedule window instead of
// sitting a day off.
func window(records []linker.LinkedRecord, date time.Time) (time.Time, time.Time) {
	start, end := recordBounds(records[0], date)
	for _, lr := range records[1:] {
		s, e := recordBounds(lr, date)
		if s.Before(start) {
			start = s
		}
		if e.After(end) {
			end = e
		}
	}
	return start, end
}

func recordBounds(lr linker.LinkedRecord, date time.Time) (time.Time, time.Time) {
	start := lr.Raw.Start
	end := start
	if lr.Raw.End != nil && lr.Raw.End.After(end) {
		end = *lr.Raw.End
	}
	if lr.Raw.AdjacentDay {
		start = anchorClock(start, date)
		end = anchorClock(end, date)
	}
	return start, end
}

// anchorClock transplants t's wall-clock time onto date.
func anchorClock(t, date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// assignedSite is a majority vote over all non-empty site labels; ties break
// by feed precedence (presence > activity > telemetry), then alphabetically.
func assignedSite(records []linker.LinkedRecord) string {
	type tally struct {
		count int
		rank  int
	}
	votes := make(map[string]*tally)

	for _, lr := range records {
		site := strings.TrimSpace(lr.Raw.Site)
		if site == "" {
			continue
		}
		rank, ok := sitePrecedence[lr.Raw.Feed]
		if !ok {
			continue
		}
		t := votes[site]
		if t == nil {
			t = &tally{rank: rank}
			votes[site] = t
		}
		t.count++
		if rank < t.rank {
			t.rank = rank
		}
	}

	best := ""
	for site, t := range votes {
		if best == "" {
			best = site
			continue
		}
		bt := votes[best]
		switch {
		case t.count > bt.count:
			best = site
		case t.count == bt.count && t.rank < bt.rank:
			best = site
		case t.count == bt.count && t.rank == bt.rank && site < best:
			best = site
		}
	}
	return best
}

// siteMatches is case-insensitive containment in either direction, so
// "Site A" matches "SITE A - North Yard".
func siteMatches(observed, expected string) bool {
	a := strings.ToLower(strings.TrimSpace(observed))
	b := strings.ToLower(strings.TrimSpace(expected))
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func refs(records []linker.LinkedRecord) []RecordRef {
	out := make([]RecordRef, 0, len(records))
	for _, lr := range records {
		out = append(out, RecordRef{
			SourcePath: lr.Raw.SourcePath,
			RowIndex:   lr.Raw.RowIndex,
			Feed:       string(lr.Raw.Feed),
		})
	}
	return out
}
