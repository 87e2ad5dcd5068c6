package classify

import (
	"fmt"
	"time"

	"rollcall/internal/ingest"
	"rollcall/internal/linker"
)

const syntheticSource = "synthetic-default"

// BuildSchedule extracts per-identity schedule entries from the linked record
// set. First usable entry per identity wins; records arrive in deterministic
// source order.
func BuildSchedule(linked []linker.LinkedRecord, date time.Time) map[string]ScheduleEntry {
	entries := make(map[string]ScheduleEntry)
	for _, lr := range linked {
		if lr.Raw.Feed != ingest.FeedSchedule || !lr.Verified {
			continue
		}
		if lr.Raw.End == nil {
			continue // a schedule row without an end time is unusable
		}
		key := lr.Identity.NameKey
		if _, ok := entries[key]; ok {
			continue
		}
		entries[key] = ScheduleEntry{
			NameKey:   key,
			Date:      date,
			Start:     lr.Raw.Start,
			End:       *lr.Raw.End,
			Site:      lr.Raw.Site,
			Source:    lr.Raw.SourcePath,
			Synthetic: false,
		}
	}
	return entries
}

// SyntheticEntry builds the policy default window for an identity-day,
// explicitly flagged synthetic.
func SyntheticEntry(nameKey string, date time.Time, windowStart, windowEnd string) (ScheduleEntry, error) {
	start, err := parseClockOnDate(windowStart, date)
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("bad default window start: %w", err)
	}
	end, err := parseClockOnDate(windowEnd, date)
	if err != nil {
		return ScheduleEntry{}, fmt.Errorf("bad default window end: %w", err)
	}
	return ScheduleEntry{
		NameKey:   nameKey,
		Date:      date,
		Start:     start,
		End:       end,
		Source:    syntheticSource,
		Synthetic: true,
	}, nil
}

func parseClockOnDate(clock string, date time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(
		date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), 0, 0, time.UTC,
	), nil
}
