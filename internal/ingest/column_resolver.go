package ingest

import (
	"errors"
	"fmt"
	"strings"
)

type ColumnRole string

const (
	RoleIdentity     ColumnRole = "identity"
	RoleEquipment    ColumnRole = "equipment"
	RoleExternalID   ColumnRole = "external_id"
	RoleStartTime    ColumnRole = "start_time"
	RoleEndTime      ColumnRole = "end_time"
	RoleSite         ColumnRole = "site"
	RoleActivityType ColumnRole = "activity_type"
	RoleDuration     ColumnRole = "duration"
)

var ErrMissingRoles = errors.New("required columns not found")

// roleSynonyms is the ranked vocabulary per role. Earlier entries win when a
// header contains several candidates, and a column claimed by one role is
// never reused by another.
var roleSynonyms = map[ColumnRole][]string{
	RoleIdentity: {
		"driver_name", "driver", "employee_name", "employee",
		"operator_name", "operator", "full_name", "name",
		"worker", "person",
	},
	RoleEquipment: {
		"asset_id", "asset", "truck_number", "truck", "unit_id", "unit",
		"vehicle_id", "vehicle", "equipment_id", "equipment", "machine",
	},
	RoleExternalID: {
		"employee_id", "employee_number", "badge_id", "badge", "personnel_id", "id",
	},
	RoleStartTime: {
		"start_time", "start", "clock_in", "time_in", "punch_in",
		"first_seen", "shift_start", "event_time", "timestamp", "datetime", "time",
	},
	RoleEndTime: {
		"end_time", "end", "clock_out", "time_out", "punch_out",
		"last_seen", "shift_end",
	},
	RoleSite: {
		"job_site", "jobsite", "site_name", "site", "job_name", "job",
		"location", "project", "yard",
	},
	RoleActivityType: {
		"activity_type", "activity", "event_type", "event", "status_type",
	},
	RoleDuration: {
		"total_hours", "engine_hours", "duration", "hours",
	},
}

// resolveOrder fixes which role claims a contested column first. Start-time
// before end-time so a lone "time" column reads as the event start.
var resolveOrder = []ColumnRole{
	RoleIdentity, RoleEquipment, RoleExternalID,
	RoleStartTime, RoleEndTime,
	RoleSite, RoleActivityType, RoleDuration,
}

// requiredRoles lists what each feed type cannot do without. Telemetry and
// activity rows may carry only an equipment hint; identity resolution happens
// later in the linker.
var requiredRoles = map[FeedType][][]ColumnRole{
	FeedTelemetry: {{RoleIdentity, RoleEquipment}, {RoleStartTime}},
	FeedActivity:  {{RoleIdentity, RoleEquipment}, {RoleStartTime}},
	FeedPresence:  {{RoleIdentity}, {RoleStartTime}},
	FeedSchedule:  {{RoleIdentity}, {RoleStartTime}, {RoleEndTime}},
	FeedRoster:    {{RoleIdentity}},
	FeedBilling:   {{RoleEquipment}, {RoleIdentity}},
}

// RoleMap maps resolved roles to header column indexes.
type RoleMap map[ColumnRole]int

func (m RoleMap) Value(row []string, role ColumnRole) string {
	idx, ok := m[role]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (m RoleMap) Has(role ColumnRole) bool {
	_, ok := m[role]
	return ok
}

// NormalizeHeader folds a raw column name into the comparison form:
// lower-cased, trimmed, whitespace collapsed to single underscores.
func NormalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "_", " ")), "_")
}

// ResolveColumns detects the semantic role of every recognizable column and
// verifies the feed's required roles are present.
func ResolveColumns(header []string, feed FeedType) (RoleMap, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = NormalizeHeader(h)
	}

	roles := make(RoleMap)
	claimed := make(map[int]bool)

	for _, role := range resolveOrder {
		for _, syn := range roleSynonyms[role] {
			found := -1
			for i, col := range normalized {
				if col == syn && !claimed[i] {
					found = i
					break
				}
			}
			if found >= 0 {
				roles[role] = found
				claimed[found] = true
				break
			}
		}
	}

	for _, group := range requiredRoles[feed] {
		satisfied := false
		for _, role := range group {
			if roles.Has(role) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return nil, fmt.Errorf("%w: feed %s needs one of %v", ErrMissingRoles, feed, group)
		}
	}

	return roles, nil
}
