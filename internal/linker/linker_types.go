package linker

import (
	"rollcall/internal/ingest"
	"rollcall/internal/registry"
)

type Method string

const (
	MethodName      Method = "NAME_MATCH"
	MethodEquipment Method = "EQUIPMENT_MATCH"
	MethodNone      Method = "NONE"
)

// LinkedRecord is a raw record annotated with its resolved identity. Identity
// is meaningful only when Verified is true.
type LinkedRecord struct {
	Raw      ingest.RawActivityRecord
	Identity registry.CanonicalIdentity
	Method   Method
	Verified bool
}

// QuarantinedRecord is a ghost record: retained for audit, never promoted
// into classification input.
type QuarantinedRecord struct {
	Raw    ingest.RawActivityRecord `json:"raw"`
	Reason string                   `json:"reason"`
}

// Result is the linkage stage output.
type Result struct {
	Linked      []LinkedRecord
	Quarantine  []QuarantinedRecord
	Ambiguities []string
}
