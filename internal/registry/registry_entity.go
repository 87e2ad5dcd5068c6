package registry

import (
	"strings"

	"github.com/google/uuid"
)

// Association ranks, by source quality. Lower wins. The order is fixed:
// roster beats billing beats telemetry-derived inference.
const (
	RankRoster    = 0
	RankBilling   = 1
	RankTelemetry = 2
)

// identityNamespace makes identity IDs deterministic for a given name key,
// which keeps report output byte-identical across re-runs.
var identityNamespace = uuid.MustParse("7f1c9f2e-4b1d-4f7a-9c36-5a8f2d0c1b42")

// CanonicalIdentity is one known person. Immutable once the registry is
// built; rebuilt per run.
type CanonicalIdentity struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	NameKey     string    `json:"name_key"`
	ExternalID  string    `json:"external_id,omitempty"`
	EquipmentID string    `json:"equipment_id,omitempty"`
	Source      string    `json:"source"`
}

// EquipmentAssociation maps a normalized equipment id to the identity
// presumed to operate it. Used only as a fallback linkage path.
type EquipmentAssociation struct {
	EquipmentKey string `json:"equipment_key"`
	NameKey      string `json:"name_key"`
	Source       string `json:"source"`
	Rank         int    `json:"rank"`
}

// EquipmentConflict records two roster-declared identities claiming the same
// equipment. The higher-precedence mapping is kept; the conflict is surfaced
// in the run manifest, never silently resolved.
type EquipmentConflict struct {
	EquipmentKey   string `json:"equipment_key"`
	KeptNameKey    string `json:"kept_name_key"`
	KeptSource     string `json:"kept_source"`
	DroppedNameKey string `json:"dropped_name_key"`
	DroppedSource  string `json:"dropped_source"`
}

// Registry is the canonical truth set for one processing run. Read-only after
// Build, so it is safe to share across concurrent ingestion workers.
type Registry struct {
	Identities map[string]CanonicalIdentity    `json:"identities"` // keyed by name key
	Equipment  map[string]EquipmentAssociation `json:"equipment"`  // keyed by equipment key
	Conflicts  []EquipmentConflict             `json:"conflicts"`
}

func (r *Registry) Size() int {
	return len(r.Identities)
}

// ResolveName looks up an identity by raw name hint.
func (r *Registry) ResolveName(hint string) (CanonicalIdentity, bool) {
	id, ok := r.Identities[NameKey(hint)]
	return id, ok
}

// ResolveEquipment follows the equipment association to its identity.
func (r *Registry) ResolveEquipment(hint string) (CanonicalIdentity, bool) {
	assoc, ok := r.Equipment[NormalizeEquipment(hint)]
	if !ok {
		return CanonicalIdentity{}, false
	}
	id, ok := r.Identities[assoc.NameKey]
	return id, ok
}

// Contains reports whether a name key belongs to this run's registry.
func (r *Registry) Contains(nameKey string) bool {
	_, ok := r.Identities[nameKey]
	return ok
}

// NameKey folds a display name into the registry key: lower case, collapsed
// whitespace.
func NameKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeEquipment canonicalizes an equipment id: upper case, collapsed
// whitespace.
func NormalizeEquipment(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// IdentityID derives the stable identifier for a name key.
func IdentityID(nameKey string) uuid.UUID {
	return uuid.NewSHA1(identityNamespace, []byte(nameKey))
}
