package linker

import (
	"context"
	"fmt"

	"rollcall/internal/ingest"
	"rollcall/internal/registry"

	"go.uber.org/zap"
)

const quarantineReasonUnlinkable = "unlinkable"

//go:generate mockgen -source=linker_service.go -destination=mock/linker_service_mock.go -package=mock
type Service interface {
	Link(ctx context.Context, records []ingest.RawActivityRecord, reg *registry.Registry) (*Result, error)
}

type service struct {
	logger *zap.Logger
}

func NewService(logger ...*zap.Logger) Service {
	l := zap.L().Named("linker.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("linker.service")
	}
	return &service{logger: l}
}

// Link resolves every record to a canonical identity, name match first,
// equipment match as fallback. Records resolving neither way are quarantined
// and never reach classification, whatever their timestamps look like.
func (s *service) Link(ctx context.Context, records []ingest.RawActivityRecord, reg *registry.Registry) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inferred, ambiguities := s.inferEquipment(records, reg)

	out := &Result{}
	for _, rec := range records {
		identity, method := s.resolve(rec, reg, inferred)
		if method == MethodNone {
			out.Quarantine = append(out.Quarantine, QuarantinedRecord{
				Raw:    rec,
				Reason: quarantineReasonUnlinkable,
			})
			continue
		}

		// Checked, not assumed: a verified record's identity must exist in
		// this run's registry.
		verified := reg.Contains(identity.NameKey)
		if !verified {
			out.Quarantine = append(out.Quarantine, QuarantinedRecord{
				Raw:    rec,
				Reason: "resolved identity missing from registry",
			})
			continue
		}

		out.Linked = append(out.Linked, LinkedRecord{
			Raw:      rec,
			Identity: identity,
			Method:   method,
			Verified: true,
		})
	}

	out.Ambiguities = ambiguities
	for _, c := range reg.Conflicts {
		out.Ambiguities = append(out.Ambiguities, fmt.Sprintf(
			"equipment %s claimed by %s (%s) and %s (%s); kept %s",
			c.EquipmentKey, c.KeptNameKey, c.KeptSource,
			c.DroppedNameKey, c.DroppedSource, c.KeptNameKey,
		))
	}

	s.logger.Info("linkage complete",
		zap.Int("linked", len(out.Linked)),
		zap.Int("quarantined", len(out.Quarantine)),
		zap.Int("ambiguities", len(out.Ambiguities)),
	)

	return out, nil
}

func (s *service) resolve(
	rec ingest.RawActivityRecord,
	reg *registry.Registry,
	inferred map[string]registry.CanonicalIdentity,
) (registry.CanonicalIdentity, Method) {
	if rec.IdentityHint != "" {
		if id, ok := reg.ResolveName(rec.IdentityHint); ok {
			return id, MethodName
		}
	}

	if rec.EquipmentHint != "" {
		if id, ok := reg.ResolveEquipment(rec.EquipmentHint); ok {
			return id, MethodEquipment
		}
		if id, ok := inferred[registry.NormalizeEquipment(rec.EquipmentHint)]; ok {
			return id, MethodEquipment
		}
	}

	return registry.CanonicalIdentity{}, MethodNone
}

// inferEquipment derives equipment-to-identity mappings from records whose
// name already resolves and which also carry an equipment hint. Lowest-rank
// fallback; an equipment id inferred for two different identities is dropped
// as ambiguous rather than guessed at.
func (s *service) inferEquipment(
	records []ingest.RawActivityRecord,
	reg *registry.Registry,
) (map[string]registry.CanonicalIdentity, []string) {
	inferred := make(map[string]registry.CanonicalIdentity)
	conflicted := make(map[string]bool)
	var ambiguities []string

	for _, rec := range records {
		if rec.IdentityHint == "" || rec.EquipmentHint == "" {
			continue
		}
		id, ok := reg.ResolveName(rec.IdentityHint)
		if !ok {
			continue
		}

		equipKey := registry.NormalizeEquipment(rec.EquipmentHint)
		if _, taken := reg.Equipment[equipKey]; taken {
			continue // roster or billing already owns this mapping
		}
		if conflicted[equipKey] {
			continue
		}

		prev, seen := inferred[equipKey]
		if !seen {
			inferred[equipKey] = id
			continue
		}
		if prev.NameKey != id.NameKey {
			delete(inferred, equipKey)
			conflicted[equipKey] = true
			ambiguities = append(ambiguities, fmt.Sprintf(
				"telemetry-derived mapping for equipment %s is ambiguous (%s vs %s); dropped",
				equipKey, prev.NameKey, id.NameKey,
			))
			s.logger.Warn("ambiguous telemetry-derived equipment mapping",
				zap.String("equipment", equipKey),
				zap.String("first", prev.NameKey),
				zap.String("second", id.NameKey),
			)
		}
	}

	return inferred, ambiguities
}
