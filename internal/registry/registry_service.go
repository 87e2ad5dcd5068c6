package registry

import (
	"context"
	"errors"
	"os"

	"rollcall/internal/ingest"

	"go.uber.org/zap"
)

var (
	// ErrEmptyRoster means zero usable roster rows were found. The engine can
	// never proceed without a truth set to reject against.
	ErrEmptyRoster = errors.New("no usable roster rows")
)

// RosterFileReport describes a consumed roster or billing file for the run
// manifest.
func RosterFileReport(path string, feed ingest.FeedType, accepted, skipped int) ingest.FileReport {
	fr := ingest.FileReport{
		Path:     path,
		Feed:     feed,
		RowCount: accepted + skipped,
		Accepted: accepted,
		Skipped:  skipped,
	}
	if info, err := os.Stat(path); err == nil {
		fr.ModTime = info.ModTime().UTC()
	}
	return fr
}

type SourceKind string

const (
	SourceRoster  SourceKind = "ROSTER"
	SourceBilling SourceKind = "BILLING"
)

// Source is one roster or billing input, already read off disk, in configured
// precedence order.
type Source struct {
	Kind SourceKind
	Rows []ingest.RosterRow
}

//go:generate mockgen -source=registry_service.go -destination=mock/registry_service_mock.go -package=mock
type Builder interface {
	Build(ctx context.Context, sources []Source) (*Registry, error)
}

type builder struct {
	logger *zap.Logger
}

func NewBuilder(logger ...*zap.Logger) Builder {
	l := zap.L().Named("registry.builder")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("registry.builder")
	}
	return &builder{logger: l}
}

// Build constructs the canonical identity set. Sources are consulted in
// precedence order: earlier sources win populated fields, later sources only
// fill blanks. Billing sources contribute equipment associations but never
// invent identities.
func (b *builder) Build(ctx context.Context, sources []Source) (*Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reg := &Registry{
		Identities: make(map[string]CanonicalIdentity),
		Equipment:  make(map[string]EquipmentAssociation),
	}

	for _, src := range sources {
		for _, row := range src.Rows {
			switch src.Kind {
			case SourceBilling:
				b.addAssociation(reg, row, RankBilling)
			default:
				b.addIdentity(reg, row)
			}
		}
	}

	if len(reg.Identities) == 0 {
		return nil, ErrEmptyRoster
	}

	b.logger.Info("identity registry built",
		zap.Int("identities", len(reg.Identities)),
		zap.Int("equipment_associations", len(reg.Equipment)),
		zap.Int("conflicts", len(reg.Conflicts)),
	)

	return reg, nil
}

func (b *builder) addIdentity(reg *Registry, row ingest.RosterRow) {
	key := NameKey(row.Name)
	if key == "" {
		return
	}

	existing, ok := reg.Identities[key]
	if !ok {
		reg.Identities[key] = CanonicalIdentity{
			ID:          IdentityID(key),
			DisplayName: row.Name,
			NameKey:     key,
			ExternalID:  row.ExternalID,
			EquipmentID: NormalizeEquipment(row.Equipment),
			Source:      row.SourcePath,
		}
	} else {
		// Fill-in only, never overwrite a populated field.
		changed := false
		if existing.ExternalID == "" && row.ExternalID != "" {
			existing.ExternalID = row.ExternalID
			changed = true
		}
		if existing.EquipmentID == "" && row.Equipment != "" {
			existing.EquipmentID = NormalizeEquipment(row.Equipment)
			changed = true
		}
		if changed {
			reg.Identities[key] = existing
		}
	}

	if row.Equipment != "" {
		b.addAssociation(reg, row, RankRoster)
	}
}

func (b *builder) addAssociation(reg *Registry, row ingest.RosterRow, rank int) {
	equipKey := NormalizeEquipment(row.Equipment)
	nameKey := NameKey(row.Name)
	if equipKey == "" || nameKey == "" {
		return
	}

	existing, ok := reg.Equipment[equipKey]
	if !ok {
		reg.Equipment[equipKey] = EquipmentAssociation{
			EquipmentKey: equipKey,
			NameKey:      nameKey,
			Source:       row.SourcePath,
			Rank:         rank,
		}
		return
	}

	if existing.NameKey == nameKey {
		return
	}

	// Same equipment claimed by two identities. Keep the higher-precedence
	// mapping (earlier source on equal rank) and record the conflict.
	conflict := EquipmentConflict{EquipmentKey: equipKey}
	if rank < existing.Rank {
		conflict.KeptNameKey = nameKey
		conflict.KeptSource = row.SourcePath
		conflict.DroppedNameKey = existing.NameKey
		conflict.DroppedSource = existing.Source
		reg.Equipment[equipKey] = EquipmentAssociation{
			EquipmentKey: equipKey,
			NameKey:      nameKey,
			Source:       row.SourcePath,
			Rank:         rank,
		}
	} else {
		conflict.KeptNameKey = existing.NameKey
		conflict.KeptSource = existing.Source
		conflict.DroppedNameKey = nameKey
		conflict.DroppedSource = row.SourcePath
	}
	reg.Conflicts = append(reg.Conflicts, conflict)

	b.logger.Warn("ambiguous equipment mapping",
		zap.String("equipment", equipKey),
		zap.String("kept", conflict.KeptNameKey),
		zap.String("dropped", conflict.DroppedNameKey),
	)
}
