package linker

import (
	"context"
	"testing"
	"time"

	"rollcall/internal/ingest"
	"rollcall/internal/registry"

	"github.com/stretchr/testify/assert"
)

func buildRegistry(t *testing.T, rows []ingest.RosterRow, billing []ingest.RosterRow) *registry.Registry {
	t.Helper()
	sources := []registry.Source{{Kind: registry.SourceRoster, Rows: rows}}
	if len(billing) > 0 {
		sources = append(sources, registry.Source{Kind: registry.SourceBilling, Rows: billing})
	}
	reg, err := registry.NewBuilder().Build(context.Background(), sources)
	assert.NoError(t, err)
	return reg
}

func rec(name, equipment string) ingest.RawActivityRecord {
	return ingest.RawActivityRecord{
		IdentityHint:  name,
		EquipmentHint: equipment,
		Start:         time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC),
		Feed:          ingest.FeedTelemetry,
		SourcePath:    "telemetry.csv",
	}
}

func TestLink_NameMatchWinsOverEquipment(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera", Equipment: "T-101"},
		{Name: "M. Okafor", Equipment: "T-102"},
	}, nil)

	// Name says Rivera, equipment says Okafor's truck; the name wins.
	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("j. RIVERA", "T-102"),
	}, reg)
	assert.NoError(t, err)
	assert.Len(t, res.Linked, 1)
	assert.Equal(t, MethodName, res.Linked[0].Method)
	assert.Equal(t, "j. rivera", res.Linked[0].Identity.NameKey)
	assert.True(t, res.Linked[0].Verified)
}

func TestLink_EquipmentFallback(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera", Equipment: "T-101"},
	}, nil)

	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("", "t-101"),
	}, reg)
	assert.NoError(t, err)
	assert.Len(t, res.Linked, 1)
	assert.Equal(t, MethodEquipment, res.Linked[0].Method)
	assert.Equal(t, "j. rivera", res.Linked[0].Identity.NameKey)
}

func TestLink_GhostRecordQuarantined(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera", Equipment: "T-101"},
	}, nil)

	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("Unknown Contractor", "T-999"),
	}, reg)
	assert.NoError(t, err)
	assert.Empty(t, res.Linked)
	assert.Len(t, res.Quarantine, 1)
	assert.Equal(t, "unlinkable", res.Quarantine[0].Reason)
	assert.Equal(t, "Unknown Contractor", res.Quarantine[0].Raw.IdentityHint)
}

func TestLink_InferredEquipmentMapping(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera"}, // no declared equipment anywhere
	}, nil)

	// One record carries both hints and teaches the linker the mapping; the
	// second carries only the equipment hint and rides the inference.
	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("J. Rivera", "T-700"),
		rec("", "T-700"),
	}, reg)
	assert.NoError(t, err)
	assert.Len(t, res.Linked, 2)
	assert.Equal(t, MethodEquipment, res.Linked[1].Method)
	assert.Equal(t, "j. rivera", res.Linked[1].Identity.NameKey)
	assert.Empty(t, res.Ambiguities)
}

func TestLink_AmbiguousInferenceDropped(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera"},
		{Name: "M. Okafor"},
	}, nil)

	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("J. Rivera", "T-700"),
		rec("M. Okafor", "T-700"),
		rec("", "T-700"),
	}, reg)
	assert.NoError(t, err)
	// The two named records still link by name; the bare-equipment record
	// cannot ride an ambiguous inference.
	assert.Len(t, res.Linked, 2)
	assert.Len(t, res.Quarantine, 1)
	assert.Len(t, res.Ambiguities, 1)
	assert.Contains(t, res.Ambiguities[0], "T-700")
}

func TestLink_DeclaredMappingNotOverriddenByInference(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera", Equipment: "T-101"},
		{Name: "M. Okafor"},
	}, nil)

	// Okafor shows up on Rivera's declared truck; the declared association
	// still owns the bare-equipment record.
	res, err := NewService().Link(context.Background(), []ingest.RawActivityRecord{
		rec("M. Okafor", "T-101"),
		rec("", "T-101"),
	}, reg)
	assert.NoError(t, err)
	assert.Len(t, res.Linked, 2)
	assert.Equal(t, "m. okafor", res.Linked[0].Identity.NameKey)
	assert.Equal(t, "j. rivera", res.Linked[1].Identity.NameKey)
}

func TestLink_RegistryConflictsSurfaceAsAmbiguities(t *testing.T) {
	reg := buildRegistry(t, []ingest.RosterRow{
		{Name: "J. Rivera", Equipment: "T-101", SourcePath: "roster.csv"},
		{Name: "M. Okafor", Equipment: "T-101", SourcePath: "roster.csv"},
	}, nil)

	res, err := NewService().Link(context.Background(), nil, reg)
	assert.NoError(t, err)
	assert.Len(t, res.Ambiguities, 1)
	assert.Contains(t, res.Ambiguities[0], "T-101")
	assert.Contains(t, res.Ambiguities[0], "kept j. rivera")
}
