package registry

import (
	"context"
	"testing"

	"rollcall/internal/ingest"

	"github.com/stretchr/testify/assert"
)

func TestBuild_DeterministicIdentityIDs(t *testing.T) {
	sources := []Source{{
		Kind: SourceRoster,
		Rows: []ingest.RosterRow{
			{Name: "J. Rivera", ExternalID: "E-100", Equipment: "t-101", SourcePath: "roster.csv"},
			{Name: "M. Okafor", SourcePath: "roster.csv"},
		},
	}}

	b := NewBuilder()
	first, err := b.Build(context.Background(), sources)
	assert.NoError(t, err)
	second, err := b.Build(context.Background(), sources)
	assert.NoError(t, err)

	assert.Equal(t, 2, first.Size())
	rivera, ok := first.ResolveName("j. rivera")
	assert.True(t, ok)
	assert.Equal(t, "T-101", rivera.EquipmentID)

	again, _ := second.ResolveName("J. RIVERA")
	assert.Equal(t, rivera.ID, again.ID)
	assert.Equal(t, IdentityID("j. rivera"), rivera.ID)
}

func TestBuild_FillInOnlyMerge(t *testing.T) {
	sources := []Source{
		{
			Kind: SourceRoster,
			Rows: []ingest.RosterRow{
				{Name: "J. Rivera", ExternalID: "E-100", SourcePath: "roster_a.csv"},
			},
		},
		{
			Kind: SourceRoster,
			Rows: []ingest.RosterRow{
				// Later source may fill the blank equipment but never
				// overwrite the populated external id.
				{Name: "j. rivera", ExternalID: "E-999", Equipment: "T-101", SourcePath: "roster_b.csv"},
			},
		},
	}

	reg, err := NewBuilder().Build(context.Background(), sources)
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Size())

	id, ok := reg.ResolveName("J. Rivera")
	assert.True(t, ok)
	assert.Equal(t, "E-100", id.ExternalID)
	assert.Equal(t, "T-101", id.EquipmentID)
	assert.Equal(t, "roster_a.csv", id.Source)
}

func TestBuild_BillingNeverInventsIdentities(t *testing.T) {
	sources := []Source{
		{
			Kind: SourceRoster,
			Rows: []ingest.RosterRow{{Name: "J. Rivera", SourcePath: "roster.csv"}},
		},
		{
			Kind: SourceBilling,
			Rows: []ingest.RosterRow{
				{Name: "J. Rivera", Equipment: "T-101", SourcePath: "billing.csv"},
				{Name: "Ghost Operator", Equipment: "T-500", SourcePath: "billing.csv"},
			},
		},
	}

	reg, err := NewBuilder().Build(context.Background(), sources)
	assert.NoError(t, err)
	assert.Equal(t, 1, reg.Size())
	assert.False(t, reg.Contains("ghost operator"))

	// The association still resolves through the roster identity.
	id, ok := reg.ResolveEquipment("t-101")
	assert.True(t, ok)
	assert.Equal(t, "j. rivera", id.NameKey)

	// Billing-only equipment points at an unknown identity and stays dead.
	_, ok = reg.ResolveEquipment("T-500")
	assert.False(t, ok)
}

func TestBuild_EquipmentConflictKeepsHigherRank(t *testing.T) {
	sources := []Source{
		{
			Kind: SourceBilling,
			Rows: []ingest.RosterRow{{Name: "M. Okafor", Equipment: "T-101", SourcePath: "billing.csv"}},
		},
		{
			Kind: SourceRoster,
			Rows: []ingest.RosterRow{
				{Name: "J. Rivera", Equipment: "T-101", SourcePath: "roster.csv"},
				{Name: "M. Okafor", SourcePath: "roster.csv"},
			},
		},
	}

	reg, err := NewBuilder().Build(context.Background(), sources)
	assert.NoError(t, err)

	// Roster rank beats billing rank even though billing came first.
	assoc := reg.Equipment["T-101"]
	assert.Equal(t, "j. rivera", assoc.NameKey)
	assert.Equal(t, RankRoster, assoc.Rank)

	assert.Len(t, reg.Conflicts, 1)
	assert.Equal(t, "j. rivera", reg.Conflicts[0].KeptNameKey)
	assert.Equal(t, "m. okafor", reg.Conflicts[0].DroppedNameKey)
}

func TestBuild_ConflictOnEqualRankKeepsFirst(t *testing.T) {
	sources := []Source{{
		Kind: SourceRoster,
		Rows: []ingest.RosterRow{
			{Name: "J. Rivera", Equipment: "T-101", SourcePath: "roster.csv"},
			{Name: "M. Okafor", Equipment: "T-101", SourcePath: "roster.csv"},
		},
	}}

	reg, err := NewBuilder().Build(context.Background(), sources)
	assert.NoError(t, err)
	assert.Equal(t, "j. rivera", reg.Equipment["T-101"].NameKey)
	assert.Len(t, reg.Conflicts, 1)
}

func TestBuild_EmptyRoster(t *testing.T) {
	_, err := NewBuilder().Build(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyRoster)

	_, err = NewBuilder().Build(context.Background(), []Source{{
		Kind: SourceBilling,
		Rows: []ingest.RosterRow{{Name: "J. Rivera", Equipment: "T-101"}},
	}})
	assert.ErrorIs(t, err, ErrEmptyRoster)
}

func TestNameKeyAndEquipmentNormalization(t *testing.T) {
	assert.Equal(t, "j. rivera", NameKey("  J.  RIVERA "))
	assert.Equal(t, "T-101", NormalizeEquipment(" t-101 "))
	assert.Equal(t, "", NameKey("   "))
}
