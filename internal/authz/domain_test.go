package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverrideWinsPerLeaf(t *testing.T) {
	defaults := Document{
		SectionCalendar:   {PermView: true, PermEdit: true},
		SectionTransports: {PermView: true, PermEdit: false},
	}
	override := Document{
		SectionCalendar: {PermEdit: false},
	}

	merged := Merge(defaults, override)

	// Only the overridden leaf changes; the rest of the section survives.
	assert.True(t, merged.Allows(SectionCalendar, PermView))
	assert.False(t, merged.Allows(SectionCalendar, PermEdit))
	assert.True(t, merged.Allows(SectionTransports, PermView))
}

func TestMergeAddsUnknownSections(t *testing.T) {
	defaults := Document{SectionCalendar: {PermView: true}}
	override := Document{"dispatch": {"approve": true}}

	merged := Merge(defaults, override)
	assert.True(t, merged.Allows("dispatch", "approve"))
	assert.True(t, merged.Allows(SectionCalendar, PermView))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	defaults := Document{SectionCalendar: {PermView: true, PermEdit: true}}
	override := Document{SectionCalendar: {PermEdit: false}}

	_ = Merge(defaults, override)

	assert.True(t, defaults.Allows(SectionCalendar, PermEdit))
	_, hasView := override[SectionCalendar][PermView]
	assert.False(t, hasView)
}

func TestDefaultsPerRole(t *testing.T) {
	require.True(t, Defaults(RoleWarehouse).Allows(SectionCalendar, PermEdit))
	require.False(t, Defaults(RoleSales).Allows(SectionCalendar, PermEdit))
	require.True(t, Defaults(RoleAdmin).Allows(SectionUsers, PermEdit))
	require.False(t, Defaults(RoleUser).Allows(SectionReports, PermView))

	// Unknown roles degrade to the most restrictive baseline.
	require.False(t, Defaults(Role("intern")).Allows(SectionTransports, PermView))
}

func TestDefaultsReturnsCopies(t *testing.T) {
	first := Defaults(RoleWarehouse)
	first[SectionCalendar][PermEdit] = false

	second := Defaults(RoleWarehouse)
	require.True(t, second.Allows(SectionCalendar, PermEdit))
}

func TestEffectiveAdminBypass(t *testing.T) {
	eff := &Effective{IsAdmin: true, Permissions: Document{}}
	assert.True(t, eff.Allows(SectionCalendar, PermEdit))

	eff = &Effective{Permissions: Document{}}
	assert.False(t, eff.Allows(SectionCalendar, PermEdit))
}

func TestPrincipalAdminDerivation(t *testing.T) {
	assert.True(t, (&Principal{Role: RoleAdmin}).Admin())
	assert.True(t, (&Principal{Role: RoleUser, IsAdmin: true}).Admin())
	assert.False(t, (&Principal{Role: RoleWarehouse}).Admin())
}
