package session

import (
	"testing"

	"github.com/duskproto/session/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMigrationTargetHonorsExplicitChoice(t *testing.T) {
	target, err := SelectMigrationTarget(wire.ClientId(3), wire.ClientId(1), []wire.ClientId{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, wire.ClientId(3), target)
}

func TestSelectMigrationTargetFallsBackToFirstNonAuthority(t *testing.T) {
	target, err := SelectMigrationTarget(wire.ClientIdNone, wire.ClientId(1), []wire.ClientId{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, wire.ClientId(2), target)
}

func TestSelectMigrationTargetIgnoresExplicitChoiceOfCurrentAuthority(t *testing.T) {
	target, err := SelectMigrationTarget(wire.ClientId(1), wire.ClientId(1), []wire.ClientId{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, wire.ClientId(2), target)
}

func TestSelectMigrationTargetErrorsWhenNoneEligible(t *testing.T) {
	_, err := SelectMigrationTarget(wire.ClientIdNone, wire.ClientId(1), []wire.ClientId{1})
	assert.ErrorIs(t, err, ErrNoMigrationTarget)
}

func TestApplyMigrationPromotesNewAuthority(t *testing.T) {
	outcome := ApplyMigration(wire.ClientId(2), false, wire.ClientId(2))
	assert.True(t, outcome.PromotedToHost)
	assert.False(t, outcome.DemotedFromHost)
	assert.Equal(t, wire.ClientId(2), outcome.NewAuthority)
}

func TestApplyMigrationDemotesFormerHost(t *testing.T) {
	outcome := ApplyMigration(wire.ClientId(1), true, wire.ClientId(2))
	assert.False(t, outcome.PromotedToHost)
	assert.True(t, outcome.DemotedFromHost)
}

func TestApplyMigrationUnrelatedClientUnaffected(t *testing.T) {
	outcome := ApplyMigration(wire.ClientId(3), false, wire.ClientId(2))
	assert.False(t, outcome.PromotedToHost)
	assert.False(t, outcome.DemotedFromHost)
}
