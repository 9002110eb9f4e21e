package session

import (
	"errors"

	"github.com/duskproto/session/wire"
)

var (
	ErrNotMigratable  = errors.New("session: this role does not support host migration")
	ErrNoMigrationTarget = errors.New("session: no eligible client to become authority")
)

// SelectMigrationTarget implements the fallback rule of section 4.8
// step 1: an explicit newId if it names a client other than
// previousAuthority, otherwise the first non-authority record ordered
// by admission.
func SelectMigrationTarget(explicit wire.ClientId, previousAuthority wire.ClientId, orderedIds []wire.ClientId) (wire.ClientId, error) {
	if !explicit.IsNone() && explicit != previousAuthority {
		for _, id := range orderedIds {
			if id == explicit {
				return explicit, nil
			}
		}
	}
	for _, id := range orderedIds {
		if id != previousAuthority {
			return id, nil
		}
	}
	return wire.ClientIdNone, ErrNoMigrationTarget
}

// MigrationOutcome describes how a single client's local state
// changes in response to a HostMigration broadcast, per section 4.8
// step 3.
type MigrationOutcome struct {
	NewAuthority  wire.ClientId
	PromotedToHost   bool
	DemotedFromHost  bool
}

// ApplyMigration computes the local-state transition for a client
// with id localId who was previously host (wasHost), given the newly
// broadcast authority id.
func ApplyMigration(localId wire.ClientId, wasHost bool, newAuthority wire.ClientId) MigrationOutcome {
	isHostNow := localId == newAuthority
	return MigrationOutcome{
		NewAuthority:    newAuthority,
		PromotedToHost:  isHostNow && !wasHost,
		DemotedFromHost: wasHost && !isHostNow,
	}
}
