package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAggregateScannerRange_FloorsAtDefault(t *testing.T) {
	ship := &Entity{ID: EntityID("ship", uuid.New()), Guid: uuid.New()}
	got := AggregateScannerRange(ship, []*Entity{ship})
	assert.InDelta(t, DefaultViewRangeM, got, 1e-9)
}

func TestAggregateScannerRange_SumsMountedScanners(t *testing.T) {
	shipGuid := uuid.New()
	ship := &Entity{ID: EntityID("ship", shipGuid), Guid: shipGuid}

	scannerA := &Entity{
		ID:        EntityID("module", uuid.New()),
		Guid:      uuid.New(),
		MountedOn: &MountedOn{ParentEntityID: shipGuid, HardpointID: "sensor_1"},
		Scanner:   &ScannerComponent{BaseRangeM: 200, Level: 2},
	}
	scannerB := &Entity{
		ID:        EntityID("module", uuid.New()),
		Guid:      uuid.New(),
		MountedOn: &MountedOn{ParentEntityID: shipGuid, HardpointID: "sensor_2"},
		Scanner:   &ScannerComponent{BaseRangeM: 100, Level: 1},
		ScannerBuff: &ScannerRangeBuff{
			AdditiveM:  50,
			Multiplier: 1.5,
		},
	}

	got := AggregateScannerRange(ship, []*Entity{ship, scannerA, scannerB})

	// A: 200*2 = 400; B: 100*1*1.5 + 50 = 200; total 600 > floor.
	assert.InDelta(t, 600, got, 1e-9)
}

func TestAggregateScannerRange_ShipOwnScannerCounts(t *testing.T) {
	shipGuid := uuid.New()
	ship := &Entity{
		ID:      EntityID("ship", shipGuid),
		Guid:    shipGuid,
		Scanner: &ScannerComponent{BaseRangeM: 500, Level: 1},
	}
	got := AggregateScannerRange(ship, []*Entity{ship})
	assert.InDelta(t, 500, got, 1e-9)
}

func TestAggregateScannerRange_NestedModules(t *testing.T) {
	shipGuid := uuid.New()
	podGuid := uuid.New()
	ship := &Entity{ID: EntityID("ship", shipGuid), Guid: shipGuid}
	pod := &Entity{
		ID:        EntityID("module", podGuid),
		Guid:      podGuid,
		MountedOn: &MountedOn{ParentEntityID: shipGuid, HardpointID: "utility"},
	}
	nested := &Entity{
		ID:        EntityID("module", uuid.New()),
		Guid:      uuid.New(),
		MountedOn: &MountedOn{ParentEntityID: podGuid, HardpointID: "sensor"},
		Scanner:   &ScannerComponent{BaseRangeM: 400, Level: 1},
	}
	got := AggregateScannerRange(ship, []*Entity{ship, pod, nested})
	assert.InDelta(t, 400, got, 1e-9)
}
