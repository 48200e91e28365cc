package game

// DefaultViewRangeM is both the floor on scanner range and the default
// delivery view range for replication sessions.
const DefaultViewRangeM = 300.0

// AggregateScannerRange computes a ship's effective scanner range: the ship's
// own scanner plus every scanner module mounted anywhere in its MountedOn
// subtree, each contributing base_range * level with its buff applied as
// contribution*multiplier + additive. The result never drops below
// DefaultViewRangeM.
func AggregateScannerRange(ship *Entity, entities []*Entity) float64 {
	childrenByParent := make(map[string][]*Entity)
	for _, e := range entities {
		if e.MountedOn == nil {
			continue
		}
		key := e.MountedOn.ParentEntityID.String()
		childrenByParent[key] = append(childrenByParent[key], e)
	}

	total := scannerContribution(ship)
	stack := append([]*Entity(nil), childrenByParent[ship.Guid.String()]...)
	for len(stack) > 0 {
		module := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total += scannerContribution(module)
		stack = append(stack, childrenByParent[module.Guid.String()]...)
	}

	if total < DefaultViewRangeM {
		return DefaultViewRangeM
	}
	return total
}

func scannerContribution(e *Entity) float64 {
	if e.Scanner == nil {
		return 0
	}
	level := e.Scanner.Level
	if level < 1 {
		level = 1
	}
	contribution := e.Scanner.BaseRangeM * float64(level)
	if e.ScannerBuff != nil {
		multiplier := e.ScannerBuff.Multiplier
		if multiplier == 0 {
			multiplier = 1
		}
		contribution = contribution*multiplier + e.ScannerBuff.AdditiveM
	}
	return contribution
}
