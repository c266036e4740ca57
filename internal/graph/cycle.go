package graph

// DetectCycleFrom reports whether a blocked_by cycle is reachable from
// startID. Blocker ids missing from the snapshot add no edge. Each call uses
// its own visited set, so cost is linear in the reachable subgraph.
func DetectCycleFrom(startID string, snap *Snapshot) bool {
	if startID == "" {
		return false
	}
	if _, ok := snap.Get(startID); !ok {
		return false
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) bool
	visit = func(id string) bool {
		if onStack[id] {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		onStack[id] = true
		if t, ok := snap.Get(id); ok {
			for _, blocker := range t.BlockedBy {
				if _, known := snap.Get(blocker); !known {
					continue
				}
				if visit(blocker) {
					return true
				}
			}
		}
		onStack[id] = false
		return false
	}

	return visit(startID)
}
