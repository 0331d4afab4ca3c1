package syncengine

import "github.com/jakekausler/stagework/internal/workitem"

// DetectCycles runs a standard DFS over the dependency adjacency list
// and returns each cycle closed by a back edge as the list of IDs
// composing it. The same cycle reached from different start nodes is
// reported once; a strongly-connected component that contains several
// distinct cycles yields one entry for each of them, not one merged entry.
func DetectCycles(deps []workitem.Dependency) [][]string {
	adj := make(map[string][]string)
	for _, d := range deps {
		adj[d.FromID] = append(adj[d.FromID], d.ToID)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string
	var cycles [][]string
	seen := make(map[string]bool) // dedupe by sorted-join key

	var visit func(node string)
	visit = func(node string) {
		state[node] = visiting
		stack = append(stack, node)

		for _, next := range adj[node] {
			switch state[next] {
			case unvisited:
				visit(next)
			case visiting:
				cycle := extractCycle(stack, next)
				key := cycleKey(cycle)
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			case done:
				// already fully explored, no new cycle through it
			}
		}

		stack = stack[:len(stack)-1]
		state[node] = done
	}

	for node := range adj {
		if state[node] == unvisited {
			visit(node)
		}
	}
	return cycles
}

// extractCycle returns the slice of the DFS stack from the first
// occurrence of target to the top — the cyclic component.
func extractCycle(stack []string, target string) []string {
	for i, n := range stack {
		if n == target {
			cycle := make([]string, len(stack)-i)
			copy(cycle, stack[i:])
			return cycle
		}
	}
	return nil
}

// cycleKey produces a rotation-invariant key so the same cycle
// discovered starting from different nodes still dedupes.
func cycleKey(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	minIdx := 0
	for i, n := range cycle {
		if n < cycle[minIdx] {
			minIdx = i
		}
	}
	key := ""
	for i := 0; i < len(cycle); i++ {
		key += cycle[(minIdx+i)%len(cycle)] + ">"
	}
	return key
}
