package analytics

const (
	minCycleLength = 3
	maxCycles      = 10
)

type cycleFrame struct {
	address string
	next    int
}

// DetectCircularFlows finds directed cycles of three or more distinct
// addresses. Each unvisited address starts a depth-first walk; meeting an
// address that is still on the walk's stack closes a cycle made of the stack
// from that address to the current one. Back-and-forth pairs and self
// transfers are not reported. Collection stops at 10 cycles.
func DetectCircularFlows(idx *Index) [][]string {
	adjacency := buildAdjacency(idx)

	cycles := [][]string{}
	visited := make(map[string]bool)
	onStack := make(map[string]int) // address -> position in stack

	for _, root := range idx.Addresses() {
		if visited[root] {
			continue
		}

		visited[root] = true
		onStack[root] = 0
		stack := []cycleFrame{{address: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbours := adjacency[top.address]

			if top.next >= len(neighbours) {
				delete(onStack, top.address)
				stack = stack[:len(stack)-1]
				continue
			}

			next := neighbours[top.next]
			top.next++

			if pos, ok := onStack[next]; ok {
				if len(stack)-pos >= minCycleLength && len(cycles) < maxCycles {
					cycle := make([]string, 0, len(stack)-pos)
					for _, frame := range stack[pos:] {
						cycle = append(cycle, frame.address)
					}
					cycles = append(cycles, cycle)
				}
				continue
			}
			if visited[next] {
				continue
			}

			visited[next] = true
			onStack[next] = len(stack)
			stack = append(stack, cycleFrame{address: next})
		}
	}

	return cycles
}

// buildAdjacency lists the distinct receivers of each sender in the order
// they first appear.
func buildAdjacency(idx *Index) map[string][]string {
	adjacency := make(map[string][]string, len(idx.Addresses()))
	for _, address := range idx.Addresses() {
		seen := make(map[string]bool)
		for _, tx := range idx.Outgoing(address) {
			if !seen[tx.ToAddress] {
				seen[tx.ToAddress] = true
				adjacency[address] = append(adjacency[address], tx.ToAddress)
			}
		}
	}
	return adjacency
}
