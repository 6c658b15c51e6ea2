package routing

import "netlab/pkg/wire"

// adjacencySet is the set of direct neighbors of one node.
type adjacencySet map[wire.Addr]struct{}

func sortedNeighbors(set adjacencySet) []wire.Addr {
	addrs := make([]wire.Addr, 0, len(set))
	for a := range set {
		addrs = append(addrs, a)
	}
	wire.SortAddrs(addrs)
	return addrs
}

func sameSet(a, b adjacencySet) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// buildForwardingTable runs BFS from self over adj (undirected, cost-1
// edges) and returns, for every reachable non-self node, the first hop
// on a shortest path. Neighbor iteration is sorted by address so the
// tie-break (first path discovered wins) is reproducible across runs.
func buildForwardingTable(self wire.Addr, adj map[wire.Addr]adjacencySet) map[wire.Addr]wire.Addr {
	table := make(map[wire.Addr]wire.Addr)
	visited := map[wire.Addr]bool{self: true}

	type frontierNode struct {
		node     wire.Addr
		firstHop wire.Addr
	}

	var frontier []frontierNode
	for _, n := range sortedNeighbors(adj[self]) {
		if visited[n] {
			continue
		}
		visited[n] = true
		table[n] = n
		frontier = append(frontier, frontierNode{node: n, firstHop: n})
	}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		for _, n := range sortedNeighbors(adj[cur.node]) {
			if visited[n] {
				continue
			}
			visited[n] = true
			table[n] = cur.firstHop
			frontier = append(frontier, frontierNode{node: n, firstHop: cur.firstHop})
		}
	}

	return table
}
