// Package dag implements the graph algorithms FlowGraph needs: topological
// ordering via Kahn's algorithm and cycle detection via DFS reachability,
// extracted as reusable helpers over a plain adjacency map so they carry no
// knowledge of nodes, settings, or schemas.
package dag

import "sort"

// ErrCycle is returned by TopologicalSort when the adjacency describes a
// graph that is not acyclic.
type ErrCycle struct{}

func (ErrCycle) Error() string { return "graph contains a cycle" }

// TopologicalSort returns ids in topological order using Kahn's algorithm,
// restricted to the subgraph reachable from roots, tie-breaking by
// ascending id for reproducibility. adjacency maps a node id to
// its outgoing-edge targets.
func TopologicalSort(roots []int64, adjacency map[int64][]int64) ([]int64, error) {
	reachable := reachableFrom(roots, adjacency)

	inDegree := make(map[int64]int, len(reachable))
	for id := range reachable {
		inDegree[id] = 0
	}
	for from := range reachable {
		for _, to := range adjacency[from] {
			if _, ok := reachable[to]; ok {
				inDegree[to]++
			}
		}
	}

	var ready []int64
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	order := make([]int64, 0, len(reachable))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, to := range adjacency[next] {
			if _, ok := reachable[to]; !ok {
				continue
			}
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) != len(reachable) {
		return nil, ErrCycle{}
	}
	return order, nil
}

// reachableFrom returns the set of ids reachable from roots (inclusive),
// following adjacency, via BFS.
func reachableFrom(roots []int64, adjacency map[int64][]int64) map[int64]struct{} {
	seen := make(map[int64]struct{}, len(roots))
	queue := append([]int64(nil), roots...)
	for _, r := range roots {
		seen[r] = struct{}{}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, to := range adjacency[cur] {
			if _, ok := seen[to]; ok {
				continue
			}
			seen[to] = struct{}{}
			queue = append(queue, to)
		}
	}
	return seen
}

// ReachesFrom reports whether target is reachable from start by following
// adjacency — used by connect_node's cycle check: before adding edge
// from->to, DFS from to must not reach from.
func ReachesFrom(start, target int64, adjacency map[int64][]int64) bool {
	if start == target {
		return true
	}
	visited := map[int64]bool{start: true}
	stack := []int64{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		for _, next := range adjacency[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			stack = append(stack, next)
		}
	}
	return false
}

// DescendantsBFS returns every id reachable from roots via adjacency,
// excluding the roots themselves, in BFS visitation order — used by reset
// propagation.
func DescendantsBFS(roots []int64, adjacency map[int64][]int64) []int64 {
	seen := make(map[int64]bool, len(roots))
	for _, r := range roots {
		seen[r] = true
	}
	queue := append([]int64(nil), roots...)
	var order []int64
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, to := range adjacency[cur] {
			if seen[to] {
				continue
			}
			seen[to] = true
			order = append(order, to)
			queue = append(queue, to)
		}
	}
	return order
}
