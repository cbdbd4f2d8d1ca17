package topology

import (
	"container/heap"
	"errors"
	"sort"
)

// Graph is an adjacency-list view over a Topology's links, built once per
// query so path computation never mutates the underlying store (spec §5:
// "pure computation ... must not suspend").
type Graph struct {
	links  map[string]Link
	adjOut map[string][]string // popID -> link IDs touching it
}

// NewGraph builds a Graph from a Topology snapshot.
func NewGraph(t Topology) *Graph {
	g := &Graph{
		links:  make(map[string]Link, len(t.Links)),
		adjOut: make(map[string][]string),
	}
	for _, l := range t.Links {
		g.links[l.ID] = l
		g.adjOut[l.PopA] = append(g.adjOut[l.PopA], l.ID)
		g.adjOut[l.PopB] = append(g.adjOut[l.PopB], l.ID)
	}
	return g
}

// Path is an ordered list of links connecting src to dst, with total
// distance for ranking.
type Path struct {
	Links      []Link
	DistanceKM float64
}

// otherEnd returns the POP on the far side of link l from pop.
func otherEnd(l Link, pop string) (string, bool) {
	switch pop {
	case l.PopA:
		return l.PopB, true
	case l.PopB:
		return l.PopA, true
	default:
		return "", false
	}
}

type pqItem struct {
	pop      string
	distance float64
	path     []string // link IDs taken to reach pop
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].distance < pq[j].distance }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// KShortestPaths computes up to k shortest-by-distance simple paths from src
// to dst using Yen's algorithm over a Dijkstra base case, per spec §4.1/4.3
// ("Dijkstra over the physical graph weighted by link distance ... k
// shortest by hop/distance"). Returns ErrPathInfeasible if no path exists.
func (g *Graph) KShortestPaths(src, dst string, k int) ([]Path, error) {
	if k <= 0 {
		k = 1
	}

	first, firstLinkIDs, ok := g.dijkstra(src, dst, nil, nil)
	if !ok {
		return nil, ErrPathInfeasible
	}

	found := []Path{g.toPath(firstLinkIDs)}
	foundLinkSeqs := [][]string{firstLinkIDs}
	candidates := make([]candidatePath, 0)

	for len(found) < k {
		lastPath := foundLinkSeqs[len(foundLinkSeqs)-1]

		for i := 0; i < len(lastPath); i++ {
			spurNodeLinks := lastPath[:i]
			spurNode, ok := spurNodeAt(g, src, spurNodeLinks)
			if !ok {
				continue
			}

			excludedLinks := map[string]bool{}
			for _, seq := range foundLinkSeqs {
				if len(seq) > i && equalPrefix(seq[:i], spurNodeLinks) {
					excludedLinks[seq[i]] = true
				}
			}
			excludedNodes := map[string]bool{}
			for _, linkID := range spurNodeLinks {
				l := g.links[linkID]
				excludedNodes[l.PopA] = true
				excludedNodes[l.PopB] = true
			}
			delete(excludedNodes, spurNode)

			_, spurLinkIDs, ok := g.dijkstra(spurNode, dst, excludedLinks, excludedNodes)
			if !ok {
				continue
			}

			total := append(append([]string{}, spurNodeLinks...), spurLinkIDs...)
			if containsDuplicateLink(total) {
				continue
			}

			candidates = append(candidates, candidatePath{
				linkIDs:  total,
				distance: g.distanceOf(total),
			})
		}

		if len(candidates) == 0 {
			break
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
		next := candidates[0]
		candidates = candidates[1:]

		if containsSeq(foundLinkSeqs, next.linkIDs) {
			continue
		}

		found = append(found, g.toPath(next.linkIDs))
		foundLinkSeqs = append(foundLinkSeqs, next.linkIDs)
	}

	return found, nil
}

type candidatePath struct {
	linkIDs  []string
	distance float64
}

func spurNodeAt(g *Graph, src string, prefixLinks []string) (string, bool) {
	pop := src
	for _, linkID := range prefixLinks {
		l, ok := g.links[linkID]
		if !ok {
			return "", false
		}
		next, ok := otherEnd(l, pop)
		if !ok {
			return "", false
		}
		pop = next
	}
	return pop, true
}

func equalPrefix(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsDuplicateLink(ids []string) bool {
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			return true
		}
		seen[id] = true
	}
	return false
}

func containsSeq(seqs [][]string, seq []string) bool {
	for _, s := range seqs {
		if equalPrefix(s, seq) {
			return true
		}
	}
	return false
}

func (g *Graph) distanceOf(linkIDs []string) float64 {
	var total float64
	for _, id := range linkIDs {
		total += g.links[id].DistanceKM
	}
	return total
}

func (g *Graph) toPath(linkIDs []string) Path {
	p := Path{}
	for _, id := range linkIDs {
		l := g.links[id]
		p.Links = append(p.Links, l)
		p.DistanceKM += l.DistanceKM
	}
	return p
}

// dijkstra returns the shortest path from src to dst as a link-ID sequence,
// skipping any link in excludedLinks and any intermediate POP in
// excludedNodes.
func (g *Graph) dijkstra(src, dst string, excludedLinks, excludedNodes map[string]bool) (float64, []string, bool) {
	dist := map[string]float64{src: 0}
	prevLink := map[string]string{}
	prevPop := map[string]string{}
	visited := map[string]bool{}

	pq := &priorityQueue{{pop: src, distance: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		if visited[item.pop] {
			continue
		}
		visited[item.pop] = true

		if item.pop == dst {
			break
		}

		for _, linkID := range g.adjOut[item.pop] {
			if excludedLinks[linkID] {
				continue
			}
			l := g.links[linkID]
			next, ok := otherEnd(l, item.pop)
			if !ok || visited[next] {
				continue
			}
			if excludedNodes[next] && next != dst {
				continue
			}

			nd := dist[item.pop] + l.DistanceKM
			if cur, ok := dist[next]; !ok || nd < cur {
				dist[next] = nd
				prevLink[next] = linkID
				prevPop[next] = item.pop
				heap.Push(pq, pqItem{pop: next, distance: nd})
			}
		}
	}

	if _, ok := dist[dst]; !ok {
		return 0, nil, false
	}

	var linkIDs []string
	for at := dst; at != src; {
		linkID, ok := prevLink[at]
		if !ok {
			return 0, nil, false
		}
		linkIDs = append([]string{linkID}, linkIDs...)
		at = prevPop[at]
	}

	return dist[dst], linkIDs, true
}

// ErrPathInfeasible is returned when no path exists between two POPs.
var ErrPathInfeasible = errors.New("no feasible path")
