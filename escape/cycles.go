// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package escape

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// cycleGraph is a directed graph over NodeID, built fresh for each
// ReplacementCycles call, that implements gonum's graph.Directed interface
// so its strongly connected components can be found with gonum's
// graph/topo.TarjanSCC rather than a hand-rolled Tarjan pass.
type cycleGraph struct {
	nodes []NodeID
	edges map[NodeID]map[NodeID]bool
}

func newCycleGraph(nodes []NodeID, successors func(NodeID) []NodeID) *cycleGraph {
	sorted := append([]NodeID{}, nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	edges := make(map[NodeID]map[NodeID]bool, len(sorted))
	for _, n := range sorted {
		es := make(map[NodeID]bool)
		for _, w := range successors(n) {
			es[w] = true
		}
		edges[n] = es
	}
	return &cycleGraph{nodes: sorted, edges: edges}
}

// subgraph restricts g to the given node ids; edges leaving the set are
// dropped. include must already be a subset of g's own node ids.
func (g *cycleGraph) subgraph(include []NodeID) *cycleGraph {
	set := make(map[NodeID]bool, len(include))
	for _, n := range include {
		set[n] = true
	}
	edges := make(map[NodeID]map[NodeID]bool, len(include))
	for _, n := range include {
		es := make(map[NodeID]bool)
		for w := range g.edges[n] {
			if set[w] {
				es[w] = true
			}
		}
		edges[n] = es
	}
	return &cycleGraph{nodes: append([]NodeID{}, include...), edges: edges}
}

func nodeIDIndex(nodes []NodeID, n NodeID) int {
	for i, m := range nodes {
		if m == n {
			return i
		}
	}
	return -1
}

type idNode NodeID

func (n idNode) ID() int64 { return int64(n) }

type idNodeIterator struct {
	nodes []graph.Node
	cur   int
}

func newIDNodeIterator(ids []NodeID) *idNodeIterator {
	ns := make([]graph.Node, len(ids))
	for i, id := range ids {
		ns[i] = idNode(id)
	}
	return &idNodeIterator{nodes: ns, cur: -1}
}

func (it *idNodeIterator) Next() bool {
	if it.cur < len(it.nodes)-1 {
		it.cur++
		return true
	}
	return false
}
func (it *idNodeIterator) Len() int         { return len(it.nodes) - it.cur - 1 }
func (it *idNodeIterator) Reset()           { it.cur = -1 }
func (it *idNodeIterator) Node() graph.Node { return it.nodes[it.cur] }

// The methods below satisfy gonum's graph.Directed interface.

func (g *cycleGraph) Node(id int64) graph.Node {
	n := NodeID(id)
	if _, ok := g.edges[n]; !ok {
		return nil
	}
	return idNode(n)
}

func (g *cycleGraph) Nodes() graph.Nodes {
	return newIDNodeIterator(g.nodes)
}

func (g *cycleGraph) From(id int64) graph.Nodes {
	var succ []NodeID
	for w := range g.edges[NodeID(id)] {
		succ = append(succ, w)
	}
	return newIDNodeIterator(succ)
}

func (g *cycleGraph) HasEdgeBetween(xid, yid int64) bool {
	x, y := NodeID(xid), NodeID(yid)
	return g.edges[x][y] || g.edges[y][x]
}

func (g *cycleGraph) HasEdgeFromTo(uid, vid int64) bool {
	return g.edges[NodeID(uid)][NodeID(vid)]
}

func (g *cycleGraph) To(id int64) graph.Nodes {
	n := NodeID(id)
	var pred []NodeID
	for u, es := range g.edges {
		if es[n] {
			pred = append(pred, u)
		}
	}
	return newIDNodeIterator(pred)
}

func (g *cycleGraph) Edge(uid, vid int64) graph.Edge {
	u, v := NodeID(uid), NodeID(vid)
	if !g.edges[u][v] {
		return nil
	}
	return simple.Edge{F: idNode(u), T: idNode(v)}
}

// cycleFinder holds Donald B. Johnson's algorithm state ("Finding All the
// Elementary Circuits of a Directed Graph", 1975) while it searches a single
// strongly connected component rooted at start.
type cycleFinder struct {
	blocked map[NodeID]bool
	blist   map[NodeID]map[NodeID]bool
	stack   []NodeID
	cycles  [][]NodeID
}

func (s *cycleFinder) unblock(u NodeID) {
	s.blocked[u] = false
	for w := range s.blist[u] {
		if s.blocked[w] {
			s.unblock(w)
		}
	}
}

func (s *cycleFinder) circuit(v, start NodeID, g *cycleGraph) bool {
	found := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true
	for w := range g.edges[v] {
		if w == start {
			cyc := append(append([]NodeID{}, s.stack...), w)
			s.cycles = append(s.cycles, cyc)
			found = true
		} else if !s.blocked[w] {
			if s.circuit(w, start, g) {
				found = true
			}
		}
	}
	if found {
		s.unblock(v)
	} else {
		for w := range g.edges[v] {
			if s.blist[w] == nil {
				s.blist[w] = map[NodeID]bool{}
			}
			s.blist[w][v] = true
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return found
}

// findElementaryCycles enumerates the elementary cycles of two or more nodes
// among nodes, given their successors, by repeatedly taking gonum's Tarjan
// decomposition (graph/topo.TarjanSCC) of the remaining graph, running
// Johnson's circuit search over the strongly connected component containing
// the least-indexed remaining node, and dropping that node before repeating.
// Each cycle is returned as its node path with the start node repeated at the
// end. A self-loop forms a component of size one and is not reported.
func findElementaryCycles(nodes []NodeID, successors func(NodeID) []NodeID) [][]NodeID {
	all := newCycleGraph(nodes, successors)
	s := &cycleFinder{blocked: map[NodeID]bool{}, blist: map[NodeID]map[NodeID]bool{}}

	pos := 0
	for pos < len(all.nodes) {
		sub := all.subgraph(all.nodes[pos:])
		comps := topo.TarjanSCC(sub)

		leastPos := -1
		var least NodeID
		var leastComp []graph.Node
		for _, comp := range comps {
			if len(comp) < 2 {
				continue
			}
			for _, n := range comp {
				id := NodeID(n.ID())
				if i := nodeIDIndex(all.nodes, id); leastPos == -1 || i < leastPos {
					leastPos, least, leastComp = i, id, comp
				}
			}
		}
		if leastPos == -1 {
			break
		}

		compNodes := make([]NodeID, len(leastComp))
		for i, n := range leastComp {
			compNodes[i] = NodeID(n.ID())
		}
		s.stack = nil
		s.blocked = map[NodeID]bool{}
		s.blist = map[NodeID]map[NodeID]bool{}
		s.circuit(least, least, all.subgraph(compNodes))
		pos = leastPos + 1
	}
	return s.cycles
}
