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
	"github.com/aws/ar-go-escape/graphir"
)

// AliasAssignment walks a graph backward from its end node and assigns a
// dense alias id to every reachable allocation and its matching
// region-finish.
type AliasAssignment struct {
	g graphir.Graph

	alias []AliasID // indexed by NodeID, NotReachable until visited
	count int       // number of alias ids assigned so far

	// allocations is the alias-ordered list of allocation node ids, seeded
	// for the status analysis worklist.
	allocations []NodeID

	// finishByAlias maps an alias id to its region-finish node, if one was
	// seen. Escape marks a node resolved by value are propagated to both
	// members of an alias's {allocate, region-finish} pair.
	finishByAlias map[AliasID]NodeID
}

// maxAliasID bounds the alias-id space; node counts beyond it fail with
// ErrCapacityExceeded.
const maxAliasID = 1<<31 - 1

// NewAliasAssignment prepares an assignment over g with n node-id slots.
func NewAliasAssignment(g graphir.Graph, n int) *AliasAssignment {
	a := make([]AliasID, n)
	for i := range a {
		a[i] = NotReachable
	}
	return &AliasAssignment{g: g, alias: a, finishByAlias: map[AliasID]NodeID{}}
}

// FinishNode returns the region-finish node recorded for alias a, or
// graphir.NoNode if none was seen.
func (aa *AliasAssignment) FinishNode(a AliasID) NodeID {
	if n, ok := aa.finishByAlias[a]; ok {
		return n
	}
	return graphir.NoNode
}

// FinishNodes returns every region-finish node recorded across all aliases.
func (aa *AliasAssignment) FinishNodes() []NodeID {
	ns := make([]NodeID, 0, len(aa.finishByAlias))
	for _, n := range aa.finishByAlias {
		ns = append(ns, n)
	}
	return ns
}

// Alias returns the alias id assigned to n (NotReachable if n was never
// visited).
func (aa *AliasAssignment) Alias(n NodeID) AliasID {
	if int(n) < 0 || int(n) >= len(aa.alias) {
		return NotReachable
	}
	return aa.alias[n]
}

// Count returns the number of distinct allocations assigned an alias id.
func (aa *AliasAssignment) Count() int { return aa.count }

// Allocations returns the allocation node ids in the order their alias ids
// were assigned.
func (aa *AliasAssignment) Allocations() []NodeID { return aa.allocations }

// growTo extends the alias table to cover n node ids, marking any newly
// added slots Untrackable: nodes synthesized by the pass itself (phis,
// object-states) are never allocations.
func (aa *AliasAssignment) growTo(n int) {
	if n <= len(aa.alias) {
		return
	}
	old := len(aa.alias)
	grown := make([]AliasID, n)
	copy(grown, aa.alias)
	for i := old; i < n; i++ {
		grown[i] = Untrackable
	}
	aa.alias = grown
}

// Run performs the DFS walk from g.End(). It returns ErrCapacityExceeded if
// the node count would require more alias ids than the alias-id space
// allows.
func (aa *AliasAssignment) Run() error {
	if aa.g.NodeCount() > maxAliasID {
		return ErrCapacityExceeded
	}
	visited := make([]bool, len(aa.alias))
	var stack []NodeID
	if end := aa.g.End(); end != graphir.NoNode {
		stack = append(stack, end)
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if int(n) < 0 || int(n) >= len(visited) || visited[n] {
			continue
		}
		visited[n] = true
		aa.classify(n)
		for _, succ := range aa.inputsOf(n) {
			if succ == graphir.NoNode {
				continue
			}
			if int(succ) < len(visited) && !visited[succ] {
				stack = append(stack, succ)
			}
		}
	}
	return nil
}

// inputsOf returns every value, effect, and control input of n reachable
// through the graph's accessor methods.
func (aa *AliasAssignment) inputsOf(n NodeID) []NodeID {
	op := aa.g.Operator(n)
	var ins []NodeID
	for i := 0; i < op.ValueInputCount(); i++ {
		ins = append(ins, aa.g.ValueInput(n, i))
	}
	for i := 0; i < op.EffectInputCount(); i++ {
		ins = append(ins, aa.g.EffectInput(n, i))
	}
	if c := aa.g.ControlInput(n); c != graphir.NoNode {
		ins = append(ins, c)
	}
	return ins
}

func (aa *AliasAssignment) classify(n NodeID) {
	switch aa.g.Opcode(n) {
	case graphir.OpAllocate:
		if aa.alias[n] == NotReachable {
			aa.ensureAlias(n, aa.assignNew(n))
		}
	case graphir.OpFinishRegion:
		base := aa.g.ValueInput(n, 0)
		if base == graphir.NoNode || aa.g.Opcode(base) != graphir.OpAllocate {
			aa.alias[n] = Untrackable
			return
		}
		if aa.alias[base] == NotReachable {
			aa.ensureAlias(base, aa.assignNew(base))
		}
		aa.alias[n] = aa.alias[base]
		aa.finishByAlias[aa.alias[base]] = n
	default:
		aa.alias[n] = Untrackable
	}
}

func (aa *AliasAssignment) assignNew(n NodeID) AliasID {
	id := AliasID(aa.count)
	aa.count++
	aa.allocations = append(aa.allocations, n)
	return id
}

func (aa *AliasAssignment) ensureAlias(n NodeID, id AliasID) {
	aa.alias[n] = id
}
