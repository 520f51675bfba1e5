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

import "github.com/aws/ar-go-escape/graphir"

// through resolves n through the replacement table, returning n itself if it
// has no replacement.
func (p *Pass) through(n NodeID) NodeID {
	if r := p.resolveReplacement(n); r != graphir.NoNode {
		return r
	}
	return n
}

// processLoadFromPhi implements §4.3: synthesize a fresh value-phi over the
// per-predecessor field values of a load whose base is itself a value-phi,
// reusing a structurally equivalent phi already installed as the load's
// replacement.
func (p *Pass) processLoadFromPhi(load, base NodeID, fieldIndex int, state *VirtualState) {
	arity := p.g.Operator(base).ValueInputCount()
	objs := make([]*VirtualObject, 0, arity)
	for i := 0; i < arity; i++ {
		in := p.through(p.g.ValueInput(base, i))
		alias := p.aa.Alias(in)
		if alias < 0 {
			p.clearReplacement(load)
			return
		}
		o := state.object(alias)
		if o == nil {
			p.clearReplacement(load)
			return
		}
		objs = append(objs, o)
	}

	fields := make([]NodeID, arity)
	for i, o := range objs {
		fv := o.field(fieldIndex)
		if fv == graphir.NoNode {
			p.clearReplacement(load)
			return
		}
		fields[i] = fv
	}

	ctrl := p.g.ControlInput(base)
	if existing := p.replacementRaw(load); existing != graphir.NoNode &&
		p.g.Opcode(existing) == graphir.OpPhi &&
		p.g.ControlInput(existing) == ctrl &&
		sameValueInputs(p.g, existing, fields) {
		return
	}

	phiOp := p.ops.Phi(graphir.MachineTagged, arity)
	inputs := append(append([]NodeID{}, fields...), ctrl)
	id := p.newNode(phiOp, inputs)
	p.setReplacement(load, id)
}

func sameValueInputs(g graphir.Graph, n NodeID, vals []NodeID) bool {
	for i, v := range vals {
		if g.ValueInput(n, i) != v {
			return false
		}
	}
	return true
}

// replacementRaw returns the raw (unresolved) replacement table entry for n.
func (p *Pass) replacementRaw(n NodeID) NodeID {
	if int(n) < 0 || int(n) >= len(p.replacements) {
		return graphir.NoNode
	}
	return p.replacements[n]
}
