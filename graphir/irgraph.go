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

package graphir

import "fmt"

// op is the reference Operator implementation: a fixed description plus a
// handful of opcode-specific parameters (field/element offsets, constant
// values) needed by the accessor methods on *IRGraph.
type op struct {
	opcode    Opcode
	mnemonic  string
	valueIn   int
	contextIn int
	effectIn  int
	effectOut int
	frameIn   int

	// opcode-specific parameters
	fieldOffset  int
	headerSize   int
	machineType  MachineType
	constant     int64
	hasConstant  bool
	virtualObjID int
}

func (o *op) ValueInputCount() int      { return o.valueIn }
func (o *op) ContextInputCount() int    { return o.contextIn }
func (o *op) EffectInputCount() int     { return o.effectIn }
func (o *op) EffectOutputCount() int    { return o.effectOut }
func (o *op) FrameStateInputCount() int { return o.frameIn }
func (o *op) Mnemonic() string          { return o.mnemonic }

type node struct {
	id      NodeID
	op      *op
	inputs  []NodeID // value inputs, then context inputs, then effect inputs, then frame-state input(s)
	control NodeID
}

// IRGraph is a minimal, mutable, in-memory sea-of-nodes graph satisfying
// graphir.Graph. It exists only to make the pass runnable and testable; a
// real compiler supplies its own Graph built from its own IR.
type IRGraph struct {
	nodes []*node
	end   NodeID
}

// NewIRGraph returns an empty graph.
func NewIRGraph() *IRGraph {
	return &IRGraph{end: NoNode}
}

// SetEnd designates n as the graph's end node.
func (g *IRGraph) SetEnd(n NodeID) { g.end = n }

func (g *IRGraph) NodeCount() int { return len(g.nodes) }

func (g *IRGraph) Nodes() []NodeID {
	ids := make([]NodeID, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.id
	}
	return ids
}

func (g *IRGraph) End() NodeID { return g.end }

func (g *IRGraph) Opcode(n NodeID) Opcode { return g.nodes[n].op.opcode }

func (g *IRGraph) Operator(n NodeID) Operator { return g.nodes[n].op }

func (g *IRGraph) ValueInput(n NodeID, i int) NodeID {
	nd := g.nodes[n]
	if i < 0 || i >= nd.op.valueIn || i >= len(nd.inputs) {
		return NoNode
	}
	return nd.inputs[i]
}

func (g *IRGraph) EffectInput(n NodeID, i int) NodeID {
	nd := g.nodes[n]
	off := nd.op.valueIn + nd.op.contextIn
	idx := off + i
	if i < 0 || i >= nd.op.effectIn || idx >= len(nd.inputs) {
		return NoNode
	}
	return nd.inputs[idx]
}

func (g *IRGraph) ControlInput(n NodeID) NodeID { return g.nodes[n].control }

func (g *IRGraph) Uses(n NodeID) []Use {
	var uses []Use
	for _, nd := range g.nodes {
		for i, in := range nd.inputs {
			if in != n {
				continue
			}
			kind := EdgeValue
			switch {
			case i >= nd.op.valueIn+nd.op.contextIn+nd.op.effectIn:
				kind = EdgeFrameState
			case i >= nd.op.valueIn+nd.op.contextIn:
				kind = EdgeEffect
			}
			uses = append(uses, Use{Source: nd.id, Target: n, Index: i, Kind: kind})
		}
		if nd.control == n {
			uses = append(uses, Use{Source: nd.id, Target: n, Index: 0, Kind: EdgeControl})
		}
	}
	return uses
}

func (g *IRGraph) NewNode(o Operator, inputs []NodeID) NodeID {
	oo, ok := o.(*op)
	if !ok {
		panic(fmt.Sprintf("graphir: foreign operator type %T", o))
	}
	id := NodeID(len(g.nodes))
	control := NoNode
	valueInputs := inputs
	// by convention the control input, if any, is the last element of
	// inputs for phi/effect-phi nodes synthesized by the pass.
	if oo.opcode == OpPhi || oo.opcode == OpEffectPhi {
		if len(inputs) > 0 {
			control = inputs[len(inputs)-1]
			valueInputs = inputs[:len(inputs)-1]
		}
	}
	nd := &node{id: id, op: oo, inputs: append([]NodeID{}, valueInputs...), control: control}
	g.nodes = append(g.nodes, nd)
	return id
}

func (g *IRGraph) ReplaceValueInput(n NodeID, i int, newInput NodeID) {
	g.nodes[n].inputs[i] = newInput
}

func (g *IRGraph) FieldAccess(n NodeID) (int, MachineType) {
	o := g.nodes[n].op
	return o.fieldOffset, o.machineType
}

func (g *IRGraph) ElementAccess(n NodeID) (int, MachineType) {
	o := g.nodes[n].op
	return o.headerSize, o.machineType
}

func (g *IRGraph) ElementIndex(n NodeID) (NodeID, int64, bool) {
	nd := g.nodes[n]
	idx := NoNode
	if nd.op.valueIn > 1 {
		idx = nd.inputs[1]
	}
	if idx == NoNode {
		return NoNode, 0, false
	}
	idxNode := g.nodes[idx]
	return idx, idxNode.op.constant, idxNode.op.hasConstant
}

func (g *IRGraph) AllocationSize(n NodeID) (NodeID, int64, bool) {
	nd := g.nodes[n]
	if len(nd.inputs) == 0 {
		return NoNode, 0, false
	}
	sizeNode := nd.inputs[0]
	sz := g.nodes[sizeNode]
	return sizeNode, sz.op.constant, sz.op.hasConstant
}

// Phi implements OperatorFactory: a value-phi merging valueInputCount inputs
// of the given machine representation.
func (g *IRGraph) Phi(rep MachineType, valueInputCount int) Operator {
	return &op{opcode: OpPhi, mnemonic: "Phi", valueIn: valueInputCount, machineType: rep}
}

// ObjectState implements OperatorFactory: a node bundling arity field values
// for the virtual object identified by virtualObjectID.
func (g *IRGraph) ObjectState(arity int, virtualObjectID int) Operator {
	return &op{opcode: OpOther, mnemonic: "ObjectState", valueIn: arity, virtualObjID: virtualObjectID}
}

// --- builder helpers used by tests and the CLI harness ---

// AddStart creates a Start node (no inputs).
func (g *IRGraph) AddStart() NodeID {
	return g.NewNode(&op{opcode: OpStart, mnemonic: "Start", effectOut: 1}, nil)
}

// AddConstant creates an integer-constant value node, used as the size
// operand of AddAllocate or the index operand of element accesses.
func (g *IRGraph) AddConstant(v int64) NodeID {
	return g.NewNode(&op{opcode: OpOther, mnemonic: "Constant", constant: v, hasConstant: true}, nil)
}

// AddNonConstant creates an opaque value node with no known constant value,
// e.g. a parameter used as a non-constant element index.
func (g *IRGraph) AddNonConstant(mnemonic string) NodeID {
	return g.NewNode(&op{opcode: OpOther, mnemonic: mnemonic}, nil)
}

// AddAllocate creates an Allocate node consuming effect input eff and value
// input size.
func (g *IRGraph) AddAllocate(eff, size NodeID) NodeID {
	return g.NewNode(&op{opcode: OpAllocate, mnemonic: "Allocate", valueIn: 1, effectIn: 1, effectOut: 1}, []NodeID{size, eff})
}

// AddFinishRegion creates a FinishRegion node whose value input is alloc.
func (g *IRGraph) AddFinishRegion(eff, alloc NodeID) NodeID {
	return g.NewNode(&op{opcode: OpFinishRegion, mnemonic: "FinishRegion", valueIn: 1, effectIn: 1, effectOut: 1}, []NodeID{alloc, eff})
}

// AddStoreField creates a StoreField(base, value) node at the given offset.
func (g *IRGraph) AddStoreField(eff, base, value NodeID, offset int, mt MachineType) NodeID {
	return g.NewNode(&op{opcode: OpStoreField, mnemonic: "StoreField", valueIn: 2, effectIn: 1, effectOut: 1, fieldOffset: offset, machineType: mt}, []NodeID{base, value, eff})
}

// AddLoadField creates a LoadField(base) node at the given offset. Loads
// consume an effect input but produce none: they are dangling effect
// consumers, processed immediately by the object analysis worklist rather
// than continuing the effect chain.
func (g *IRGraph) AddLoadField(eff, base NodeID, offset int, mt MachineType) NodeID {
	return g.NewNode(&op{opcode: OpLoadField, mnemonic: "LoadField", valueIn: 1, effectIn: 1, effectOut: 0, fieldOffset: offset, machineType: mt}, []NodeID{base, eff})
}

// AddStoreElement creates a StoreElement(base, index, value) node.
func (g *IRGraph) AddStoreElement(eff, base, index, value NodeID, headerSize int, mt MachineType) NodeID {
	return g.NewNode(&op{opcode: OpStoreElement, mnemonic: "StoreElement", valueIn: 3, effectIn: 1, effectOut: 1, headerSize: headerSize, machineType: mt}, []NodeID{base, index, value, eff})
}

// AddLoadElement creates a LoadElement(base, index) node; like AddLoadField,
// it is a dangling effect consumer (no effect output).
func (g *IRGraph) AddLoadElement(eff, base, index NodeID, headerSize int, mt MachineType) NodeID {
	return g.NewNode(&op{opcode: OpLoadElement, mnemonic: "LoadElement", valueIn: 2, effectIn: 1, effectOut: 0, headerSize: headerSize, machineType: mt}, []NodeID{base, index, eff})
}

// AddEffectPhi creates an EffectPhi merging the given effect predecessors,
// with control input ctrl.
func (g *IRGraph) AddEffectPhi(ctrl NodeID, preds ...NodeID) NodeID {
	inputs := append(append([]NodeID{}, preds...), ctrl)
	return g.NewNode(&op{opcode: OpEffectPhi, mnemonic: "EffectPhi", effectIn: len(preds), effectOut: 1}, inputs)
}

// AddPhi creates a value Phi merging the given value predecessors, with
// control input ctrl and machine representation rep.
func (g *IRGraph) AddPhi(ctrl NodeID, rep MachineType, preds ...NodeID) NodeID {
	inputs := append(append([]NodeID{}, preds...), ctrl)
	return g.NewNode(&op{opcode: OpPhi, mnemonic: "Phi", valueIn: len(preds), machineType: rep}, inputs)
}

// AddOpaqueEffectUse creates an OpOther node that both consumes and produces
// effect, and consumes values as its value inputs — used to model
// "any other effectful node" in tests (spec §4.2 last dispatch case).
func (g *IRGraph) AddOpaqueEffectUse(eff NodeID, values ...NodeID) NodeID {
	return g.NewNode(&op{opcode: OpOther, mnemonic: "OpaqueEffect", valueIn: len(values), effectIn: 1, effectOut: 1}, append(append([]NodeID{}, values...), eff))
}

// AddDanglingUse creates a node that consumes effect but produces none (a
// "dangling" effect consumer, e.g. a pure read used only for its value).
func (g *IRGraph) AddDanglingUse(eff NodeID, values ...NodeID) NodeID {
	return g.NewNode(&op{opcode: OpOther, mnemonic: "DanglingUse", valueIn: len(values), effectIn: 1, effectOut: 0}, append(append([]NodeID{}, values...), eff))
}

// AddValueUse creates a pure value-consumer node with no effect edges at
// all, e.g. a store of a pointer into an unrelated object, or a
// reference-equal comparison.
func (g *IRGraph) AddValueUse(opcode Opcode, values ...NodeID) NodeID {
	return g.NewNode(&op{opcode: opcode, mnemonic: opcode.String(), valueIn: len(values)}, values)
}
