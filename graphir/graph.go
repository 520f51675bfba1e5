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

// Package graphir defines the collaborator interfaces that the escape
// analysis pass consumes: a sea-of-nodes graph, an opcode discriminator, an
// operator/operator-factory pair, and the small set of parameter accessors
// needed to interpret allocate/load/store nodes. None of graph construction,
// the concrete opcode catalogue, or node layout live here for real compilers;
// this package only fixes the contract and ships one reference
// implementation (see irgraph.go) used by tests and the CLI demo harness.
package graphir

// NodeID identifies a node in the graph. Ids are dense and stable for the
// duration of a pass, but the space grows as the pass synthesizes phi and
// object-state nodes.
type NodeID int32

// NoNode is the sentinel for "no node"/"nothing" in an optional NodeID slot.
const NoNode NodeID = -1

// MachineType is an opaque machine-representation tag (pointer-sized or not,
// tagged or not); the pass only cares whether a type is pointer-sized.
type MachineType int

const (
	MachineTagged MachineType = iota // pointer-sized, possibly tagged
	MachineWord32
	MachineWord64
	MachineFloat64
	MachineBit
)

// PointerSized reports whether values of this machine type occupy one
// pointer-sized slot, the unit loads/stores/allocations are measured in.
func (m MachineType) PointerSized() bool {
	return m == MachineTagged
}

// Opcode is the closed tag set the pass dispatches on, plus OpOther for
// every opcode outside that set (spec's "open tag for everything else").
type Opcode int

const (
	OpAllocate Opcode = iota
	OpFinishRegion
	OpBeginRegion
	OpStoreField
	OpLoadField
	OpStoreElement
	OpLoadElement
	OpPhi
	OpEffectPhi
	OpStart
	OpEnd
	OpSelect
	OpFrameState
	OpStateValues
	OpReferenceEqual
	OpObjectIsSmi
	OpOther
)

func (o Opcode) String() string {
	switch o {
	case OpAllocate:
		return "Allocate"
	case OpFinishRegion:
		return "FinishRegion"
	case OpBeginRegion:
		return "BeginRegion"
	case OpStoreField:
		return "StoreField"
	case OpLoadField:
		return "LoadField"
	case OpStoreElement:
		return "StoreElement"
	case OpLoadElement:
		return "LoadElement"
	case OpPhi:
		return "Phi"
	case OpEffectPhi:
		return "EffectPhi"
	case OpStart:
		return "Start"
	case OpEnd:
		return "End"
	case OpSelect:
		return "Select"
	case OpFrameState:
		return "FrameState"
	case OpStateValues:
		return "StateValues"
	case OpReferenceEqual:
		return "ReferenceEqual"
	case OpObjectIsSmi:
		return "ObjectIsSmi"
	default:
		return "Other"
	}
}

// EdgeKind distinguishes the kind of a use edge.
type EdgeKind int

const (
	EdgeValue EdgeKind = iota
	EdgeEffect
	EdgeControl
	EdgeFrameState
)

// Use describes one use edge: Source uses Target as its Index-th input of
// kind Kind.
type Use struct {
	Source NodeID
	Target NodeID
	Index  int
	Kind   EdgeKind
}

// Operator describes the shape of a node's inputs/outputs, independent of
// its concrete opcode encoding.
type Operator interface {
	ValueInputCount() int
	ContextInputCount() int
	EffectInputCount() int
	EffectOutputCount() int
	FrameStateInputCount() int
	Mnemonic() string
}

// OperatorFactory synthesizes the two kinds of operator the pass itself
// needs to create: a phi merging value-input-count inputs of the given
// machine representation, and an object-state bundling arity field values
// for the virtual object identified by virtualObjectID.
type OperatorFactory interface {
	Phi(rep MachineType, valueInputCount int) Operator
	ObjectState(arity int, virtualObjectID int) Operator
}

// Graph is the sea-of-nodes graph the pass operates over.
type Graph interface {
	NodeCount() int
	Nodes() []NodeID
	End() NodeID

	Opcode(NodeID) Opcode
	Operator(NodeID) Operator

	ValueInput(n NodeID, i int) NodeID
	EffectInput(n NodeID, i int) NodeID
	ControlInput(n NodeID) NodeID
	Uses(n NodeID) []Use

	// NewNode creates and inserts a new node with the given operator and
	// input list (value inputs followed by the control input, matching the
	// order OperatorFactory-created operators expect); it returns the new
	// node's id.
	NewNode(op Operator, inputs []NodeID) NodeID

	// ReplaceValueInput rewires the i-th value input of n to newInput,
	// in place (used to rewrite phi-created field values across merges).
	ReplaceValueInput(n NodeID, i int, newInput NodeID)

	// FieldAccess returns the {offset, machine-type} parameters of a
	// load-field/store-field node.
	FieldAccess(n NodeID) (offset int, mtype MachineType)

	// ElementAccess returns the {header-size, machine-type} parameters of a
	// load-element/store-element node. The index operand is read with
	// ElementIndex.
	ElementAccess(n NodeID) (headerSize int, mtype MachineType)

	// ElementIndex returns the element-access node's index operand and, if
	// it is a compile-time constant, its integer value.
	ElementIndex(n NodeID) (index NodeID, constant int64, isConstant bool)

	// AllocationSize returns the size operand node of an allocate node, and
	// its value in pointer-sized slots if it is a compile-time constant.
	AllocationSize(n NodeID) (size NodeID, slots int64, isConstant bool)
}
