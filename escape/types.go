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

// Package escape implements an escape analysis pass over a sea-of-nodes
// graph (package graphir). The pass builds per-effect-node symbolic heap
// state for allocations that never leave the current function, rewrites
// loads against that state into the values last written, and exposes an
// on-demand materialization operation for deoptimization.
package escape

import "github.com/aws/ar-go-escape/graphir"

// AliasID is a dense small integer naming a tracked allocation.
type AliasID int32

const (
	// NotReachable marks a node that was never visited from the graph's end
	// during alias assignment.
	NotReachable AliasID = -1

	// Untrackable marks a node that is reachable but not an allocation (or
	// one we chose not to track).
	Untrackable AliasID = -2
)

// objectStatus is the VirtualObject status bit-set.
type objectStatus uint8

const (
	objTracked objectStatus = 1 << iota
	objInitialized
	objCopyRequired
)

// VirtualObject is the symbolic contents of one allocation at one program
// point: an ordered sequence of field values (NoNode meaning "unknown"),
// parallel phi-created markers, and a cached object-state node.
type VirtualObject struct {
	AllocID NodeID
	status  objectStatus

	Fields     []NodeID
	PhiCreated []bool

	ObjectState NodeID

	// owner is the virtual state that currently owns this object; consulted
	// for the copy-on-write discipline before any mutation.
	owner *VirtualState
}

func newVirtualObject(allocID NodeID, fieldCount int, owner *VirtualState) *VirtualObject {
	fields := make([]NodeID, fieldCount, maxInt(fieldCount, 1))
	for i := range fields {
		fields[i] = graphir.NoNode
	}
	return &VirtualObject{
		AllocID:     allocID,
		status:      objTracked,
		Fields:      fields,
		PhiCreated:  make([]bool, fieldCount, maxInt(fieldCount, 1)),
		ObjectState: graphir.NoNode,
		owner:       owner,
	}
}

func (v *VirtualObject) clone(owner *VirtualState) *VirtualObject {
	c := &VirtualObject{
		AllocID:     v.AllocID,
		status:      v.status,
		Fields:      append([]NodeID{}, v.Fields...),
		PhiCreated:  append([]bool{}, v.PhiCreated...),
		ObjectState: v.ObjectState,
		owner:       owner,
	}
	return c
}

// Initialized reports whether the allocation's region-finish has been
// processed.
func (v *VirtualObject) Initialized() bool { return v.status&objInitialized != 0 }

// CopyRequired reports whether this object must be copied before mutation.
func (v *VirtualObject) CopyRequired() bool { return v.status&objCopyRequired != 0 }

func (v *VirtualObject) setInitialized() { v.status |= objInitialized }

func (v *VirtualObject) setInitializedTo(b bool) {
	if b {
		v.status |= objInitialized
	} else {
		v.status &^= objInitialized
	}
}
func (v *VirtualObject) setCopyRequired(b bool) {
	if b {
		v.status |= objCopyRequired
	} else {
		v.status &^= objCopyRequired
	}
}

// field returns the value stored at index i, or NoNode if i is out of range
// or empty. Out-of-range is "unknown", never an escape signal by itself.
func (v *VirtualObject) field(i int) NodeID {
	if i < 0 || i >= len(v.Fields) {
		return graphir.NoNode
	}
	return v.Fields[i]
}

func (v *VirtualObject) clearFields() {
	for i := range v.Fields {
		v.Fields[i] = graphir.NoNode
		v.PhiCreated[i] = false
	}
}

func (v *VirtualObject) hasLiveField() bool {
	for _, f := range v.Fields {
		if f != graphir.NoNode {
			return true
		}
	}
	return false
}

// VirtualState is a per-alias vector of virtual objects, owned by the
// effect-producing node whose output it models.
type VirtualState struct {
	Owner   NodeID
	Objects []*VirtualObject // indexed by AliasID; nil entry = empty/absent
	// copyRequired is set when this state is reachable from more than one
	// effect consumer (an effect branch point) or feeds a frame-state input;
	// it forces object-level copy-for-modification regardless of the
	// object's own bit.
	copyRequired bool
}

func newVirtualState(owner NodeID, aliasCount int) *VirtualState {
	return &VirtualState{Owner: owner, Objects: make([]*VirtualObject, aliasCount)}
}

// clone makes a shallow copy (object pointers shared) re-owned by newOwner.
func (s *VirtualState) clone(newOwner NodeID) *VirtualState {
	c := &VirtualState{
		Owner:        newOwner,
		Objects:      append([]*VirtualObject{}, s.Objects...),
		copyRequired: s.copyRequired,
	}
	return c
}

func (s *VirtualState) object(a AliasID) *VirtualObject {
	if a < 0 || int(a) >= len(s.Objects) {
		return nil
	}
	return s.Objects[a]
}

func (s *VirtualState) ensureLen(n int) {
	if n <= len(s.Objects) {
		return
	}
	grown := make([]*VirtualObject, n)
	copy(grown, s.Objects)
	s.Objects = grown
}

func (s *VirtualState) setObject(a AliasID, v *VirtualObject) {
	s.ensureLen(int(a) + 1)
	s.Objects[a] = v
}

// ownedObjectForModification returns the object at alias a owned by state s.
// An object s already owns is returned as is. An object owned by another
// state is always copied into s first. An object with no owner is adopted in
// place unless it needs copy-for-modification (copy-required && initialized)
// or the state itself forces copying, in which case it is copied too.
func (s *VirtualState) ownedObjectForModification(a AliasID) *VirtualObject {
	o := s.object(a)
	if o == nil {
		return nil
	}
	if o.owner == s {
		return o
	}
	needsCopy := s.copyRequired || (o.CopyRequired() && o.Initialized())
	if !needsCopy && o.owner == nil {
		o.owner = s
		return o
	}
	c := o.clone(s)
	s.setObject(a, c)
	return c
}

// EscapeStatus is a per-node bit-set. A node is virtual iff tracked and not
// escaped. Escape is monotone.
type EscapeStatus uint16

const (
	statusTracked EscapeStatus = 1 << iota
	statusEscaped
	statusOnQueue
	statusVisited
	statusDanglingComputed
	statusDangling
	statusBranchPointComputed
	statusBranchPoint
)

// IsTracked reports whether the tracked bit is set.
func (s EscapeStatus) IsTracked() bool { return s&statusTracked != 0 }

// IsEscaped reports whether the escaped bit is set.
func (s EscapeStatus) IsEscaped() bool { return s&statusEscaped != 0 }

// IsVirtual reports whether the node is tracked and not escaped.
func (s EscapeStatus) IsVirtual() bool { return s.IsTracked() && !s.IsEscaped() }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// NodeID is a re-export of graphir.NodeID for readability within this
// package.
type NodeID = graphir.NodeID
