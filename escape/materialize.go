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

// Materializer implements §4.6's on-demand object-state construction: given
// an effect node and a candidate allocation/region-finish, it bundles the
// candidate's current field values into a new object-state IR node so a
// downstream deoptimizer can rebuild the object.
type Materializer struct {
	p *Pass
}

// materialize returns the (possibly cached) object-state node for n's
// virtual object as observed at effect node e, or (NoNode, false) if n is
// not a virtual allocation/region-finish at e.
func (m *Materializer) materialize(e, n NodeID) (NodeID, bool) {
	st := m.p.stateOf(e)
	if st == nil {
		return graphir.NoNode, false
	}
	switch m.p.g.Opcode(n) {
	case graphir.OpAllocate, graphir.OpFinishRegion:
	default:
		return graphir.NoNode, false
	}
	alias := m.p.aa.Alias(n)
	if !m.isVirtualAlias(alias) {
		return graphir.NoNode, false
	}
	obj := st.object(alias)
	if obj == nil {
		return graphir.NoNode, false
	}
	return m.materializeObject(e, alias, obj)
}

// isVirtualAlias reports whether alias's originating allocation is currently
// virtual (tracked and not escaped).
func (m *Materializer) isVirtualAlias(alias AliasID) bool {
	if alias < 0 {
		return false
	}
	allocs := m.p.aa.Allocations()
	if int(alias) >= len(allocs) {
		return false
	}
	return m.p.statusOf(allocs[alias]).IsVirtual()
}

// materializeObject builds (or returns the cached) object-state node for
// obj, recursively materializing any field that is itself a virtual
// allocation. The node is cached in obj.ObjectState before recursion so a
// cycle of mutually-referencing objects terminates: a field pointing back to
// an object already being materialized finds it pre-cached.
func (m *Materializer) materializeObject(e NodeID, alias AliasID, obj *VirtualObject) (NodeID, bool) {
	if obj.ObjectState != graphir.NoNode {
		return obj.ObjectState, true
	}

	var fields []NodeID
	for _, f := range obj.Fields {
		if f == graphir.NoNode {
			continue
		}
		fields = append(fields, m.p.through(f))
	}

	op := m.p.ops.ObjectState(len(fields), int(alias))
	id := m.p.newNode(op, fields)
	obj.ObjectState = id

	for i, f := range fields {
		fieldAlias := m.p.aa.Alias(f)
		if !m.isVirtualAlias(fieldAlias) {
			continue
		}
		st := m.p.stateOf(e)
		if st == nil {
			continue
		}
		fieldObj := st.object(fieldAlias)
		if fieldObj == nil {
			continue
		}
		nested, ok := m.materializeObject(e, fieldAlias, fieldObj)
		if !ok || nested == id {
			continue
		}
		m.p.g.ReplaceValueInput(id, i, nested)
	}
	return id, true
}
