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
	"github.com/aws/ar-go-escape/internal/collutil"
)

// pointerSizeBytes is the unit fields/elements are measured in; only
// pointer-sized, pointer-aligned accesses are ever tracked symbolically.
const pointerSizeBytes = 8

// nodeSet is a growable membership set over node ids, used by the object
// analysis worklist to dedupe pending entries.
type nodeSet struct{ bits []bool }

func (s *nodeSet) has(n NodeID) bool {
	return int(n) >= 0 && int(n) < len(s.bits) && s.bits[n]
}

func (s *nodeSet) add(n NodeID) {
	if int(n)+1 > len(s.bits) {
		s.bits = collutil.EnsureLen(s.bits, int(n)+1)
	}
	s.bits[n] = true
}

func (s *nodeSet) remove(n NodeID) {
	if int(n) >= 0 && int(n) < len(s.bits) {
		s.bits[n] = false
	}
}

// isDangling reports whether n consumes effect but produces none (a pure
// load in this IR): a dangling effect consumer, processed immediately by the
// worklist rather than re-queued.
func (p *Pass) isDangling(n NodeID) bool {
	s := p.statusOf(n)
	if s&statusDanglingComputed != 0 {
		return s&statusDangling != 0
	}
	op := p.g.Operator(n)
	dangling := op.EffectInputCount() > 0 && op.EffectOutputCount() == 0
	bits := statusDanglingComputed
	if dangling {
		bits |= statusDangling
	}
	p.setStatusBits(n, bits)
	return dangling
}

// isEffectBranchPoint reports whether n has more than one non-dangling
// effect user.
func (p *Pass) isEffectBranchPoint(n NodeID) bool {
	s := p.statusOf(n)
	if s&statusBranchPointComputed != 0 {
		return s&statusBranchPoint != 0
	}
	count := 0
	for _, u := range p.g.Uses(n) {
		if u.Kind != graphir.EdgeEffect {
			continue
		}
		if p.isDangling(u.Source) {
			continue
		}
		count++
		if count > 1 {
			break
		}
	}
	branch := count > 1
	bits := statusBranchPointComputed
	if branch {
		bits |= statusBranchPoint
	}
	p.setStatusBits(n, bits)
	return branch
}

func sameObjects(a, b []*VirtualObject) bool {
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

// forward propagates e's virtual state to n per §4.2's forwarding rule,
// returning whether n's state changed. n always receives its own shallow
// copy of e's state, so a later mutation at n never alters e's state or a
// sibling effect successor's state.
func (p *Pass) forward(e, n NodeID) bool {
	es := p.stateOf(e)
	if es == nil {
		return false
	}
	branch := p.isEffectBranchPoint(e)
	frameState := p.g.Operator(n).FrameStateInputCount() > 0

	prev := p.stateOf(n)
	firstTime := prev == nil
	ns := es.clone(n)
	if branch || frameState {
		ns.copyRequired = true
	}

	changed := firstTime
	if !firstTime {
		changed = !sameObjects(prev.Objects, ns.Objects) || prev.copyRequired != ns.copyRequired
	}
	p.setState(n, ns)
	return changed
}

// runObjectAnalysis drives the effect-edge worklist of §4.2 to a fixed
// point, seeded at the graph's start node.
func (p *Pass) runObjectAnalysis() error {
	var start NodeID = graphir.NoNode
	for _, n := range p.g.Nodes() {
		if p.g.Opcode(n) == graphir.OpStart {
			start = n
			break
		}
	}
	if start == graphir.NoNode {
		return nil
	}

	var stack, deferred []NodeID
	var onStack, onDeferred nodeSet
	push := func(n NodeID) {
		if onStack.has(n) || onDeferred.has(n) {
			return
		}
		if p.g.Opcode(n) == graphir.OpEffectPhi {
			deferred = append(deferred, n)
			onDeferred.add(n)
		} else {
			stack = append(stack, n)
			onStack.add(n)
		}
	}
	push(start)

	for len(stack) > 0 || len(deferred) > 0 {
		var n NodeID
		if len(stack) > 0 {
			n = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack.remove(n)
		} else {
			n = deferred[0]
			deferred = deferred[1:]
			onDeferred.remove(n)
		}

		changed, err := p.processObjectNode(n)
		if err != nil {
			return err
		}
		p.log.Tracef("object analysis: node %d (%s) changed=%v", n, p.g.Operator(n).Mnemonic(), changed)
		if !changed {
			continue
		}
		for _, u := range p.g.Uses(n) {
			if u.Kind != graphir.EdgeEffect {
				continue
			}
			use := u.Source
			if p.isDangling(use) {
				if opc := p.g.Opcode(use); opc != graphir.OpLoadField && opc != graphir.OpLoadElement {
					return ErrDanglingEffect
				}
				if _, err := p.processObjectNode(use); err != nil {
					return err
				}
				continue
			}
			push(use)
		}
	}
	return nil
}

// processObjectNode dispatches a single popped node per §4.2's opcode
// table, returning whether its computed state changed.
func (p *Pass) processObjectNode(n NodeID) (bool, error) {
	switch p.g.Opcode(n) {
	case graphir.OpStart:
		prev := p.stateOf(n)
		if prev != nil {
			return false, nil
		}
		p.setState(n, newVirtualState(n, p.aa.Count()))
		return true, nil

	case graphir.OpBeginRegion:
		e := p.g.EffectInput(n, 0)
		return p.forward(e, n), nil

	case graphir.OpAllocate:
		return p.processAllocate(n), nil

	case graphir.OpFinishRegion:
		return p.processFinishRegion(n), nil

	case graphir.OpStoreField:
		return p.processStoreField(n), nil

	case graphir.OpLoadField:
		p.processLoadField(n)
		return false, nil

	case graphir.OpStoreElement:
		return p.processStoreElement(n), nil

	case graphir.OpLoadElement:
		p.processLoadElement(n)
		return false, nil

	case graphir.OpEffectPhi:
		return p.mergeEffectPhi(n), nil

	default:
		return p.processOtherEffectful(n), nil
	}
}

func (p *Pass) processAllocate(n NodeID) bool {
	e := p.g.EffectInput(n, 0)
	changed := p.forward(e, n)

	st := p.stateOf(n)
	if st == nil {
		st = newVirtualState(n, p.aa.Count())
		p.setState(n, st)
		changed = true
	}
	if e != graphir.NoNode && p.g.Opcode(e) == graphir.OpEffectPhi && st.Owner != n {
		st = st.clone(n)
		p.setState(n, st)
	}

	alias := p.aa.Alias(n)
	if alias >= 0 && st.object(alias) == nil {
		fieldCount := 0
		if _, slots, isConst := p.g.AllocationSize(n); isConst {
			fieldCount = int(slots)
		}
		obj := newVirtualObject(n, fieldCount, st)
		st.setObject(alias, obj)
		changed = true
	}
	return changed
}

func (p *Pass) processFinishRegion(n NodeID) bool {
	e := p.g.EffectInput(n, 0)
	changed := p.forward(e, n)

	base := p.g.ValueInput(n, 0)
	alias := p.aa.Alias(base)
	st := p.stateOf(n)
	if st == nil || alias < 0 {
		return changed
	}
	obj := st.ownedObjectForModification(alias)
	if obj != nil && !obj.Initialized() {
		obj.setInitialized()
		changed = true
	}
	return changed
}

// fieldIndexFromOffset returns the field index for a pointer-aligned byte
// offset, or (0, false) if the offset is negative or not pointer-aligned.
func fieldIndexFromOffset(offset int) (int, bool) {
	if offset < 0 || offset%pointerSizeBytes != 0 {
		return 0, false
	}
	return offset / pointerSizeBytes, true
}

func (p *Pass) processStoreField(n NodeID) bool {
	e := p.g.EffectInput(n, 0)
	changed := p.forward(e, n)

	base := p.through(p.g.ValueInput(n, 0))
	value := p.through(p.g.ValueInput(n, 1))
	offset, _ := p.g.FieldAccess(n)

	idx, aligned := fieldIndexFromOffset(offset)
	if !aligned {
		return changed
	}
	alias := p.aa.Alias(base)
	st := p.stateOf(n)
	if alias < 0 || st == nil {
		return changed
	}
	obj := st.object(alias)
	if obj == nil || idx >= len(obj.Fields) {
		return changed
	}
	obj = st.ownedObjectForModification(alias)
	if obj.Fields[idx] != value || obj.PhiCreated[idx] {
		obj.Fields[idx] = value
		obj.PhiCreated[idx] = false
		changed = true
	}
	return changed
}

func (p *Pass) processLoadField(n NodeID) {
	base := p.through(p.g.ValueInput(n, 0))
	offset, _ := p.g.FieldAccess(n)
	idx, aligned := fieldIndexFromOffset(offset)
	if !aligned {
		p.clearReplacement(n)
		return
	}
	// Loads are dangling effect consumers (no effect output of their own),
	// so they never own a virtual state slot; read through their effect
	// input's state instead.
	st := p.stateOf(p.g.EffectInput(n, 0))
	if st == nil {
		p.clearReplacement(n)
		return
	}

	alias := p.aa.Alias(base)
	if alias >= 0 {
		if obj := st.object(alias); obj != nil && idx < len(obj.Fields) {
			v := obj.field(idx)
			if v == graphir.NoNode {
				p.clearReplacement(n)
				return
			}
			p.setReplacement(n, p.through(v))
			return
		}
	}
	if p.g.Opcode(base) == graphir.OpPhi {
		p.processLoadFromPhi(n, base, idx, st)
		return
	}
	p.clearReplacement(n)
}

func (p *Pass) processStoreElement(n NodeID) bool {
	e := p.g.EffectInput(n, 0)
	changed := p.forward(e, n)

	base := p.through(p.g.ValueInput(n, 0))
	value := p.through(p.g.ValueInput(n, 2))
	headerSize, _ := p.g.ElementAccess(n)
	_, constIdx, isConst := p.g.ElementIndex(n)

	alias := p.aa.Alias(base)
	st := p.stateOf(n)

	if !isConst {
		p.markEscaped(base)
		if alias >= 0 && st != nil {
			if obj := st.object(alias); obj != nil && obj.hasLiveField() {
				obj = st.ownedObjectForModification(alias)
				obj.clearFields()
				changed = true
			}
		}
		return changed
	}

	hdrIdx, aligned := fieldIndexFromOffset(headerSize)
	if !aligned || alias < 0 || st == nil {
		return changed
	}
	idx := int(constIdx) + hdrIdx
	obj := st.object(alias)
	if obj == nil || idx >= len(obj.Fields) {
		return changed
	}
	obj = st.ownedObjectForModification(alias)
	if obj.Fields[idx] != value || obj.PhiCreated[idx] {
		obj.Fields[idx] = value
		obj.PhiCreated[idx] = false
		changed = true
	}
	return changed
}

func (p *Pass) processLoadElement(n NodeID) {
	base := p.through(p.g.ValueInput(n, 0))
	headerSize, mtype := p.g.ElementAccess(n)
	_, constIdx, isConst := p.g.ElementIndex(n)

	if !isConst {
		p.markEscaped(base)
		p.clearReplacement(n)
		return
	}
	hdrIdx, aligned := fieldIndexFromOffset(headerSize)
	if !mtype.PointerSized() || !aligned {
		p.clearReplacement(n)
		return
	}
	idx := int(constIdx) + hdrIdx

	// Loads are dangling effect consumers; read through the effect input's
	// state rather than their own (never-assigned) state slot.
	st := p.stateOf(p.g.EffectInput(n, 0))
	if st == nil {
		p.clearReplacement(n)
		return
	}
	alias := p.aa.Alias(base)
	if alias < 0 {
		p.clearReplacement(n)
		return
	}
	obj := st.object(alias)
	if obj == nil || idx >= len(obj.Fields) {
		p.clearReplacement(n)
		return
	}
	v := obj.field(idx)
	if v == graphir.NoNode {
		p.clearReplacement(n)
		return
	}
	p.setReplacement(n, p.through(v))
}

// processOtherEffectful forwards state for any effectful node outside the
// dispatch table, then conservatively havocs every tracked virtual object
// reachable from its value inputs: an unmodeled consumer may have observed
// or mutated their fields.
func (p *Pass) processOtherEffectful(n NodeID) bool {
	op := p.g.Operator(n)
	changed := false
	if op.EffectInputCount() > 0 {
		e := p.g.EffectInput(n, 0)
		changed = p.forward(e, n)
	}
	st := p.stateOf(n)
	if st == nil {
		return changed
	}
	for i := 0; i < op.ValueInputCount(); i++ {
		in := p.through(p.g.ValueInput(n, i))
		alias := p.aa.Alias(in)
		if alias < 0 {
			continue
		}
		obj := st.object(alias)
		if obj == nil || !obj.hasLiveField() {
			continue
		}
		obj = st.ownedObjectForModification(alias)
		obj.clearFields()
		changed = true
	}
	return changed
}

// markEscaped sets the escaped bit for n. Object analysis calls it for
// non-constant-index element accesses (per §4.2's havoc rule); status
// analysis calls it on every escape transition it finds. If n is
// part of a tracked alias, the bit is set on both the allocation and its
// region-finish, since either may be the node later queried via Result.
func (p *Pass) markEscaped(n NodeID) {
	if n == graphir.NoNode {
		return
	}
	if !p.statusOf(n).IsEscaped() {
		p.traceEscape(n)
	}
	p.setStatusBits(n, statusEscaped)
	p.markAliasEscaped(p.aa.Alias(n))
}

// markAliasEscaped sets the escaped bit on both the allocation and the
// region-finish node (if any) of the given alias.
func (p *Pass) markAliasEscaped(alias AliasID) {
	if alias < 0 {
		return
	}
	allocs := p.aa.Allocations()
	if int(alias) < len(allocs) {
		p.setStatusBits(allocs[alias], statusEscaped)
	}
	if fn := p.aa.FinishNode(alias); fn != graphir.NoNode {
		p.setStatusBits(fn, statusEscaped)
	}
}
