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

// runStatusAnalysis drives the escape status worklist of §4.5 to a fixed
// point, seeded with every allocation and region-finish node.
func (p *Pass) runStatusAnalysis() error {
	var stack []NodeID
	enqueue := func(n NodeID) {
		if n == graphir.NoNode {
			return
		}
		if p.statusOf(n)&statusOnQueue != 0 {
			return
		}
		p.setStatusBits(n, statusOnQueue)
		stack = append(stack, n)
	}

	for _, n := range p.aa.Allocations() {
		enqueue(n)
	}
	for _, n := range p.aa.FinishNodes() {
		enqueue(n)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		p.clearStatusBits(n, statusOnQueue)
		p.setStatusBits(n, statusVisited)
		if err := p.processStatusNode(n, enqueue); err != nil {
			return err
		}
	}
	return nil
}

// processStatusNode dispatches a single popped node id per §4.5's opcode
// table.
func (p *Pass) processStatusNode(n NodeID, enqueue func(NodeID)) error {
	switch p.g.Opcode(n) {
	case graphir.OpAllocate:
		first := p.statusOf(n)&statusTracked == 0
		p.setStatusBits(n, statusTracked)
		if first {
			// A newly-discovered allocation's consumers (stores, loads,
			// phis) must be checked for escape at least once, even before
			// anything has actually escaped.
			p.enqueueUses(n, enqueue)
			if _, _, isConst := p.g.AllocationSize(n); !isConst {
				p.markEscaped(n)
				return nil
			}
		}
		return p.scanUses(n, n, true, enqueue)

	case graphir.OpFinishRegion:
		first := p.statusOf(n)&statusTracked == 0
		p.setStatusBits(n, statusTracked)
		if first {
			p.enqueueUses(n, enqueue)
		}
		return p.scanUses(n, n, true, enqueue)

	case graphir.OpStoreField:
		return p.processStatusStore(n, 1, enqueue)
	case graphir.OpStoreElement:
		return p.processStatusStore(n, 2, enqueue)

	case graphir.OpLoadField, graphir.OpLoadElement:
		repl := p.through(n)
		if repl != n && p.aa.Alias(repl) >= 0 {
			// The load's own downstream uses can force its replacement
			// (the underlying allocation) to escape; phi-propagation is
			// off here since a phi consuming a load is not itself a
			// pointer merge over allocations.
			if err := p.scanUses(n, repl, false, enqueue); err != nil {
				return err
			}
		}
		return nil

	case graphir.OpPhi:
		return p.processStatusPhi(n, enqueue)

	default:
		return nil
	}
}

// processStatusStore implements the store-field/store-element row: a value
// stored into an escaped or non-allocation base escapes too.
func (p *Pass) processStatusStore(n NodeID, valueInputIndex int, enqueue func(NodeID)) error {
	base := p.through(p.g.ValueInput(n, 0))
	if p.statusOf(base).IsEscaped() || p.aa.Alias(base) < 0 {
		value := p.through(p.g.ValueInput(n, valueInputIndex))
		if value != graphir.NoNode && !p.statusOf(value).IsEscaped() {
			p.markEscaped(value)
			p.revisitInputsAndUses(value, enqueue)
		}
	}
	return nil
}

// processStatusPhi implements the phi row: a phi is tracked, and escapes
// unless every input is either an allocation or a non-escaped
// allocation-phi. A phi's own downstream uses are then scanned with
// phi-propagation disabled, since that only applies to values flowing
// directly into a further phi merge.
func (p *Pass) processStatusPhi(n NodeID, enqueue func(NodeID)) error {
	first := p.statusOf(n)&statusTracked == 0
	p.setStatusBits(n, statusTracked)
	if first {
		p.enqueueUses(n, enqueue)
	}

	arity := p.g.Operator(n).ValueInputCount()
	allAlloc := true
	for i := 0; i < arity; i++ {
		in := p.through(p.g.ValueInput(n, i))
		switch {
		case p.aa.Alias(in) >= 0:
			continue
		case p.g.Opcode(in) == graphir.OpPhi && !p.statusOf(in).IsEscaped():
			continue
		default:
			allAlloc = false
		}
		if !allAlloc {
			break
		}
	}
	if !allAlloc && !p.statusOf(n).IsEscaped() {
		p.markEscaped(n)
		p.revisitInputsAndUses(n, enqueue)
	}
	return p.scanUses(n, n, false, enqueue)
}

// enqueueUses pushes every consumer of n onto the status worklist. Called on
// an allocation/region-finish/phi's first visit so its stores/loads/phis are
// checked for escape at least once even before anything has escaped.
func (p *Pass) enqueueUses(n NodeID, enqueue func(NodeID)) {
	for _, u := range p.g.Uses(n) {
		enqueue(u.Source)
	}
}

// scanUses implements the use-scan rule table of §4.5: iterate usesNode's
// outgoing value uses and mark rep escaped per the per-opcode rule.
// usesNode and rep coincide for allocations/region-finishes/phis scanning
// their own uses; they differ when a load's replacement is an allocation and
// the load's own downstream uses are what could force it to escape.
// phiEscaping gates whether flowing into a further value-phi alone counts as
// escaping (enabled for allocations and region-finishes scanning their own
// uses; disabled for phis and loads).
func (p *Pass) scanUses(usesNode, rep NodeID, phiEscaping bool, enqueue func(NodeID)) error {
	changed := false
	for _, u := range p.g.Uses(usesNode) {
		if u.Kind != graphir.EdgeValue {
			continue
		}
		use := u.Source
		escalate := false
		switch p.g.Opcode(use) {
		case graphir.OpPhi:
			escalate = phiEscaping
		case graphir.OpStoreField, graphir.OpStoreElement, graphir.OpLoadField, graphir.OpLoadElement,
			graphir.OpFrameState, graphir.OpStateValues, graphir.OpReferenceEqual, graphir.OpFinishRegion:
			escalate = p.statusOf(use).IsEscaped()
		case graphir.OpObjectIsSmi:
			escalate = p.aa.Alias(rep) < 0
		case graphir.OpSelect:
			escalate = true
		default:
			useOp := p.g.Operator(use)
			usesOp := p.g.Operator(usesNode)
			if useOp.EffectInputCount() == 0 && usesOp.EffectOutputCount() > 0 {
				return ErrUnsupportedUse
			}
			escalate = true
		}
		if escalate && !p.statusOf(rep).IsEscaped() {
			p.markEscaped(rep)
			changed = true
		}
	}
	if changed {
		p.revisitInputsAndUses(rep, enqueue)
	}
	return nil
}

// revisitInputsAndUses re-enqueues n's value/effect inputs and its uses, per
// §4.5's "revisit inputs and uses" rule fired on any escape transition.
func (p *Pass) revisitInputsAndUses(n NodeID, enqueue func(NodeID)) {
	op := p.g.Operator(n)
	for i := 0; i < op.ValueInputCount(); i++ {
		enqueue(p.through(p.g.ValueInput(n, i)))
	}
	for i := 0; i < op.EffectInputCount(); i++ {
		enqueue(p.g.EffectInput(n, i))
	}
	for _, u := range p.g.Uses(n) {
		enqueue(u.Source)
	}
}
