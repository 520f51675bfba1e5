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

// mergeCache holds scratch vectors reused across effect-phi merges to avoid
// a fresh allocation per alias/field.
type mergeCache struct {
	objs   []*VirtualObject
	fields []NodeID
}

func (mc *mergeCache) reset() {
	mc.objs = mc.objs[:0]
	mc.fields = mc.fields[:0]
}

func allEqual(ns []NodeID) bool {
	for i := 1; i < len(ns); i++ {
		if ns[i] != ns[0] {
			return false
		}
	}
	return true
}

func anyMissing(ns []NodeID) bool {
	for _, n := range ns {
		if n == graphir.NoNode {
			return true
		}
	}
	return false
}

// mergeEffectPhi implements the effect-phi merge of §4.4: it gathers the
// predecessor virtual states already computed and produces (or updates in
// place) n's merged virtual state. It returns true iff some field, object
// presence, or phi rewiring changed; the object-analysis worklist uses that
// bit to decide whether to propagate to n's effect uses.
func (p *Pass) mergeEffectPhi(n NodeID) bool {
	op := p.g.Operator(n)
	k := op.EffectInputCount()
	if k == 0 {
		return false
	}
	preds := make([]*VirtualState, k)
	anyComputed := false
	for i := 0; i < k; i++ {
		pred := p.g.EffectInput(n, i)
		preds[i] = p.stateOf(pred)
		if preds[i] != nil {
			anyComputed = true
		}
	}
	if !anyComputed {
		return false
	}

	aliasCount := p.aa.Count()
	merged := p.stateOf(n)
	if merged == nil || merged.Owner != n {
		merged = newVirtualState(n, aliasCount)
		p.setState(n, merged)
	}
	merged.ensureLen(aliasCount)

	changed := false
	ctrl := p.g.ControlInput(n)

	for a := 0; a < aliasCount; a++ {
		alias := AliasID(a)
		p.mc.reset()
		allPresent := true
		for _, ps := range preds {
			if ps == nil {
				allPresent = false
				break
			}
			o := ps.object(alias)
			if o == nil {
				allPresent = false
				break
			}
			p.mc.objs = append(p.mc.objs, o)
		}
		if !allPresent {
			if merged.object(alias) != nil {
				merged.setObject(alias, nil)
				changed = true
			}
			continue
		}

		minFields := len(p.mc.objs[0].Fields)
		initAgree := true
		initVal := p.mc.objs[0].Initialized()
		for _, o := range p.mc.objs[1:] {
			if len(o.Fields) < minFields {
				minFields = len(o.Fields)
			}
			if o.Initialized() != initVal {
				initAgree = false
			}
		}
		if !initAgree {
			initVal = false
		}

		existing := merged.object(alias)
		var mo *VirtualObject
		if existing != nil {
			mo = existing
			if len(mo.Fields) != minFields {
				mo.Fields = resize(mo.Fields, minFields, graphir.NoNode)
				mo.PhiCreated = resize(mo.PhiCreated, minFields, false)
				changed = true
			}
		} else {
			mo = newVirtualObject(p.mc.objs[0].AllocID, minFields, merged)
			merged.setObject(alias, mo)
			changed = true
		}
		if mo.Initialized() != initVal {
			mo.setInitializedTo(initVal)
			changed = true
		}

		for f := 0; f < minFields; f++ {
			p.mc.fields = p.mc.fields[:0]
			for _, o := range p.mc.objs {
				p.mc.fields = append(p.mc.fields, o.field(f))
			}
			if anyMissing(p.mc.fields) {
				if mo.Fields[f] != graphir.NoNode || mo.PhiCreated[f] {
					mo.Fields[f] = graphir.NoNode
					mo.PhiCreated[f] = false
					changed = true
				}
				continue
			}
			if allEqual(p.mc.fields) {
				if mo.Fields[f] != p.mc.fields[0] {
					mo.Fields[f] = p.mc.fields[0]
					mo.PhiCreated[f] = false
					changed = true
				}
				continue
			}
			if mo.PhiCreated[f] && mo.Fields[f] != graphir.NoNode {
				rewired := false
				for i, v := range p.mc.fields {
					if p.g.ValueInput(mo.Fields[f], i) != v {
						p.g.ReplaceValueInput(mo.Fields[f], i, v)
						rewired = true
					}
				}
				if rewired {
					changed = true
				}
				continue
			}
			phiOp := p.ops.Phi(graphir.MachineTagged, len(p.mc.fields))
			inputs := append(append([]NodeID{}, p.mc.fields...), ctrl)
			id := p.newNode(phiOp, inputs)
			mo.Fields[f] = id
			mo.PhiCreated[f] = true
			changed = true
		}
	}

	return changed
}

func resize[T any](s []T, n int, zero T) []T {
	if n <= len(s) {
		return s[:n]
	}
	grown := make([]T, n)
	copy(grown, s)
	for i := len(s); i < n; i++ {
		grown[i] = zero
	}
	return grown
}
