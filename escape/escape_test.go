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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aws/ar-go-escape/escape/config"
	"github.com/aws/ar-go-escape/graphir"
	"github.com/aws/ar-go-escape/internal/nodetext"
)

func mustParse(t *testing.T, src string) *nodetext.Graph {
	t.Helper()
	g, err := nodetext.Parse(src)
	if err != nil {
		t.Fatalf("nodetext.Parse: %v", err)
	}
	return g
}

func mustRun(t *testing.T, g *nodetext.Graph) *Result {
	t.Helper()
	res, err := Run(g.IR, g.IR, config.Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// Scenario 1: scalar replacement of a single field.
func TestScalarReplacementOfSingleField(t *testing.T) {
	g := mustParse(t, `
		s   := start
		sz  := const 16
		a   := alloc sz s
		r   := finish a a
		v   := const 42
		st  := storefield r v 0 r
		x   := loadfield r 0 st
		e   := end x
	`)
	res := mustRun(t, g)

	rep, ok := res.Replacement(g.Names["x"])
	if !ok {
		t.Fatalf("load has no replacement")
	}
	if rep != g.Names["v"] {
		t.Errorf("replacement(x) = %d, want v (%d)", rep, g.Names["v"])
	}
	if !res.IsVirtual(g.Names["a"]) {
		t.Errorf("is_virtual(a) = false, want true")
	}
}

// Scenario 2: a store into an unknown (non-allocation) base escapes both the
// stored pointer and its underlying allocation.
func TestEscapeViaNonAllocationStoreBase(t *testing.T) {
	g := mustParse(t, `
		s    := start
		sz   := const 16
		a    := alloc sz s
		r    := finish a a
		p    := const 99
		st1  := storefield r p 0 r
		prm  := param
		st2  := storefield prm r 0 st1
		e    := end st2
	`)
	res := mustRun(t, g)

	if !res.IsEscaped(g.Names["r"]) {
		t.Errorf("is_escaped(r) = false, want true")
	}
	if !res.IsEscaped(g.Names["a"]) {
		t.Errorf("is_escaped(a) = false, want true")
	}
}

// Scenario 3: a load whose base is a value-phi over two allocations
// synthesizes a new value-phi over their per-predecessor field values.
func TestLoadFromPhiSynthesizesNewPhi(t *testing.T) {
	g := mustParse(t, `
		s   := start
		sz  := const 16
		a1  := alloc sz s
		r1  := finish a1 a1
		v1  := const 10
		st1 := storefield r1 v1 0 r1
		a2  := alloc sz st1
		r2  := finish a2 a2
		v2  := const 20
		st2 := storefield r2 v2 0 r2
		p   := phi s r1 r2
		x   := loadfield p 0 st2
		e   := end x
	`)
	res := mustRun(t, g)

	rep, ok := res.Replacement(g.Names["x"])
	if !ok {
		t.Fatalf("load has no replacement")
	}
	if rep == g.Names["v1"] || rep == g.Names["v2"] {
		t.Fatalf("replacement(x) = %d resolved to an input directly, want a synthesized phi", rep)
	}
	if got := g.IR.Opcode(rep); got != graphir.OpPhi {
		t.Fatalf("replacement(x) has opcode %v, want OpPhi", got)
	}
	if g.IR.Operator(rep).ValueInputCount() != 2 {
		t.Fatalf("synthesized phi has %d value inputs, want 2", g.IR.Operator(rep).ValueInputCount())
	}
	gotInputs := []graphir.NodeID{g.IR.ValueInput(rep, 0), g.IR.ValueInput(rep, 1)}
	wantInputs := []graphir.NodeID{g.Names["v1"], g.Names["v2"]}
	if diff := cmp.Diff(wantInputs, gotInputs); diff != "" {
		t.Errorf("synthesized phi inputs mismatch (-want +got):\n%s", diff)
	}
	if got, want := g.IR.ControlInput(rep), g.IR.ControlInput(g.Names["p"]); got != want {
		t.Errorf("synthesized phi control input = %d, want %d (p's control)", got, want)
	}
}

// Scenario 4: an effect-phi's merged field-phi is rewired in place, not
// recreated, when a fixed-point re-processing changes one predecessor's
// field value.
func TestEffectPhiFieldPhiReusedAcrossReprocessing(t *testing.T) {
	g := mustParse(t, `
		s    := start
		sz   := const 16
		a    := alloc sz s
		r    := finish a a
		v1   := const 10
		v2   := const 20
		st1  := storefield r v1 0 r
		st2  := storefield r v2 0 r
		ephi := effectphi s st1 st2
		e    := end ephi
	`)

	aa := NewAliasAssignment(g.IR, g.IR.NodeCount())
	if err := aa.Run(); err != nil {
		t.Fatalf("alias assignment: %v", err)
	}
	p := &Pass{g: g.IR, ops: g.IR, log: config.NewLogGroup(&config.Config{}), aa: aa}
	p.growTo(g.IR.NodeCount())
	if err := p.runObjectAnalysis(); err != nil {
		t.Fatalf("object analysis: %v", err)
	}

	alias := aa.Alias(g.Names["r"])
	if alias < 0 {
		t.Fatalf("r has no alias")
	}
	obj := p.stateOf(g.Names["ephi"]).object(alias)
	if obj == nil {
		t.Fatalf("no merged object for alias %d at ephi", alias)
	}
	if !obj.PhiCreated[0] {
		t.Fatalf("field 0 was not phi-created by the merge")
	}
	firstPhi := obj.Fields[0]
	if g.IR.ValueInput(firstPhi, 0) != g.Names["v1"] {
		t.Fatalf("merged phi's first input = %d, want v1 (%d)", g.IR.ValueInput(firstPhi, 0), g.Names["v1"])
	}

	// Simulate a fixed-point re-processing in which st1's stored value
	// changes from v1 to v1', then re-run the merge.
	v1prime := g.IR.AddConstant(11)
	p.growTo(g.IR.NodeCount())
	g.IR.ReplaceValueInput(g.Names["st1"], 1, v1prime)
	p.processStoreField(g.Names["st1"])
	p.mergeEffectPhi(g.Names["ephi"])

	obj2 := p.stateOf(g.Names["ephi"]).object(alias)
	if obj2.Fields[0] != firstPhi {
		t.Errorf("merge created a new phi (%d) instead of reusing %d", obj2.Fields[0], firstPhi)
	}
	if got := g.IR.ValueInput(firstPhi, 0); got != v1prime {
		t.Errorf("existing phi's first input = %d, want v1' (%d)", got, v1prime)
	}
}

// Scenario 5: a store-element with a non-constant index escapes the base and
// clears its tracked fields; a load at a formerly-live offset finds nothing.
func TestNonConstantElementStoreHavocsFields(t *testing.T) {
	g := mustParse(t, `
		s    := start
		sz   := const 128
		a    := alloc sz s
		r    := finish a a
		idx2 := const 2
		w    := const 7
		st1  := storeelem r idx2 w 0 r
		nci  := param
		w2   := const 9
		st2  := storeelem r nci w2 0 st1
		ld   := loadelem r idx2 0 st2
		e    := end ld
	`)
	res := mustRun(t, g)

	if !res.IsEscaped(g.Names["a"]) {
		t.Errorf("is_escaped(a) = false, want true")
	}
	if _, ok := res.Replacement(g.Names["ld"]); ok {
		t.Errorf("load after havoc has a replacement, want none")
	}
}

// A load-element with a non-constant index likewise escapes the base and
// never produces a replacement, without needing a prior store.
func TestNonConstantElementLoadEscapesBase(t *testing.T) {
	g := mustParse(t, `
		s    := start
		sz   := const 128
		a    := alloc sz s
		r    := finish a a
		idx2 := const 2
		w    := const 7
		st1  := storeelem r idx2 w 0 r
		nci  := param
		ld   := loadelem r nci 0 st1
		e    := end ld
	`)
	res := mustRun(t, g)

	if !res.IsEscaped(g.Names["a"]) {
		t.Errorf("is_escaped(a) = false, want true")
	}
	if _, ok := res.Replacement(g.Names["ld"]); ok {
		t.Errorf("non-constant-index load has a replacement, want none")
	}
}

// Scenario 6: two allocations that reference each other materialize as two
// object-state nodes, each pointing at the other exactly once, without
// infinite recursion.
func TestObjectStateMaterializationWithBackReference(t *testing.T) {
	g := mustParse(t, `
		s   := start
		sza := const 8
		a   := alloc sza s
		ra  := finish a a
		szb := const 8
		b   := alloc szb ra
		rb  := finish b b
		sta := storefield ra rb 0 rb
		stb := storefield rb ra 0 sta
		e   := end stb
	`)
	res := mustRun(t, g)

	if !res.IsVirtual(g.Names["a"]) || !res.IsVirtual(g.Names["b"]) {
		t.Fatalf("a and b must remain virtual for materialization: is_virtual(a)=%v is_virtual(b)=%v",
			res.IsVirtual(g.Names["a"]), res.IsVirtual(g.Names["b"]))
	}

	stateA, ok := res.GetOrCreateObjectState(g.Names["stb"], g.Names["ra"])
	if !ok {
		t.Fatalf("no object-state produced for a")
	}
	stateB, ok := res.GetOrCreateObjectState(g.Names["stb"], g.Names["rb"])
	if !ok {
		t.Fatalf("no object-state produced for b")
	}
	if stateA == stateB {
		t.Fatalf("a and b materialized to the same object-state node")
	}
	if got := g.IR.ValueInput(stateA, 0); got != stateB {
		t.Errorf("a's object-state references %d, want b's object-state %d", got, stateB)
	}
	if got := g.IR.ValueInput(stateB, 0); got != stateA {
		t.Errorf("b's object-state references %d, want a's object-state %d", got, stateA)
	}

	// Requesting again must return the cached nodes, not build new ones.
	again, ok := res.GetOrCreateObjectState(g.Names["stb"], g.Names["ra"])
	if !ok || again != stateA {
		t.Errorf("second request for a's object-state = (%d, %v), want (%d, true)", again, ok, stateA)
	}
}

// Field-count floor: merging two predecessor objects for the same alias with
// unequal field counts (as happens when one predecessor already went through
// a prior, narrower merge) yields a merged object whose field count is the
// minimum of the two, per §4.4.
func TestFieldCountFloorAtMerge(t *testing.T) {
	g := mustParse(t, `
		s    := start
		sz   := const 32
		a    := alloc sz s
		r    := finish a a
		o1   := opaque r
		o2   := opaque r
		ephi := effectphi s o1 o2
		e    := end ephi
	`)

	aa := NewAliasAssignment(g.IR, g.IR.NodeCount())
	if err := aa.Run(); err != nil {
		t.Fatalf("alias assignment: %v", err)
	}
	alias := aa.Alias(g.Names["a"])
	if alias < 0 {
		t.Fatalf("a has no alias")
	}

	p := &Pass{g: g.IR, ops: g.IR, log: config.NewLogGroup(&config.Config{}), aa: aa}
	p.growTo(g.IR.NodeCount())

	state1 := newVirtualState(g.Names["o1"], aa.Count())
	obj1 := newVirtualObject(g.Names["a"], 4, state1)
	obj1.setInitialized()
	state1.setObject(alias, obj1)
	p.setState(g.Names["o1"], state1)

	state2 := newVirtualState(g.Names["o2"], aa.Count())
	obj2 := newVirtualObject(g.Names["a"], 2, state2)
	obj2.setInitialized()
	state2.setObject(alias, obj2)
	p.setState(g.Names["o2"], state2)

	p.mergeEffectPhi(g.Names["ephi"])

	obj := p.stateOf(g.Names["ephi"]).object(alias)
	if obj == nil {
		t.Fatalf("no merged object at alias %d", alias)
	}
	if got, want := len(obj.Fields), 2; got != want {
		t.Errorf("merged field count = %d, want min(4,2) = %d", got, want)
	}
}

// Replacement acyclicity: resolving a load's replacement always terminates,
// and a well-formed pass never reports a cycle.
func TestReplacementAcyclicity(t *testing.T) {
	g := mustParse(t, `
		s   := start
		sz  := const 16
		a   := alloc sz s
		r   := finish a a
		v   := const 42
		st  := storefield r v 0 r
		x   := loadfield r 0 st
		e   := end x
	`)
	res := mustRun(t, g)

	if cycles := res.ReplacementCycles(); len(cycles) != 0 {
		t.Errorf("ReplacementCycles() = %v, want none", cycles)
	}
	if rep, ok := res.Replacement(g.Names["x"]); !ok || rep != g.Names["v"] {
		t.Fatalf("Replacement(x) = (%d, %v), want (v, true)", rep, ok)
	}

	// A pathological self-referential replacement table must still resolve
	// to "no replacement" rather than hang.
	res.p.setReplacement(g.Names["v"], g.Names["v"])
	if _, ok := res.Replacement(g.Names["v"]); ok {
		t.Errorf("Replacement(v) resolved a self-cycle instead of bailing out")
	}
}
