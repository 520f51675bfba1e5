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

// Package nodetext implements a tiny textual description language for
// sea-of-nodes graphir.IRGraph literals, used by the escape-analysis test
// suite and the escapeanalyze CLI harness in place of hand-building nodes
// imperatively for every scenario. It is deliberately not a general-purpose
// IR assembler: one statement per node, referencing earlier names.
//
// Grammar, one statement per non-blank, non-comment line:
//
//	name := start
//	name := end value
//	name := const N
//	name := param
//	name := alloc size eff
//	name := finish alloc eff
//	name := storefield base val offset eff
//	name := loadfield base offset eff
//	name := storeelem base index val header eff
//	name := loadelem base index header eff
//	name := effectphi ctrl pred...
//	name := phi ctrl pred...
//	name := opaque eff val...
//	name := dangling eff val...
//	name := use kind val...
//
// "#" starts a line comment. Blank lines are ignored.
package nodetext

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/ar-go-escape/graphir"
)

// Graph is a parsed nodetext program: the underlying IRGraph plus the name
// each node was bound to, for readable diagnostics and pretty-printing.
type Graph struct {
	IR    *graphir.IRGraph
	Names map[string]graphir.NodeID
	Order []string
}

// Parse reads a nodetext program and returns the graph it describes.
func Parse(src string) (*Graph, error) {
	g := &Graph{IR: graphir.NewIRGraph(), Names: map[string]graphir.NodeID{}}
	for lineNo, raw := range strings.Split(src, "\n") {
		line := raw
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := g.parseLine(line); err != nil {
			return nil, fmt.Errorf("nodetext:%d: %w", lineNo+1, err)
		}
	}
	return g, nil
}

func (g *Graph) parseLine(line string) error {
	name, rest, ok := strings.Cut(line, ":=")
	if !ok {
		return fmt.Errorf("expected 'name := op args...', got %q", line)
	}
	name = strings.TrimSpace(name)
	fields := strings.Fields(strings.TrimSpace(rest))
	if len(fields) == 0 {
		return fmt.Errorf("missing opcode for %q", name)
	}
	opName, args := fields[0], fields[1:]

	id, err := g.build(opName, args)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	g.Names[name] = id
	g.Order = append(g.Order, name)
	return nil
}

func (g *Graph) resolve(name string) (graphir.NodeID, error) {
	if name == "-" {
		return graphir.NoNode, nil
	}
	id, ok := g.Names[name]
	if !ok {
		return graphir.NoNode, fmt.Errorf("undefined name %q", name)
	}
	return id, nil
}

func (g *Graph) resolveAll(names []string) ([]graphir.NodeID, error) {
	ids := make([]graphir.NodeID, len(names))
	for i, n := range names {
		id, err := g.resolve(n)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func (g *Graph) build(opName string, args []string) (graphir.NodeID, error) {
	switch opName {
	case "start":
		id := g.IR.AddStart()
		g.IR.SetEnd(id)
		return id, nil

	case "end":
		if len(args) != 1 {
			return graphir.NoNode, fmt.Errorf("end wants 1 arg, got %d", len(args))
		}
		val, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		id := g.IR.AddValueUse(graphir.OpEnd, val)
		g.IR.SetEnd(id)
		return id, nil

	case "const":
		if len(args) != 1 {
			return graphir.NoNode, fmt.Errorf("const wants 1 arg, got %d", len(args))
		}
		v, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddConstant(v), nil

	case "param":
		return g.IR.AddNonConstant("Param"), nil

	case "alloc":
		if len(args) != 2 {
			return graphir.NoNode, fmt.Errorf("alloc wants size,eff, got %d args", len(args))
		}
		size, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddAllocate(eff, size), nil

	case "finish":
		if len(args) != 2 {
			return graphir.NoNode, fmt.Errorf("finish wants alloc,eff, got %d args", len(args))
		}
		alloc, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddFinishRegion(eff, alloc), nil

	case "storefield":
		if len(args) != 4 {
			return graphir.NoNode, fmt.Errorf("storefield wants base,val,offset,eff, got %d args", len(args))
		}
		base, val, err := g.resolvePair(args[0], args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		offset, err := strconv.Atoi(args[2])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[3])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddStoreField(eff, base, val, offset, graphir.MachineTagged), nil

	case "loadfield":
		if len(args) != 3 {
			return graphir.NoNode, fmt.Errorf("loadfield wants base,offset,eff, got %d args", len(args))
		}
		base, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		offset, err := strconv.Atoi(args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[2])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddLoadField(eff, base, offset, graphir.MachineTagged), nil

	case "storeelem":
		if len(args) != 5 {
			return graphir.NoNode, fmt.Errorf("storeelem wants base,index,val,header,eff, got %d args", len(args))
		}
		base, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		index, err := g.resolve(args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		val, err := g.resolve(args[2])
		if err != nil {
			return graphir.NoNode, err
		}
		header, err := strconv.Atoi(args[3])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[4])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddStoreElement(eff, base, index, val, header, graphir.MachineTagged), nil

	case "loadelem":
		if len(args) != 4 {
			return graphir.NoNode, fmt.Errorf("loadelem wants base,index,header,eff, got %d args", len(args))
		}
		base, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		index, err := g.resolve(args[1])
		if err != nil {
			return graphir.NoNode, err
		}
		header, err := strconv.Atoi(args[2])
		if err != nil {
			return graphir.NoNode, err
		}
		eff, err := g.resolve(args[3])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddLoadElement(eff, base, index, header, graphir.MachineTagged), nil

	case "effectphi":
		if len(args) < 2 {
			return graphir.NoNode, fmt.Errorf("effectphi wants ctrl,pred..., got %d args", len(args))
		}
		ctrl, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		preds, err := g.resolveAll(args[1:])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddEffectPhi(ctrl, preds...), nil

	case "phi":
		if len(args) < 2 {
			return graphir.NoNode, fmt.Errorf("phi wants ctrl,pred..., got %d args", len(args))
		}
		ctrl, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		preds, err := g.resolveAll(args[1:])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddPhi(ctrl, graphir.MachineTagged, preds...), nil

	case "opaque":
		if len(args) < 1 {
			return graphir.NoNode, fmt.Errorf("opaque wants eff,val..., got %d args", len(args))
		}
		eff, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		vals, err := g.resolveAll(args[1:])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddOpaqueEffectUse(eff, vals...), nil

	case "dangling":
		if len(args) < 1 {
			return graphir.NoNode, fmt.Errorf("dangling wants eff,val..., got %d args", len(args))
		}
		eff, err := g.resolve(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		vals, err := g.resolveAll(args[1:])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddDanglingUse(eff, vals...), nil

	case "use":
		if len(args) < 1 {
			return graphir.NoNode, fmt.Errorf("use wants kind,val..., got %d args", len(args))
		}
		opc, err := parseOpcode(args[0])
		if err != nil {
			return graphir.NoNode, err
		}
		vals, err := g.resolveAll(args[1:])
		if err != nil {
			return graphir.NoNode, err
		}
		return g.IR.AddValueUse(opc, vals...), nil

	default:
		return graphir.NoNode, fmt.Errorf("unknown opcode %q", opName)
	}
}

func (g *Graph) resolvePair(a, b string) (graphir.NodeID, graphir.NodeID, error) {
	x, err := g.resolve(a)
	if err != nil {
		return graphir.NoNode, graphir.NoNode, err
	}
	y, err := g.resolve(b)
	if err != nil {
		return graphir.NoNode, graphir.NoNode, err
	}
	return x, y, nil
}

func parseOpcode(s string) (graphir.Opcode, error) {
	switch strings.ToLower(s) {
	case "phi":
		return graphir.OpPhi, nil
	case "select":
		return graphir.OpSelect, nil
	case "framestate":
		return graphir.OpFrameState, nil
	case "statevalues":
		return graphir.OpStateValues, nil
	case "referenceequal":
		return graphir.OpReferenceEqual, nil
	case "objectissmi":
		return graphir.OpObjectIsSmi, nil
	case "other":
		return graphir.OpOther, nil
	default:
		return graphir.OpOther, fmt.Errorf("unknown use kind %q", s)
	}
}

// String renders the graph as one line per node, in creation order, with
// each node's bound name where one exists.
func (g *Graph) String() string {
	byID := make(map[graphir.NodeID]string, len(g.Names))
	for name, id := range g.Names {
		byID[id] = name
	}
	var b strings.Builder
	for _, id := range g.IR.Nodes() {
		name := byID[id]
		if name == "" {
			name = fmt.Sprintf("n%d", id)
		}
		fmt.Fprintf(&b, "%s = %s\n", name, g.IR.Operator(id).Mnemonic())
	}
	return b.String()
}
