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
	"github.com/aws/ar-go-escape/escape/config"
	"github.com/aws/ar-go-escape/graphir"
	"github.com/aws/ar-go-escape/internal/collutil"
)

// Pass holds all arena state shared by the object analysis and the escape
// status analysis across one run: the graph, the alias assignment, and the
// growable per-node tables.
type Pass struct {
	g   graphir.Graph
	ops graphir.OperatorFactory
	log *config.LogGroup
	cfg config.Config

	aa *AliasAssignment

	status       []EscapeStatus
	replacements []NodeID
	states       []*VirtualState

	mc mergeCache
}

// Result is the public, read-only view of a completed Pass.
type Result struct {
	p *Pass
}

// Replacement returns the node that n's result should be replaced with, if
// any.
func (r *Result) Replacement(n NodeID) (NodeID, bool) {
	v := r.p.resolveReplacement(n)
	if v == graphir.NoNode {
		return graphir.NoNode, false
	}
	return v, true
}

// IsVirtual reports whether n is a tracked, non-escaped allocation or
// region-finish.
func (r *Result) IsVirtual(n NodeID) bool {
	return r.p.statusOf(n).IsVirtual()
}

// IsEscaped reports whether n has been marked escaped.
func (r *Result) IsEscaped(n NodeID) bool {
	return r.p.statusOf(n).IsEscaped()
}

// GetOrCreateObjectState materializes (or returns the cached) object-state
// node for the virtual object reachable from effect node e under candidate
// node n.
func (r *Result) GetOrCreateObjectState(e, n NodeID) (NodeID, bool) {
	return (&Materializer{p: r.p}).materialize(e, n)
}

// Run executes the full escape analysis pass over g: alias assignment,
// object analysis to a fixed point, and escape status analysis to a fixed
// point. cfg controls trace logging.
func Run(g graphir.Graph, ops graphir.OperatorFactory, cfg config.Config) (*Result, error) {
	aa := NewAliasAssignment(g, g.NodeCount())
	if err := aa.Run(); err != nil {
		return nil, err
	}

	p := &Pass{
		g:   g,
		ops: ops,
		log: config.NewLogGroup(&cfg),
		cfg: cfg,
		aa:  aa,
	}
	p.growTo(g.NodeCount())

	if err := p.runObjectAnalysis(); err != nil {
		return nil, err
	}
	if err := p.runStatusAnalysis(); err != nil {
		return nil, err
	}
	return &Result{p: p}, nil
}

func (p *Pass) growTo(n int) {
	oldLen := len(p.replacements)
	p.status = collutil.EnsureLen(p.status, n)
	p.replacements = collutil.EnsureLen(p.replacements, n)
	p.states = collutil.EnsureLen(p.states, n)
	for i := oldLen; i < len(p.replacements); i++ {
		p.replacements[i] = graphir.NoNode
	}
	p.aa.growTo(n)
}

// newNode creates a node via the graph and grows every node-indexed table to
// cover it, returning its id.
func (p *Pass) newNode(op graphir.Operator, inputs []NodeID) NodeID {
	id := p.g.NewNode(op, inputs)
	if int(id)+1 > len(p.status) {
		p.growTo(int(id) + 1)
	}
	return id
}

func (p *Pass) statusOf(n NodeID) EscapeStatus {
	if int(n) < 0 || int(n) >= len(p.status) {
		return 0
	}
	return p.status[n]
}

func (p *Pass) setStatusBits(n NodeID, bits EscapeStatus) {
	if int(n)+1 > len(p.status) {
		p.growTo(int(n) + 1)
	}
	p.status[n] |= bits
}

func (p *Pass) clearStatusBits(n NodeID, bits EscapeStatus) {
	if int(n)+1 > len(p.status) {
		p.growTo(int(n) + 1)
	}
	p.status[n] &^= bits
}

// resolveReplacement follows the replacement chain from n, bounded by the
// table length so a (hypothetically corrupt) cycle cannot hang the caller.
func (p *Pass) resolveReplacement(n NodeID) NodeID {
	cur := n
	seen := 0
	bound := len(p.replacements) + 1
	for int(cur) >= 0 && int(cur) < len(p.replacements) && p.replacements[cur] != graphir.NoNode {
		cur = p.replacements[cur]
		seen++
		if seen > bound {
			return graphir.NoNode
		}
	}
	if cur == n {
		return graphir.NoNode
	}
	return cur
}

func (p *Pass) setReplacement(n, v NodeID) {
	if int(n)+1 > len(p.replacements) {
		p.growTo(int(n) + 1)
	}
	p.replacements[n] = v
}

func (p *Pass) clearReplacement(n NodeID) {
	p.setReplacement(n, graphir.NoNode)
}

func (p *Pass) stateOf(n NodeID) *VirtualState {
	if int(n) < 0 || int(n) >= len(p.states) {
		return nil
	}
	return p.states[n]
}

func (p *Pass) setState(n NodeID, s *VirtualState) {
	if int(n)+1 > len(p.states) {
		p.growTo(int(n) + 1)
	}
	p.states[n] = s
}
