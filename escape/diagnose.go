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
	"github.com/aws/ar-go-escape/internal/funcutil"
)

// ReplacementCycles reports every elementary cycle of two or more nodes in
// the raw (unresolved) replacement table, as a diagnostic that the
// replacement-acyclicity property (spec §8) holds. A node replaced by itself
// is not reported; resolveReplacement treats that case as no replacement. A
// well-formed pass never produces a cycle; this exists to make that assertion
// checkable in tests and in the escapeanalyze harness's output rather than
// trusting resolveReplacement's bound alone.
func (r *Result) ReplacementCycles() [][]NodeID {
	p := r.p
	var ids []NodeID
	for n, v := range p.replacements {
		if v == graphir.NoNode {
			continue
		}
		ids = append(ids, NodeID(n))
	}
	return findElementaryCycles(ids, func(n NodeID) []NodeID {
		if int(n) >= len(p.replacements) {
			return nil
		}
		v := p.replacements[n]
		if v == graphir.NoNode {
			return nil
		}
		return []NodeID{v}
	})
}

// EscapedNodes returns every node id currently marked escaped, in ascending
// order, for deterministic trace output.
func (r *Result) EscapedNodes() []NodeID {
	p := r.p
	set := make(map[NodeID]bool, len(p.status))
	for n, s := range p.status {
		if s.IsEscaped() {
			set[NodeID(n)] = true
		}
	}
	return funcutil.SetToOrderedSlice(set)
}

// traceEscape logs an escape transition through the pass's optional trace
// sink (spec §6's {trace: bool} configuration option).
func (p *Pass) traceEscape(n NodeID) {
	p.log.Tracef("escape: node %d marked escaped", n)
}
