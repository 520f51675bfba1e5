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

package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/aws/ar-go-escape/escape"
	"github.com/aws/ar-go-escape/graphir"
	"github.com/aws/ar-go-escape/internal/nodetext"
)

// writeDot renders g's nodes and edges as Graphviz DOT, colored by the
// pass's escape status, to path (as a PNG). This is purely a debugging aid
// modeled on the teacher's EscapeGraph.Graphviz() method; nothing in
// package escape depends on it.
func writeDot(g *nodetext.Graph, result *escape.Result, path string) error {
	var b strings.Builder
	b.WriteString("digraph escape {\n")
	for _, name := range g.Order {
		id := g.Names[name]
		color := "black"
		switch {
		case result.IsEscaped(id):
			color = "red"
		case result.IsVirtual(id):
			color = "green"
		}
		mnemonic := g.IR.Operator(id).Mnemonic()
		fmt.Fprintf(&b, "  n%d [label=%q color=%s];\n", id, name+": "+mnemonic, color)
	}
	for _, name := range g.Order {
		id := g.Names[name]
		for i := 0; i < g.IR.Operator(id).ValueInputCount(); i++ {
			if in := g.IR.ValueInput(id, i); in != graphir.NoNode {
				fmt.Fprintf(&b, "  n%d -> n%d;\n", id, in)
			}
		}
	}
	b.WriteString("}\n")

	gv := graphviz.New()
	defer gv.Close()
	graph, err := graphviz.ParseBytes([]byte(b.String()))
	if err != nil {
		return err
	}
	defer graph.Close()
	return gv.RenderFilename(graph, graphviz.PNG, path)
}
