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

// Command escapeanalyze is a demo/test harness for package escape: it
// parses a .nodeir file (package nodetext's small textual IR), runs the
// pass, and prints the resulting replacement table and escape status. It is
// not part of the pass's own contract (see spec's "no CLI" non-goal for the
// library) — a real compiler embeds package escape directly.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aws/ar-go-escape/escape"
	"github.com/aws/ar-go-escape/escape/config"
	"github.com/aws/ar-go-escape/internal/nodetext"
)

const usage = `escapeanalyze: sea-of-nodes escape analysis test harness
Usage:
  escapeanalyze [options] <file.nodeir>
Options:
  -config string   YAML config file (see escape/config.Config)
  -trace           enable trace-level logging of worklist steps
  -dot string      write a Graphviz PNG rendering of the analyzed graph to this path
`

func main() {
	fs := flag.NewFlagSet("escapeanalyze", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file")
	trace := fs.Bool("trace", false, "enable trace logging")
	dotPath := fs.String("dot", "", "write a Graphviz PNG rendering to this path")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		errExit(err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	if err := run(fs.Arg(0), *configPath, *trace, *dotPath); err != nil {
		errExit(err)
	}
}

func run(path, configPath string, trace bool, dotPath string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	g, err := nodetext.Parse(string(src))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if trace {
		cfg.Trace = true
	}

	result, err := escape.Run(g.IR, g.IR, *cfg)
	if err != nil {
		return fmt.Errorf("escape analysis: %w", err)
	}

	printResult(g, result)

	if dotPath != "" {
		if err := writeDot(g, result, dotPath); err != nil {
			return fmt.Errorf("writing dot output: %w", err)
		}
	}
	return nil
}

func printResult(g *nodetext.Graph, result *escape.Result) {
	for _, name := range g.Order {
		id := g.Names[name]
		line := fmt.Sprintf("%-12s virtual=%-5v escaped=%-5v", name, result.IsVirtual(id), result.IsEscaped(id))
		if rep, ok := result.Replacement(id); ok {
			line += fmt.Sprintf(" replacement=%s", nameOf(g, rep))
		}
		fmt.Println(line)
	}
	if cycles := result.ReplacementCycles(); len(cycles) > 0 {
		fmt.Printf("warning: %d replacement cycle(s) detected (should never happen)\n", len(cycles))
	}
}

func nameOf(g *nodetext.Graph, id escape.NodeID) string {
	for name, n := range g.Names {
		if n == id {
			return name
		}
	}
	return fmt.Sprintf("n%d", id)
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(2)
}
