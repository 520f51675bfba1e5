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

package config

import "log"

// LogGroup is the pass's trace sink (spec §6's {trace: bool} configuration
// option). It only ever carries a trace-level logger: the object analysis
// worklist logs a line per fixed-point step (escape/object.go) and every
// escape transition is logged (escape/diagnose.go) when Config.Trace is set;
// nothing in the pass logs at any other severity, so LogGroup carries no
// unused Debug/Info/Warn/Error sinks.
type LogGroup struct {
	enabled bool
	trace   *log.Logger
}

// NewLogGroup returns a log group configured to the logging settings stored
// inside the config.
func NewLogGroup(config *Config) *LogGroup {
	l := &LogGroup{
		enabled: config.Trace,
		trace:   log.Default(),
	}
	l.trace.SetPrefix("[TRACE] ")
	return l
}

// Tracef prints to the trace logger when tracing is enabled. Arguments are
// handled in the manner of Printf.
func (l *LogGroup) Tracef(format string, v ...any) {
	if l.enabled {
		l.trace.Printf(format, v...)
	}
}
