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

// Package config holds the escape analysis pass's run configuration and
// its trace-log sink, loaded from a small YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var configFile string

// SetGlobalConfig sets the global config filename.
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file set by SetGlobalConfig.
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config controls how a Pass run logs and traces itself. It has no
// domain-specific options: the pass's behavior is fixed by the graph it is
// given, not by configuration.
type Config struct {
	// Trace enables the per-node trace log used while debugging fixed-point
	// convergence (object analysis worklist steps and escape transitions).
	Trace bool `yaml:"trace"`
}

// NewDefault returns a Config with tracing disabled.
func NewDefault() *Config {
	return &Config{}
}

// Load reads a YAML config file from filename. An empty filename returns
// NewDefault().
func Load(filename string) (*Config, error) {
	if filename == "" {
		return NewDefault(), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %s: %w", filename, err)
	}
	c := NewDefault()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("could not parse config file %s: %w", filename, err)
	}
	return c, nil
}
