/*
Copyright © 2020 Dell Inc. or its subsidiaries. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config contains configuration of the storage agent
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/dell/storagevirt/pkg/base"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// AgentConfig struct is the configuration of storage agent. Fields which are not provided in the file
// are filled with defaults
type AgentConfig struct {
	LogLevel string `yaml:"logLevel"`
	LogPath  string `yaml:"logPath"`
	// DBPath is a path of bolt database with volume configurations
	DBPath string `yaml:"dbPath"`
	// LoopDir is a default directory for backing files of loop volumes
	LoopDir           string        `yaml:"loopDir"`
	DeviceWaitTimeout time.Duration `yaml:"deviceWaitTimeout"`
	ArrayWaitTimeout  time.Duration `yaml:"arrayWaitTimeout"`
	CmdAttempts       int           `yaml:"cmdAttempts"`
	// DisabledFeatures holds names of disabled features per volume type, e.g. {raid: [grow]}
	DisabledFeatures map[string][]string `yaml:"disabledFeatures"`
	// MetricsTextfile is a file for node exporter textfile collector, metrics aren't written if empty
	MetricsTextfile string `yaml:"metricsTextfile"`
}

// NewDefaultConfig returns AgentConfig filled with defaults
func NewDefaultConfig() *AgentConfig {
	c := &AgentConfig{}
	c.fillEmptyFieldsWithDefaults()
	return c
}

// ReadConfig reads config from path and tries to unmarshall it.
// Missing file isn't an error, defaults are returned in that case
func ReadConfig(path string) (*AgentConfig, error) {
	c := &AgentConfig{}
	configData, err := ioutil.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err = yaml.Unmarshal(configData, c); err != nil {
			return nil, fmt.Errorf("%w: config %s: %v", errTypes.ErrorFailedParsing, path, err)
		}
	}
	c.fillEmptyFieldsWithDefaults()
	return c, nil
}

func (c *AgentConfig) fillEmptyFieldsWithDefaults() {
	if c.DBPath == "" {
		c.DBPath = base.DefaultDBPath
	}
	if c.LoopDir == "" {
		c.LoopDir = base.DefaultLoopDir
	}
	if c.DeviceWaitTimeout <= 0 {
		c.DeviceWaitTimeout = base.DefaultDeviceWaitTimeout
	}
	if c.ArrayWaitTimeout <= 0 {
		c.ArrayWaitTimeout = base.DefaultArrayWaitTimeout
	}
	if c.CmdAttempts <= 0 {
		c.CmdAttempts = base.DefaultCmdAttempts
	}
}
