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

// Package featureconfig holds capability flags of volume types
package featureconfig

import (
	"fmt"
	"sort"
	"sync"
)

const (
	// FeatureRestore store name for restore feature, volume can be materialized from a snapshot
	FeatureRestore = "restore"
	// FeatureGrow store name for grow feature, volume can be grown into a bigger one
	FeatureGrow = "grow"
)

// Known lists every feature a volume type could support
var Known = []string{FeatureGrow, FeatureRestore}

// FeatureChecker is a "read" interface for FeatureConfig
type FeatureChecker interface {
	// IsEnabled check if features is enabled
	IsEnabled(name string) bool
	// List list all enabled features in alphabetical order
	List() []string
}

// FeatureConfigurator is a "write" interface for FeatureConfig
type FeatureConfigurator interface {
	FeatureChecker
	// Update adds new feature or update existing
	Update(name string, enabled bool)
}

// NewFeatureConfig returns new instance of FeatureConfig
func NewFeatureConfig() *FeatureConfig {
	return &FeatureConfig{
		lock:     sync.RWMutex{},
		features: make(map[string]bool),
	}
}

// NewFeatureConfigWith returns new instance of FeatureConfig with enabled features
func NewFeatureConfigWith(names ...string) *FeatureConfig {
	f := NewFeatureConfig()
	for _, name := range names {
		f.features[name] = true
	}
	return f
}

// NewFeatureConfigWithout returns FeatureConfig with all Known features enabled except disabled ones.
// Unknown names in disabled are reported, so typo in configuration doesn't silently keep feature enabled
func NewFeatureConfigWithout(disabled ...string) (*FeatureConfig, error) {
	f := NewFeatureConfigWith(Known...)
	for _, name := range disabled {
		if _, ok := f.features[name]; !ok {
			return nil, fmt.Errorf("unknown feature %q, known features: %v", name, Known)
		}
		f.features[name] = false
	}
	return f, nil
}

// FeatureConfig store features flags
type FeatureConfig struct {
	features map[string]bool
	lock     sync.RWMutex
}

// IsEnabled is implementation of FeatureChecker interface
func (f *FeatureConfig) IsEnabled(name string) bool {
	f.lock.RLock()
	defer f.lock.RUnlock()
	enabled, exist := f.features[name]
	return exist && enabled
}

// List is implementation of FeatureChecker interface
func (f *FeatureConfig) List() []string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	featureNames := make([]string, 0, len(f.features))
	for name, enabled := range f.features {
		if enabled {
			featureNames = append(featureNames, name)
		}
	}
	sort.Strings(featureNames)
	return featureNames
}

// Update is implementation of FeatureConfigurator interface
func (f *FeatureConfig) Update(name string, enabled bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.features[name] = enabled
}
