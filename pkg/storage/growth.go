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

package storage

import (
	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// ResizeFSKey is accepted in growth configuration for compatibility, file systems aren't resized
const ResizeFSKey = "resize_fs"

// GrowthConfig is a type specific description of growth, for example {"size": "2GiB"} for loop volume
// or {"len": 4, "foreach": {...}} for raid volume
type GrowthConfig map[string]interface{}

// Without returns copy of growth configuration without keys
func (g GrowthConfig) Without(keys ...string) GrowthConfig {
	res := make(GrowthConfig, len(g))
	for k, v := range g {
		res[k] = v
	}
	for _, k := range keys {
		delete(res, k)
	}
	return res
}

// Decode decodes growth configuration into struct with mapstructure tags
func (g GrowthConfig) Decode(out interface{}) error {
	return DecodeAttributes(map[string]interface{}(g), out)
}

// GrowthResult is an outcome of growth check
type GrowthResult int

const (
	// GrowthChanged growth changes volume
	GrowthChanged GrowthResult = iota
	// GrowthNoOp growth changes nothing
	GrowthNoOp
	// GrowthFailed growth isn't allowed
	GrowthFailed
)

func (r GrowthResult) String() string {
	switch r {
	case GrowthChanged:
		return "changed"
	case GrowthNoOp:
		return "no-op"
	default:
		return "failed"
	}
}

// CheckGrowthResult maps result of Volume.CheckGrowth into GrowthResult.
// Error is returned only for GrowthFailed
func CheckGrowthResult(v Volume, cfg GrowthConfig) (GrowthResult, error) {
	err := v.CheckGrowth(cfg)
	switch {
	case err == nil:
		return GrowthChanged, nil
	case errTypes.IsNoOp(err):
		return GrowthNoOp, nil
	default:
		return GrowthFailed, err
	}
}
