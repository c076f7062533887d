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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

func TestConfig_Copy(t *testing.T) {
	cfg := Config{
		KeyType: "raid",
		"disks": []interface{}{
			map[string]interface{}{KeyType: "loop", "size": 1},
		},
		KeyTags: map[string]string{"a": "b"},
	}

	cp := cfg.Copy()
	assert.Equal(t, cfg, cp)

	cp["disks"].([]interface{})[0].(map[string]interface{})["size"] = 2
	cp[KeyTags].(map[string]string)["a"] = "c"
	assert.Equal(t, 1, cfg["disks"].([]interface{})[0].(map[string]interface{})["size"])
	assert.Equal(t, "b", cfg[KeyTags].(map[string]string)["a"])

	assert.Nil(t, Config(nil).Copy())
}

func TestConfig_String(t *testing.T) {
	cfg := Config{KeyID: "raid-1", "level": 1}

	assert.Equal(t, "raid-1", cfg.String(KeyID))
	assert.Equal(t, "", cfg.String("level"))
	assert.Equal(t, "", cfg.String("missing"))
}

func TestNewID(t *testing.T) {
	id := NewID("loop")
	assert.True(t, strings.HasPrefix(id, "loop-"))
	assert.NotEqual(t, id, NewID("loop"))
}

func TestDecodeAttributes(t *testing.T) {
	var attrs struct {
		Level *int   `mapstructure:"level"`
		VG    string `mapstructure:"vg"`
	}

	// numbers could come from JSON as floats or from CLI as strings
	assert.Nil(t, DecodeAttributes(map[string]interface{}{"level": float64(1), "vg": "raid_vg"}, &attrs))
	assert.Equal(t, 1, *attrs.Level)
	assert.Equal(t, "raid_vg", attrs.VG)

	assert.Nil(t, DecodeAttributes(map[string]interface{}{"level": "10"}, &attrs))
	assert.Equal(t, 10, *attrs.Level)

	err := DecodeAttributes(map[string]interface{}{"level": "ten"}, &attrs)
	assert.True(t, errTypes.IsStorageError(err))
}

func TestAsConfig(t *testing.T) {
	cfg, ok := asConfig(map[interface{}]interface{}{"type": "loop", 1: "one"})
	assert.True(t, ok)
	assert.Equal(t, "loop", cfg.String(KeyType))
	assert.Equal(t, "one", cfg["1"])

	_, ok = asConfig("loop")
	assert.False(t, ok)
}

func TestConfigsOf(t *testing.T) {
	items := []interface{}{Config{KeyType: "loop"}, map[string]interface{}{KeyType: "raid"}, "raw"}

	configs := ConfigsOf(items)
	assert.Equal(t, []interface{}{Config{KeyType: "loop"}, Config{KeyType: "raid"}, "raw"}, configs)
	assert.Nil(t, ConfigsOf("not a slice"))
}
