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
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// Base configuration keys of volumes and snapshots
const (
	KeyID          = "id"
	KeyType        = "type"
	KeyDevice      = "device"
	KeySnap        = "snap"
	KeyDescription = "description"
	KeyTags        = "tags"
)

// Config is an at-rest representation of volume or snapshot. It contains "type" and attributes of
// the type, nested volumes and snapshots appear as nested configurations or constructed instances
type Config map[string]interface{}

// NewID returns new identifier of volume or snapshot of type typ
func NewID(typ string) string {
	return fmt.Sprintf("%s-%s", typ, uuid.New().String())
}

// String returns value of key if it's a string or empty string otherwise
func (c Config) String(key string) string {
	if s, ok := c[key].(string); ok {
		return s
	}
	return ""
}

// Copy returns deep copy of configuration. Constructed volumes and snapshots are copied by reference
func (c Config) Copy() Config {
	if c == nil {
		return nil
	}
	return copyValue(c).(Config)
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case Config:
		res := make(Config, len(val))
		for k, item := range val {
			res[k] = copyValue(item)
		}
		return res
	case map[string]interface{}:
		return map[string]interface{}(copyValue(Config(val)).(Config))
	case []interface{}:
		res := make([]interface{}, len(val))
		for i, item := range val {
			res[i] = copyValue(item)
		}
		return res
	case map[string]string:
		res := make(map[string]string, len(val))
		for k, item := range val {
			res[k] = item
		}
		return res
	default:
		return v
	}
}

// DecodeAttributes decodes configuration into out, which is a pointer to struct with mapstructure tags.
// Values are weakly typed so numbers persisted as strings or floats are accepted
func DecodeAttributes(input interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err = decoder.Decode(input); err != nil {
		return errTypes.WrapStorageError(err, "invalid configuration")
	}
	return nil
}

// asConfig converts mapping into Config
func asConfig(v interface{}) (Config, bool) {
	switch val := v.(type) {
	case Config:
		return val, true
	case map[string]interface{}:
		return Config(val), true
	case map[interface{}]interface{}:
		// yaml.v2 decodes nested mappings this way
		cfg := make(Config, len(val))
		for k, item := range val {
			cfg[fmt.Sprint(k)] = item
		}
		return cfg, true
	default:
		return nil, false
	}
}
