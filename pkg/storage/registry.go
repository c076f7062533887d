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
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// VolumeFactory constructs volume from configuration, it mustn't touch the host
type VolumeFactory func(cfg Config) (Volume, error)

// SnapshotFactory constructs snapshot from configuration
type SnapshotFactory func(cfg Config) (Snapshot, error)

// Registry maps type tags to constructors of volumes and snapshots.
// It's created once at start up and passed to every volume type
type Registry struct {
	log       *logrus.Entry
	volumes   map[string]VolumeFactory
	snapshots map[string]SnapshotFactory
	sync.RWMutex
}

// NewRegistry is a constructor for Registry
func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		log:       logger.WithField("component", "Registry"),
		volumes:   make(map[string]VolumeFactory),
		snapshots: make(map[string]SnapshotFactory),
	}
}

// RegisterVolume registers constructor of volume type, previous constructor of the type is replaced
func (r *Registry) RegisterVolume(typ string, factory VolumeFactory) {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.volumes[typ]; ok {
		r.log.WithField("method", "RegisterVolume").Warnf("Volume type %s is registered twice", typ)
	}
	r.volumes[typ] = factory
}

// RegisterSnapshot registers constructor of snapshot type
func (r *Registry) RegisterSnapshot(typ string, factory SnapshotFactory) {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.snapshots[typ]; ok {
		r.log.WithField("method", "RegisterSnapshot").Warnf("Snapshot type %s is registered twice", typ)
	}
	r.snapshots[typ] = factory
}

// VolumeTypes returns sorted list of registered volume types
func (r *Registry) VolumeTypes() []string {
	r.RLock()
	defer r.RUnlock()
	types := make([]string, 0, len(r.volumes))
	for typ := range r.volumes {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// Volume returns v if it's already a Volume or constructs volume from configuration
// Returns StorageError if type is missing or isn't registered
func (r *Registry) Volume(v interface{}) (Volume, error) {
	if vol, ok := v.(Volume); ok {
		return vol, nil
	}
	cfg, ok := asConfig(v)
	if !ok {
		return nil, errTypes.NewStorageError("unable to construct volume from %T", v)
	}
	typ := cfg.String(KeyType)
	if typ == "" {
		return nil, errTypes.NewStorageError("volume configuration doesn't contain %q", KeyType)
	}

	r.RLock()
	factory, ok := r.volumes[typ]
	r.RUnlock()
	if !ok {
		return nil, errTypes.NewStorageError("unknown volume type %q", typ)
	}
	return factory(cfg.Copy())
}

// Snapshot returns v if it's already a Snapshot or constructs snapshot from configuration
// Returns StorageError if type is missing or isn't registered
func (r *Registry) Snapshot(v interface{}) (Snapshot, error) {
	if snap, ok := v.(Snapshot); ok {
		return snap, nil
	}
	cfg, ok := asConfig(v)
	if !ok {
		return nil, errTypes.NewStorageError("unable to construct snapshot from %T", v)
	}
	typ := cfg.String(KeyType)
	if typ == "" {
		return nil, errTypes.NewStorageError("snapshot configuration doesn't contain %q", KeyType)
	}

	r.RLock()
	factory, ok := r.snapshots[typ]
	r.RUnlock()
	if !ok {
		return nil, errTypes.NewStorageError("unknown snapshot type %q", typ)
	}
	return factory(cfg.Copy())
}
