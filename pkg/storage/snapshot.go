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
	"context"

	"github.com/sirupsen/logrus"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// SnapshotBase implements public lifecycle of Snapshot. Concrete types embed it and implement SnapshotDriver
type SnapshotBase struct {
	id          string
	typ         string
	description string
	tags        map[string]string
	destroyed   bool

	driver   SnapshotDriver
	registry *Registry
	log      *logrus.Entry
}

// NewSnapshotBase reads base keys of snapshot configuration. Missing id is generated
func NewSnapshotBase(cfg Config, typ string, registry *Registry, logger *logrus.Logger) (*SnapshotBase, error) {
	if cfgType := cfg.String(KeyType); cfgType != "" && cfgType != typ {
		return nil, errTypes.NewStorageError("unable to construct %s snapshot from %s configuration", typ, cfgType)
	}
	var tags map[string]string
	if raw, ok := cfg[KeyTags]; ok && raw != nil {
		if err := DecodeAttributes(raw, &tags); err != nil {
			return nil, err
		}
	}
	id := cfg.String(KeyID)
	if id == "" {
		id = NewID(typ)
	}

	return &SnapshotBase{
		id:          id,
		typ:         typ,
		description: cfg.String(KeyDescription),
		tags:        tags,
		registry:    registry,
		log: logger.WithFields(logrus.Fields{
			"component":  "Snapshot",
			"snapshotID": id,
			"type":       typ,
		}),
	}, nil
}

// SetDriver sets hooks of concrete type, it must be called by constructor of concrete type
func (s *SnapshotBase) SetDriver(d SnapshotDriver) {
	s.driver = d
}

// ID returns identifier of snapshot
func (s *SnapshotBase) ID() string { return s.id }

// Type returns type tag of snapshot
func (s *SnapshotBase) Type() string { return s.typ }

// Description returns description snapshot was taken with
func (s *SnapshotBase) Description() string { return s.description }

// Tags returns tags snapshot was taken with
func (s *SnapshotBase) Tags() map[string]string { return s.tags }

// Registry returns registry the snapshot was constructed with
func (s *SnapshotBase) Registry() *Registry { return s.registry }

// Logger returns logger with snapshot fields
func (s *SnapshotBase) Logger() *logrus.Entry { return s.log }

// Status returns state of snapshot, destroyed snapshot is failed
func (s *SnapshotBase) Status(ctx context.Context) Status {
	if s.destroyed {
		return StatusFailed
	}
	return s.driver.SnapshotStatus(ctx)
}

// Destroy releases storage of snapshot. Destroy of destroyed snapshot does nothing
func (s *SnapshotBase) Destroy(ctx context.Context) error {
	if s.destroyed {
		return nil
	}
	if err := s.driver.DestroySnapshot(ctx); err != nil {
		return err
	}
	s.destroyed = true
	s.log.WithField("method", "Destroy").Info("Snapshot is destroyed")
	return nil
}

// Restore constructs volume of snapshot type with snapshot as pending snap and ensures it
func (s *SnapshotBase) Restore(ctx context.Context) (Volume, error) {
	if s.destroyed {
		return nil, errTypes.NewStorageError("%s snapshot %s is destroyed", s.typ, s.id)
	}
	vol, err := s.registry.Volume(Config{KeyType: s.typ, KeySnap: s.Config()})
	if err != nil {
		return nil, err
	}
	if err = vol.Ensure(ctx); err != nil {
		return nil, err
	}
	return vol, nil
}

// Config returns configuration of snapshot with its attributes
func (s *SnapshotBase) Config() Config {
	cfg := Config{
		KeyID:   s.id,
		KeyType: s.typ,
	}
	if s.description != "" {
		cfg[KeyDescription] = s.description
	}
	if len(s.tags) > 0 {
		tags := make(map[string]string, len(s.tags))
		for k, v := range s.tags {
			tags[k] = v
		}
		cfg[KeyTags] = tags
	}
	for k, val := range s.driver.Attributes() {
		cfg[k] = val
	}
	return cfg
}
