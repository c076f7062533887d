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

// Package storage contains lifecycle of volumes and snapshots shared by all volume types:
// type registry, base state machines of volume and snapshot and helpers for concurrent operations
// over sibling volumes
package storage

import (
	"context"

	"github.com/dell/storagevirt/pkg/base/featureconfig"
)

// Status is a state of snapshot
type Status string

const (
	// StatusInProgress snapshot is being taken
	StatusInProgress Status = "in-progress"
	// StatusCompleted snapshot is ready to be restored
	StatusCompleted Status = "completed"
	// StatusFailed snapshot can't be used
	StatusFailed Status = "failed"
	// StatusUnknown status couldn't be determined
	StatusUnknown Status = "unknown"
)

// DestroyOptions holds options of Volume.Destroy
type DestroyOptions struct {
	// Force makes destroy continue when detach fails
	Force bool
	// RemoveDisks makes composite volumes destroy their child volumes
	RemoveDisks bool
}

// Volume is a block storage unit which could be materialized into device on the host
type Volume interface {
	ID() string
	Type() string
	// Device is an empty string until Ensure succeeds, it's cleared by Detach and Destroy
	Device() string
	Features() featureconfig.FeatureChecker
	// Snap returns pending snapshot which will be restored on the next Ensure, nil if there is no one
	Snap() interface{}
	SetSnap(snap Snapshot)

	Ensure(ctx context.Context) error
	Detach(ctx context.Context, force bool) error
	Snapshot(ctx context.Context, description string, tags map[string]string) (Snapshot, error)
	Destroy(ctx context.Context, opts DestroyOptions) error
	Clone() (Volume, error)
	Grow(ctx context.Context, cfg GrowthConfig) (Volume, error)
	CheckGrowth(cfg GrowthConfig) error
	// Config returns configuration which constructs equal volume through Registry
	Config() Config
}

// Snapshot is a point-in-time capture of Volume
type Snapshot interface {
	ID() string
	Type() string
	Description() string
	Tags() map[string]string

	Status(ctx context.Context) Status
	Destroy(ctx context.Context) error
	// Restore creates volume of the same type from snapshot and ensures it
	Restore(ctx context.Context) (Volume, error)
	// Config returns configuration which constructs equal snapshot through Registry
	Config() Config
}

// Driver is implemented by concrete volume types. VolumeBase calls its hooks from public methods
// after checking applicability
type Driver interface {
	// PrepareVolume consumes pending snapshot if any, checks attributes and materializes device
	PrepareVolume(ctx context.Context) error
	ReleaseVolume(ctx context.Context, force bool) error
	SnapshotVolume(ctx context.Context, description string, tags map[string]string) (Snapshot, error)
	DestroyVolume(ctx context.Context, opts DestroyOptions) error
	// CloneVolume strips identity attributes from cfg and clones nested volumes
	CloneVolume(cfg Config) error
	// GrowVolume materializes newVol, a clone of the volume, with growth applied
	GrowVolume(ctx context.Context, newVol Volume, cfg GrowthConfig) error
	// CheckVolumeGrowth returns NoOpError if cfg changes nothing and StorageError if change isn't allowed
	CheckVolumeGrowth(cfg GrowthConfig) error
	RequiredAttributes() []string
	Attributes() Config
}

// SnapshotDriver is implemented by concrete snapshot types
type SnapshotDriver interface {
	DestroySnapshot(ctx context.Context) error
	SnapshotStatus(ctx context.Context) Status
	Attributes() Config
}
