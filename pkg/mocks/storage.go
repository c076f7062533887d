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

package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/featureconfig"
	"github.com/dell/storagevirt/pkg/storage"
)

// FakeType is a type tag of in-memory volumes and snapshots of FakeBackend
const FakeType = "fake"

// Operations of FakeBackend which could be failed with FailOp
const (
	OpEnsure   = "ensure"
	OpDetach   = "detach"
	OpSnapshot = "snapshot"
	OpDestroy  = "destroy"
	OpGrow     = "grow"
	OpRestore  = "restore"
)

// FakeBackend is an in-memory volume type for tests of composite volumes and volume manager.
// Volumes have "size" attribute, devices are named /dev/fake<N>. All operations are recorded
type FakeBackend struct {
	log      *logrus.Logger
	registry *storage.Registry

	mu        sync.Mutex
	nextDev   int
	failures  map[string]error
	delays    map[string]time.Duration
	statuses  map[string]storage.Status
	calls     []string
	destroyed map[string]bool
	// Hook is called before every operation, returned error fails the operation
	Hook func(op, id string) error
}

// NewFakeBackend creates FakeBackend and registers its volume and snapshot types in registry
func NewFakeBackend(registry *storage.Registry, logger *logrus.Logger) *FakeBackend {
	b := &FakeBackend{
		log:       logger,
		registry:  registry,
		failures:  make(map[string]error),
		delays:    make(map[string]time.Duration),
		statuses:  make(map[string]storage.Status),
		destroyed: make(map[string]bool),
	}
	registry.RegisterVolume(FakeType, func(cfg storage.Config) (storage.Volume, error) {
		return b.newVolume(cfg)
	})
	registry.RegisterSnapshot(FakeType, func(cfg storage.Config) (storage.Snapshot, error) {
		return b.newSnapshot(cfg)
	})
	return b
}

// VolumeConfig returns configuration of fake volume of size
func VolumeConfig(size int) storage.Config {
	return storage.Config{storage.KeyType: FakeType, "size": size}
}

// FailOp makes operation op fail with err for volume or snapshot with id, empty id means any
func (b *FakeBackend) FailOp(op, id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op+":"+id] = err
}

// DelayOp makes operation op for id sleep for d before completion
func (b *FakeBackend) DelayOp(op, id string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[op+":"+id] = d
}

// SetStatus sets status of snapshot with id, default status is completed
func (b *FakeBackend) SetStatus(id string, status storage.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[id] = status
}

// Calls returns recorded operations like "ensure fake-..."
func (b *FakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// IsDestroyed checks whether volume or snapshot with id was destroyed
func (b *FakeBackend) IsDestroyed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed[id]
}

func (b *FakeBackend) call(op, id string) error {
	b.mu.Lock()
	b.calls = append(b.calls, op+" "+id)
	delay := b.delays[op+":"+id]
	err, ok := b.failures[op+":"+id]
	if !ok {
		err = b.failures[op+":"]
	}
	hook := b.Hook
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err == nil && hook != nil {
		err = hook(op, id)
	}
	return err
}

func (b *FakeBackend) markDestroyed(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed[id] = true
}

// FakeVolume is a volume of FakeBackend
type FakeVolume struct {
	*storage.VolumeBase
	backend *FakeBackend
	Size    int
}

func (b *FakeBackend) newVolume(cfg storage.Config) (*FakeVolume, error) {
	base, err := storage.NewVolumeBase(cfg, FakeType,
		featureconfig.NewFeatureConfigWith(featureconfig.FeatureRestore, featureconfig.FeatureGrow),
		b.registry, b.log)
	if err != nil {
		return nil, err
	}
	attrs := struct {
		Size int `mapstructure:"size"`
	}{}
	if err = storage.DecodeAttributes(map[string]interface{}(cfg), &attrs); err != nil {
		return nil, err
	}
	v := &FakeVolume{VolumeBase: base, backend: b, Size: attrs.Size}
	base.SetDriver(v)
	return v, nil
}

// PrepareVolume restores size from pending snapshot and assigns device
func (v *FakeVolume) PrepareVolume(ctx context.Context) error {
	if err := v.backend.call(OpEnsure, v.ID()); err != nil {
		return err
	}
	snap, err := v.PendingSnapshot()
	if err != nil {
		return err
	}
	if snap != nil {
		if err = v.backend.call(OpRestore, snap.ID()); err != nil {
			return err
		}
		fakeSnap, ok := snap.(*FakeSnapshot)
		if !ok {
			return errTypes.NewStorageError("unable to restore fake volume from %s snapshot", snap.Type())
		}
		v.Size = fakeSnap.Size
		v.ClearSnap()
	}
	if err = v.CheckAttrs(); err != nil {
		return err
	}
	if v.Device() == "" {
		v.backend.mu.Lock()
		v.SetDevice(fmt.Sprintf("/dev/fake%d", v.backend.nextDev))
		v.backend.nextDev++
		v.backend.mu.Unlock()
	}
	return nil
}

// ReleaseVolume is a fake implementation
func (v *FakeVolume) ReleaseVolume(ctx context.Context, force bool) error {
	return v.backend.call(OpDetach, v.ID())
}

// SnapshotVolume creates FakeSnapshot of the same size
func (v *FakeVolume) SnapshotVolume(ctx context.Context, description string, tags map[string]string) (storage.Snapshot, error) {
	if err := v.backend.call(OpSnapshot, v.ID()); err != nil {
		return nil, err
	}
	cfg := storage.Config{
		storage.KeyType:        FakeType,
		storage.KeyDescription: description,
		"size":                 v.Size,
		"volume_id":            v.ID(),
	}
	if len(tags) > 0 {
		cfg[storage.KeyTags] = tags
	}
	return v.backend.newSnapshot(cfg)
}

// DestroyVolume is a fake implementation
func (v *FakeVolume) DestroyVolume(ctx context.Context, opts storage.DestroyOptions) error {
	if err := v.backend.call(OpDestroy, v.ID()); err != nil {
		return err
	}
	v.backend.markDestroyed(v.ID())
	return nil
}

// CloneVolume is a fake implementation, fake volume has no identity attributes
func (v *FakeVolume) CloneVolume(cfg storage.Config) error {
	return nil
}

// CheckVolumeGrowth allows only increasing of size
func (v *FakeVolume) CheckVolumeGrowth(cfg storage.GrowthConfig) error {
	growth := struct {
		Size int `mapstructure:"size"`
	}{}
	if err := cfg.Decode(&growth); err != nil {
		return err
	}
	switch {
	case growth.Size == v.Size || growth.Size == 0:
		return errTypes.NewNoOpError("fake volume %s already has size %d", v.ID(), v.Size)
	case growth.Size < v.Size:
		return errTypes.NewStorageError("fake volume %s can't be shrunk", v.ID())
	}
	return nil
}

// GrowVolume sets new size to newVol and ensures it
func (v *FakeVolume) GrowVolume(ctx context.Context, newVol storage.Volume, cfg storage.GrowthConfig) error {
	if err := v.backend.call(OpGrow, v.ID()); err != nil {
		return err
	}
	growth := struct {
		Size int `mapstructure:"size"`
	}{}
	if err := cfg.Decode(&growth); err != nil {
		return err
	}
	fakeVol, ok := newVol.(*FakeVolume)
	if !ok {
		return errTypes.NewStorageError("unable to grow fake volume into %s volume", newVol.Type())
	}
	fakeVol.Size = growth.Size
	return newVol.Ensure(ctx)
}

// RequiredAttributes is a fake implementation
func (v *FakeVolume) RequiredAttributes() []string {
	return []string{"size"}
}

// Attributes is a fake implementation
func (v *FakeVolume) Attributes() storage.Config {
	if v.Size == 0 {
		return storage.Config{}
	}
	return storage.Config{"size": v.Size}
}

// FakeSnapshot is a snapshot of FakeBackend
type FakeSnapshot struct {
	*storage.SnapshotBase
	backend  *FakeBackend
	Size     int
	VolumeID string
}

func (b *FakeBackend) newSnapshot(cfg storage.Config) (*FakeSnapshot, error) {
	base, err := storage.NewSnapshotBase(cfg, FakeType, b.registry, b.log)
	if err != nil {
		return nil, err
	}
	attrs := struct {
		Size     int    `mapstructure:"size"`
		VolumeID string `mapstructure:"volume_id"`
	}{}
	if err = storage.DecodeAttributes(map[string]interface{}(cfg), &attrs); err != nil {
		return nil, err
	}
	s := &FakeSnapshot{SnapshotBase: base, backend: b, Size: attrs.Size, VolumeID: attrs.VolumeID}
	base.SetDriver(s)
	return s, nil
}

// DestroySnapshot is a fake implementation
func (s *FakeSnapshot) DestroySnapshot(ctx context.Context) error {
	if err := s.backend.call(OpDestroy, s.ID()); err != nil {
		return err
	}
	s.backend.markDestroyed(s.ID())
	return nil
}

// SnapshotStatus returns status set with SetStatus or completed
func (s *FakeSnapshot) SnapshotStatus(ctx context.Context) storage.Status {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if status, ok := s.backend.statuses[s.ID()]; ok {
		return status
	}
	return storage.StatusCompleted
}

// Attributes is a fake implementation
func (s *FakeSnapshot) Attributes() storage.Config {
	return storage.Config{"size": s.Size, "volume_id": s.VolumeID}
}
