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

// Package volumemgr loads volumes from store, runs lifecycle operations on them and persists the result
package volumemgr

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/keymutex"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/util"
	"github.com/dell/storagevirt/pkg/metrics"
	metricsC "github.com/dell/storagevirt/pkg/metrics/common"
	"github.com/dell/storagevirt/pkg/storage"
	"github.com/dell/storagevirt/pkg/store"
)

// VolumeManager serializes operations per volume or snapshot id and keeps store in sync with volumes
type VolumeManager struct {
	registry *storage.Registry
	store    store.Store
	// operations lock, keyed by volume or snapshot id
	volMu  keymutex.KeyMutex
	metric metrics.Statistic
	log    *logrus.Entry
}

// GrowOptions holds options of VolumeManager.Grow
type GrowOptions struct {
	// KeepSource keeps detached source volume instead of destroying it
	KeepSource bool
}

// NewVolumeManager is the constructor for VolumeManager
func NewVolumeManager(registry *storage.Registry, st store.Store, logger *logrus.Logger) *VolumeManager {
	return &VolumeManager{
		registry: registry,
		store:    st,
		volMu:    keymutex.NewHashed(0),
		metric:   metricsC.VolumeOperationsDuration,
		log:      logger.WithField("component", "VolumeManager"),
	}
}

func (m *VolumeManager) lock(id string) func() {
	m.volMu.LockKey(id)
	return func() {
		if err := m.volMu.UnlockKey(id); err != nil {
			m.log.Errorf("Unable to unlock %s: %v", id, err)
		}
	}
}

func (m *VolumeManager) observe(method string, typ string) func() {
	return m.metric.EvaluateDurationForMethod(method, prometheus.Labels{"type": typ})
}

func (m *VolumeManager) load(id string) (storage.Volume, error) {
	cfg, err := m.store.GetVolume(id)
	if err != nil {
		return nil, err
	}
	return m.registry.Volume(cfg)
}

func (m *VolumeManager) loadSnapshot(id string) (storage.Snapshot, error) {
	cfg, err := m.store.GetSnapshot(id)
	if err != nil {
		return nil, err
	}
	return m.registry.Snapshot(cfg)
}

func (m *VolumeManager) persist(vol storage.Volume) error {
	return m.store.PutVolume(vol.Config())
}

// Get returns volume constructed from persisted configuration
func (m *VolumeManager) Get(id string) (storage.Volume, error) {
	return m.load(id)
}

// List returns configurations of all volumes
func (m *VolumeManager) List() ([]storage.Config, error) {
	return m.store.ListVolumes()
}

// ListSnapshots returns configurations of all snapshots
func (m *VolumeManager) ListSnapshots() ([]storage.Config, error) {
	return m.store.ListSnapshots()
}

// Create constructs volume from cfg, ensures and persists it.
// Configuration is persisted even if ensure fails, so volume could be ensured again or destroyed
func (m *VolumeManager) Create(ctx context.Context, cfg storage.Config) (storage.Volume, error) {
	vol, err := m.registry.Volume(cfg)
	if err != nil {
		return nil, err
	}
	defer m.lock(vol.ID())()
	defer m.observe("Create", vol.Type())()
	ctx = util.WithVolumeID(ctx, vol.ID())
	ll := util.AddCommonFields(ctx, m.log, "Create")

	if _, err = m.store.GetVolume(vol.ID()); err == nil {
		return nil, errTypes.NewStorageError("volume %s already exists", vol.ID())
	} else if !errTypes.IsNotFound(err) {
		return nil, err
	}

	ensureErr := vol.Ensure(ctx)
	if err = m.persist(vol); err != nil {
		return nil, err
	}
	if ensureErr != nil {
		ll.Errorf("Volume is persisted but not ensured: %v", ensureErr)
		return nil, ensureErr
	}
	ll.Infof("Volume is created, device: %s", vol.Device())
	return vol, nil
}

// Ensure materializes persisted volume
func (m *VolumeManager) Ensure(ctx context.Context, id string) (storage.Volume, error) {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return nil, err
	}
	defer m.observe("Ensure", vol.Type())()

	ensureErr := vol.Ensure(ctx)
	if err = m.persist(vol); err != nil {
		return nil, err
	}
	if ensureErr != nil {
		return nil, ensureErr
	}
	return vol, nil
}

// Detach releases device of persisted volume
func (m *VolumeManager) Detach(ctx context.Context, id string, force bool) error {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return err
	}
	defer m.observe("Detach", vol.Type())()

	if err = vol.Detach(ctx, force); err != nil {
		return err
	}
	return m.persist(vol)
}

// Destroy destroys volume and removes its configuration
func (m *VolumeManager) Destroy(ctx context.Context, id string, opts storage.DestroyOptions) error {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return err
	}
	defer m.observe("Destroy", vol.Type())()

	if err = vol.Destroy(ctx, opts); err != nil {
		if persistErr := m.persist(vol); persistErr != nil {
			util.AddCommonFields(util.WithVolumeID(ctx, id), m.log, "Destroy").
				Errorf("Unable to persist volume: %v", persistErr)
		}
		return err
	}
	return m.store.DeleteVolume(id)
}

// Snapshot takes snapshot of volume and persists it
func (m *VolumeManager) Snapshot(ctx context.Context, id, description string, tags map[string]string) (storage.Snapshot, error) {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return nil, err
	}
	defer m.observe("Snapshot", vol.Type())()

	snap, err := vol.Snapshot(ctx, description, tags)
	if err != nil {
		return nil, err
	}
	if err = m.store.PutSnapshot(snap.Config()); err != nil {
		return nil, err
	}
	return snap, nil
}

// CheckGrowth reports whether cfg changes persisted volume
func (m *VolumeManager) CheckGrowth(id string, cfg storage.GrowthConfig) (storage.GrowthResult, error) {
	vol, err := m.load(id)
	if err != nil {
		return storage.GrowthFailed, err
	}
	return storage.CheckGrowthResult(vol, cfg)
}

// Grow grows volume into a new one and persists it. Source volume is destroyed and its configuration
// is removed unless opts.KeepSource is set. Failed growth leaves source volume ensured
func (m *VolumeManager) Grow(ctx context.Context, id string, cfg storage.GrowthConfig, opts GrowOptions) (storage.Volume, error) {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return nil, err
	}
	defer m.observe("Grow", vol.Type())()
	ctx = util.WithVolumeID(ctx, id)
	ll := util.AddCommonFields(ctx, m.log, "Grow")

	newVol, err := vol.Grow(ctx, cfg)
	if err != nil {
		if persistErr := m.persist(vol); persistErr != nil {
			ll.Errorf("Unable to persist volume: %v", persistErr)
		}
		return nil, err
	}
	if err = m.persist(newVol); err != nil {
		return nil, err
	}

	if opts.KeepSource {
		return newVol, m.persist(vol)
	}
	if err = vol.Destroy(ctx, storage.DestroyOptions{Force: true, RemoveDisks: true}); err != nil {
		ll.Errorf("Volume is grown into %s, but source isn't destroyed: %v", newVol.ID(), err)
		return newVol, m.persist(vol)
	}
	return newVol, m.store.DeleteVolume(id)
}

// Clone persists not materialized clone of volume
func (m *VolumeManager) Clone(ctx context.Context, id string) (storage.Volume, error) {
	defer m.lock(id)()
	vol, err := m.load(id)
	if err != nil {
		return nil, err
	}
	defer m.observe("Clone", vol.Type())()

	clone, err := vol.Clone()
	if err != nil {
		return nil, err
	}
	if err = m.persist(clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// Restore creates volume from persisted snapshot and persists it
func (m *VolumeManager) Restore(ctx context.Context, snapID string) (storage.Volume, error) {
	defer m.lock(snapID)()
	snap, err := m.loadSnapshot(snapID)
	if err != nil {
		return nil, err
	}
	defer m.observe("Restore", snap.Type())()

	vol, err := snap.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if err = m.persist(vol); err != nil {
		return nil, err
	}
	return vol, nil
}

// SnapshotStatus returns status of persisted snapshot
func (m *VolumeManager) SnapshotStatus(ctx context.Context, snapID string) (storage.Status, error) {
	defer m.lock(snapID)()
	snap, err := m.loadSnapshot(snapID)
	if err != nil {
		return storage.StatusUnknown, err
	}
	return snap.Status(ctx), nil
}

// DestroySnapshot destroys snapshot and removes its configuration
func (m *VolumeManager) DestroySnapshot(ctx context.Context, snapID string) error {
	defer m.lock(snapID)()
	snap, err := m.loadSnapshot(snapID)
	if err != nil {
		return err
	}
	defer m.observe("DestroySnapshot", snap.Type())()

	if err = snap.Destroy(ctx); err != nil {
		return err
	}
	return m.store.DeleteSnapshot(snapID)
}
