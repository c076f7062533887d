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

package raid

import (
	"context"
	"fmt"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/storage"
)

const (
	dmSuspend = "suspend"
	dmResume  = "resume"
)

// SnapshotVolume suspends device mapper target of logical volume and snapshots disks concurrently.
// Target is resumed on every exit path
func (v *Volume) SnapshotVolume(ctx context.Context, description string, tags map[string]string) (storage.Snapshot, error) {
	ll := v.Logger().WithField("method", "SnapshotVolume")

	device := v.Device()
	if device == "" {
		return nil, errTypes.NewStorageError("raid volume %s must be ensured before snapshot", v.ID())
	}
	if err := v.deps.FS.Sync(); err != nil {
		return nil, err
	}

	if !v.suspendLock.TryLockWithContext(ctx) {
		return nil, errTypes.WrapStorageError(ctx.Err(), "unable to suspend %s", device)
	}
	defer v.suspendLock.Unlock()

	if err := v.deps.LVM.DMSetup(dmSuspend, device); err != nil {
		return nil, err
	}
	defer func() {
		if err := v.deps.LVM.DMSetup(dmResume, device); err != nil {
			ll.Errorf("Unable to resume %s: %v", device, err)
		}
	}()

	descr := fmt.Sprintf("Raid%d disk %s. %s", v.Level(), storage.IndexPlaceholder, description)
	snaps, err := storage.ConcurrentSnapshot(ctx, v.disks, descr, tags, ll)
	if err != nil {
		return nil, err
	}

	lvmGroupCfg, err := v.deps.LVM.BackupVGConfig(v.attrs.VG)
	if err != nil {
		v.destroySnapshots(ctx, snaps)
		return nil, err
	}

	disks := make([]interface{}, 0, len(snaps))
	for _, snap := range snaps {
		disks = append(disks, snap)
	}
	cfg := (&attributes{
		Level:       v.attrs.Level,
		VG:          v.attrs.VG,
		PVUUID:      v.attrs.PVUUID,
		LVMGroupCfg: lvmGroupCfg,
	}).config()
	cfg[storage.KeyType] = Type
	cfg[storage.KeyDescription] = description
	cfg[KeyDisks] = disks
	if len(tags) > 0 {
		cfg[storage.KeyTags] = tags
	}

	snap, err := NewSnapshot(cfg, v.deps)
	if err != nil {
		v.destroySnapshots(ctx, snaps)
		return nil, err
	}
	return snap, nil
}

func (v *Volume) destroySnapshots(ctx context.Context, snaps []storage.Snapshot) {
	for _, snap := range snaps {
		if err := snap.Destroy(ctx); err != nil {
			v.Logger().Errorf("Unable to destroy snapshot %s: %v", snap.ID(), err)
		}
	}
}

// Snapshot is a set of disk snapshots with LVM metadata which reconstructs raid volume
type Snapshot struct {
	*storage.SnapshotBase
	attrs *attributes
	disks []storage.Snapshot
}

// NewSnapshot constructs raid snapshot from configuration, disk snapshots are constructed through registry
func NewSnapshot(cfg storage.Config, deps Deps) (*Snapshot, error) {
	sb, err := storage.NewSnapshotBase(cfg, Type, deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(cfg)
	if err != nil {
		return nil, err
	}

	disks := make([]storage.Snapshot, 0, len(attrs.Disks))
	for i, item := range attrs.Disks {
		disk, err := deps.Registry.Snapshot(item)
		if err != nil {
			return nil, fmt.Errorf("unable to construct disk snapshot #%d of %s: %w", i, sb.ID(), err)
		}
		disks = append(disks, disk)
	}
	attrs.Disks = nil

	s := &Snapshot{SnapshotBase: sb, attrs: attrs, disks: disks}
	sb.SetDriver(s)
	return s, nil
}

// Disks returns disk snapshots in order of array members
func (s *Snapshot) Disks() []storage.Snapshot {
	return s.disks
}

// DestroySnapshot destroys every disk snapshot, the first failure is returned
func (s *Snapshot) DestroySnapshot(ctx context.Context) error {
	for _, disk := range s.disks {
		if err := disk.Destroy(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotStatus reduces statuses of disk snapshots: completed if all are completed,
// otherwise failed if any failed, otherwise in progress if any is in progress
func (s *Snapshot) SnapshotStatus(ctx context.Context) storage.Status {
	statuses := make([]storage.Status, 0, len(s.disks))
	for _, disk := range s.disks {
		statuses = append(statuses, disk.Status(ctx))
	}
	return ReduceStatuses(statuses)
}

// ReduceStatuses returns status of composite snapshot from statuses of its parts
func ReduceStatuses(statuses []storage.Status) storage.Status {
	count := make(map[storage.Status]int)
	for _, status := range statuses {
		count[status]++
	}
	switch {
	case count[storage.StatusCompleted] == len(statuses):
		return storage.StatusCompleted
	case count[storage.StatusFailed] > 0:
		return storage.StatusFailed
	case count[storage.StatusInProgress] > 0:
		return storage.StatusInProgress
	default:
		return storage.StatusUnknown
	}
}

// Attributes returns LVM attributes with configurations of disk snapshots
func (s *Snapshot) Attributes() storage.Config {
	cfg := s.attrs.config()
	if len(s.disks) > 0 {
		cfg[KeyDisks] = storage.ConfigsOf(s.disks)
	}
	return cfg
}
