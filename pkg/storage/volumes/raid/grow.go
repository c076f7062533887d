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
	"strings"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/storage"
)

// Keys of raid growth configuration
const (
	// GrowthLen is a new count of disks
	GrowthLen = "len"
	// GrowthForeach is a growth configuration applied to every disk
	GrowthForeach = "foreach"
)

// lvresize reports it when array of mirrors got new members but no space
const matchesExistingSize = "matches existing size"

type growth struct {
	Len     int                    `mapstructure:"len"`
	Foreach map[string]interface{} `mapstructure:"foreach"`
}

func (v *Volume) checkLevel() error {
	if v.attrs.Level == nil {
		return errTypes.NewStorageError("missing attribute %q of raid volume %s", KeyLevel, v.ID())
	}
	if level := *v.attrs.Level; level == 0 || level == 10 {
		return errTypes.NewStorageError("raid%d doesn't support growth", level)
	}
	return nil
}

// CheckVolumeGrowth checks growth by disks with "foreach" and by count of disks with "len".
// Disk which doesn't change with "foreach" is skipped. Unchanged configuration is reported as no-op
// for every level, any change of raid0 and raid10 is rejected. Count of disks could only be increased
func (v *Volume) CheckVolumeGrowth(cfg storage.GrowthConfig) error {
	g := &growth{}
	if err := cfg.Decode(g); err != nil {
		return err
	}

	changeDisks := false
	if len(g.Foreach) > 0 {
		for i, disk := range v.disks {
			err := disk.CheckGrowth(storage.GrowthConfig(g.Foreach))
			switch {
			case err == nil:
				changeDisks = true
			case errTypes.IsNoOp(err):
			default:
				return fmt.Errorf("disk #%d: %w", i, err)
			}
		}
	}

	currentLen := len(v.disks)
	changeSize := g.Len != 0 && g.Len != currentLen

	if !changeSize && !changeDisks {
		return errTypes.NewNoOpError("configurations are equal, nothing to do")
	}
	if err := v.checkLevel(); err != nil {
		return err
	}
	if changeSize && g.Len < currentLen {
		return errTypes.NewStorageError("disk count can only be increased")
	}
	return nil
}

// GrowVolume grows disks of newVol with "foreach" and adds clones of the first disk up to "len".
// Then array, physical volume and logical volume are extended. Source volume stays detached and untouched.
// On failure disks created by the growth are destroyed and the growth error is returned
func (v *Volume) GrowVolume(ctx context.Context, newVol storage.Volume, cfg storage.GrowthConfig) (err error) {
	ll := v.Logger().WithField("method", "GrowVolume")

	nv, ok := newVol.(*Volume)
	if !ok {
		return errTypes.NewStorageError("unable to grow raid volume into %s volume", newVol.Type())
	}
	if err = v.checkLevel(); err != nil {
		return err
	}
	g := &growth{}
	if err = cfg.Decode(g); err != nil {
		return err
	}
	currentLen := len(v.disks)
	increaseCount := g.Len != 0 && g.Len != currentLen

	// grown array carries volume group of source, metadata backup is restored under its name
	nv.attrs.VG = v.attrs.VG
	nv.attrs.LVMGroupCfg = v.attrs.LVMGroupCfg
	nv.attrs.PVUUID = v.attrs.PVUUID

	var grown, cloned, added []storage.Volume
	defer func() {
		if err == nil {
			return
		}
		ll.Errorf("Growth failed: %v. Destroying %d grown, %d cloned and %d added disks",
			err, len(grown), len(cloned), len(added))
		// array and volume group of new volume are assembled on these disks
		if detachErr := nv.Detach(ctx, true); detachErr != nil {
			ll.Errorf("Unable to release volume %s: %v", nv.ID(), detachErr)
		}
		for _, disks := range [][]storage.Volume{grown, cloned, added} {
			for _, disk := range disks {
				if destroyErr := disk.Destroy(ctx, storage.DestroyOptions{Force: true}); destroyErr != nil {
					ll.Errorf("Unable to destroy disk %s: %v", disk.ID(), destroyErr)
				}
			}
		}
	}()

	if len(g.Foreach) > 0 {
		if grown, err = v.growDisks(ctx, storage.GrowthConfig(g.Foreach)); err != nil {
			return err
		}
		nv.disks = grown
		if err = nv.Ensure(ctx); err != nil {
			return err
		}
	}

	if increaseCount {
		if len(g.Foreach) == 0 {
			if cloned, err = v.cloneDisksFromSnapshots(ctx); err != nil {
				return err
			}
			nv.disks = cloned
			if err = nv.Ensure(ctx); err != nil {
				return err
			}
		}

		template := nv.disks[0]
		for i := currentLen; i < g.Len; i++ {
			disk, cloneErr := template.Clone()
			if cloneErr != nil {
				return cloneErr
			}
			added = append(added, disk)
			if err = disk.Ensure(ctx); err != nil {
				return err
			}
		}
		devices := make([]string, 0, len(added))
		for _, disk := range added {
			devices = append(devices, disk.Device())
		}
		if err = v.deps.Mdadm.Add(nv.RaidPV(), devices...); err != nil {
			return err
		}
		nv.disks = append(nv.disks, added...)
		if err = v.deps.Mdadm.GrowRaidDevices(nv.RaidPV(), g.Len); err != nil {
			return err
		}
	}

	raidDev := nv.RaidPV()
	v.deps.Mdadm.Wait(raidDev)
	if err = v.deps.Mdadm.GrowMaxSize(raidDev); err != nil {
		return err
	}
	v.deps.Mdadm.Wait(raidDev)

	if err = v.deps.LVM.PVResize(raidDev); err != nil {
		return err
	}
	if err = v.deps.LVM.LVResize(nv.Device(), lvResizeExtents); err != nil {
		if v.Level() != 1 || len(g.Foreach) != 0 || !strings.Contains(err.Error(), matchesExistingSize) {
			return err
		}
		ll.Warnf("Logical volume %s isn't resized: %v", nv.Device(), err)
	}

	// backup of source describes extents before growth
	vgCfg, err := v.deps.LVM.BackupVGConfig(nv.attrs.VG)
	if err != nil {
		return err
	}
	nv.attrs.LVMGroupCfg = vgCfg
	return nil
}

// growDisks grows every disk concurrently. Grown disks are returned in order of disks even on failure
func (v *Volume) growDisks(ctx context.Context, cfg storage.GrowthConfig) ([]storage.Volume, error) {
	cfg = cfg.Without()
	cfg[storage.ResizeFSKey] = false

	outcomes := storage.RunConcurrently(ctx, len(v.disks), func(ctx context.Context, i int) (storage.Volume, error) {
		return v.disks[i].Grow(ctx, cfg)
	})
	grown, err := storage.Collect("grow", outcomes)
	if err != nil {
		return grown, errTypes.WrapStorageError(err, "failed to grow raid disks")
	}
	if len(grown) != len(v.disks) {
		return grown, errTypes.NewStorageError("got malformed disks growth result")
	}
	return grown, nil
}

// cloneDisksFromSnapshots makes a copy of every disk through temporary snapshot.
// Temporary snapshots are destroyed afterwards, clones ensured before a failure are returned with the error
func (v *Volume) cloneDisksFromSnapshots(ctx context.Context) ([]storage.Volume, error) {
	ll := v.Logger().WithField("method", "cloneDisksFromSnapshots")

	descr := fmt.Sprintf("Raid %s temp snapshot No.%s (for growth)", v.ID(), storage.IndexPlaceholder)
	snaps, err := storage.ConcurrentSnapshot(ctx, v.disks, descr, map[string]string{"temp": "1"}, ll)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, snap := range snaps {
			if destroyErr := snap.Destroy(ctx); destroyErr != nil {
				ll.Debugf("Failed to remove temporary snapshot %s: %v", snap.ID(), destroyErr)
			}
		}
	}()

	clones := make([]storage.Volume, 0, len(v.disks))
	for i, disk := range v.disks {
		clone, err := disk.Clone()
		if err != nil {
			return clones, err
		}
		clone.SetSnap(snaps[i])
		clones = append(clones, clone)
		if err = clone.Ensure(ctx); err != nil {
			return clones, err
		}
	}
	return clones, nil
}
