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

// Package raid contains composite volume which assembles mdadm array from child volumes
// and stacks LVM volume group with a single logical volume on top of it
package raid

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	lock "github.com/viney-shih/go-lock"

	"github.com/dell/storagevirt/pkg/base"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/featureconfig"
	"github.com/dell/storagevirt/pkg/base/linuxutils/fs"
	"github.com/dell/storagevirt/pkg/base/linuxutils/lvm"
	"github.com/dell/storagevirt/pkg/base/linuxutils/mdadm"
	"github.com/dell/storagevirt/pkg/base/polling"
	"github.com/dell/storagevirt/pkg/storage"
)

// Type is a registry tag of raid volumes and snapshots
const Type = "raid"

// Attributes of raid volume and snapshot configuration
const (
	KeyDisks       = "disks"
	KeyRaidPV      = "raid_pv"
	KeyLevel       = "level"
	KeyVG          = "vg"
	KeyPVUUID      = "pv_uuid"
	KeyLVMGroupCfg = "lvm_group_cfg"
)

const (
	// allocates all extents of volume group to logical volume on create
	lvCreateExtents = "100%FREE"
	// extends logical volume to the whole volume group after growth
	lvResizeExtents = "100%VG"
)

var (
	lvCreatedRe = regexp.MustCompile(`Logical volume "([^"]+)" created`)
	// suffix which cloneVGName appends to volume group name
	cloneSuffixRe = regexp.MustCompile(`-[0-9a-f]{8}$`)
)

// cloneVGName returns name of volume group for a clone of volume with volume group vg.
// Suffix of a previous clone is replaced, so names don't grow with every clone
func cloneVGName(vg string) string {
	return cloneSuffixRe.ReplaceAllString(vg, "") + "-" + uuid.New().String()[:8]
}

// Deps holds collaborators of raid volumes, they are shared by all volumes of the registry
type Deps struct {
	Registry *storage.Registry
	LVM      lvm.WrapLVM
	Mdadm    mdadm.WrapMdadm
	FS       fs.WrapFS
	Logger   *logrus.Logger
	// DeviceWaitTimeout bounds waiting for device node of logical volume
	DeviceWaitTimeout time.Duration
	// ArrayWaitTimeout bounds waiting for created array in /proc/mdstat
	ArrayWaitTimeout time.Duration
	// WaitForDevice is polling.WaitForDevice if not set
	WaitForDevice func(ctx context.Context, path string, timeout time.Duration) error
	// Features of raid volumes, all known features are enabled if not set
	Features featureconfig.FeatureChecker
}

func (d *Deps) fillDefaults() {
	if d.DeviceWaitTimeout == 0 {
		d.DeviceWaitTimeout = base.DefaultDeviceWaitTimeout
	}
	if d.ArrayWaitTimeout == 0 {
		d.ArrayWaitTimeout = base.DefaultArrayWaitTimeout
	}
	if d.WaitForDevice == nil {
		d.WaitForDevice = polling.WaitForDevice
	}
}

// Register registers raid volume and snapshot types in deps.Registry
func Register(deps Deps) {
	deps.fillDefaults()
	deps.Registry.RegisterVolume(Type, func(cfg storage.Config) (storage.Volume, error) {
		return NewVolume(cfg, deps)
	})
	deps.Registry.RegisterSnapshot(Type, func(cfg storage.Config) (storage.Snapshot, error) {
		return NewSnapshot(cfg, deps)
	})
}

// attributes are shared by raid volume and snapshot configurations
type attributes struct {
	Disks       []interface{} `mapstructure:"disks"`
	RaidPV      string        `mapstructure:"raid_pv"`
	Level       *int          `mapstructure:"level"`
	VG          string        `mapstructure:"vg"`
	PVUUID      string        `mapstructure:"pv_uuid"`
	LVMGroupCfg string        `mapstructure:"lvm_group_cfg"`
}

func decodeAttributes(cfg storage.Config) (*attributes, error) {
	attrs := &attributes{}
	if err := storage.DecodeAttributes(map[string]interface{}(cfg), attrs); err != nil {
		return nil, err
	}
	// volume group could be persisted as path by older agents
	if attrs.VG != "" {
		attrs.VG = filepath.Base(attrs.VG)
	}
	if attrs.LVMGroupCfg != "" && attrs.VG == "" {
		return nil, errTypes.NewStorageError("%s is set without %s", KeyLVMGroupCfg, KeyVG)
	}
	return attrs, nil
}

func (a *attributes) config() storage.Config {
	cfg := storage.Config{}
	if a.Level != nil {
		cfg[KeyLevel] = *a.Level
	}
	for key, value := range map[string]string{
		KeyRaidPV:      a.RaidPV,
		KeyVG:          a.VG,
		KeyPVUUID:      a.PVUUID,
		KeyLVMGroupCfg: a.LVMGroupCfg,
	} {
		if value != "" {
			cfg[key] = value
		}
	}
	return cfg
}

func isSupportedLevel(level int) bool {
	switch level {
	case 0, 1, 5, 10:
		return true
	}
	return false
}

// Volume is a raid array over child volumes with LVM logical volume on top of it.
// Device of the volume is the logical volume
type Volume struct {
	*storage.VolumeBase
	deps  Deps
	attrs *attributes
	disks []storage.Volume
	// held while device mapper target is suspended
	suspendLock *lock.CASMutex
}

// NewVolume constructs raid volume from configuration, child volumes are constructed through registry
func NewVolume(cfg storage.Config, deps Deps) (*Volume, error) {
	if deps.Features == nil {
		deps.Features = featureconfig.NewFeatureConfigWith(featureconfig.Known...)
	}
	vb, err := storage.NewVolumeBase(cfg, Type, deps.Features, deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(cfg)
	if err != nil {
		return nil, err
	}

	disks := make([]storage.Volume, 0, len(attrs.Disks))
	for i, item := range attrs.Disks {
		disk, err := deps.Registry.Volume(item)
		if err != nil {
			return nil, fmt.Errorf("unable to construct disk #%d of raid volume %s: %w", i, vb.ID(), err)
		}
		disks = append(disks, disk)
	}
	attrs.Disks = nil

	v := &Volume{
		VolumeBase:  vb,
		deps:        deps,
		attrs:       attrs,
		disks:       disks,
		suspendLock: lock.NewCASMutex(),
	}
	vb.SetDriver(v)
	return v, nil
}

// Disks returns child volumes in order of array members
func (v *Volume) Disks() []storage.Volume {
	return v.disks
}

// Level returns raid level, -1 if it isn't set
func (v *Volume) Level() int {
	if v.attrs.Level == nil {
		return -1
	}
	return *v.attrs.Level
}

// RaidPV returns device of assembled array
func (v *Volume) RaidPV() string {
	return v.attrs.RaidPV
}

// VG returns name of volume group on array
func (v *Volume) VG() string {
	return v.attrs.VG
}

// PVUUID returns uuid of LVM physical volume on array
func (v *Volume) PVUUID() string {
	return v.attrs.PVUUID
}

// LVMGroupCfg returns base64 encoded backup of volume group metadata
func (v *Volume) LVMGroupCfg() string {
	return v.attrs.LVMGroupCfg
}

// RequiredAttributes returns attributes which must be set before array is assembled
func (v *Volume) RequiredAttributes() []string {
	return []string{KeyLevel, KeyVG, KeyDisks}
}

// Attributes returns raid attributes with configurations of child volumes
func (v *Volume) Attributes() storage.Config {
	cfg := v.attrs.config()
	if len(v.disks) > 0 {
		cfg[KeyDisks] = storage.ConfigsOf(v.disks)
	}
	return cfg
}

// PrepareVolume restores child volumes from pending snapshot, ensures them and assembles array.
// Array is created on the first ensure, later ensures assemble it and restore volume group from lvm_group_cfg
func (v *Volume) PrepareVolume(ctx context.Context) error {
	ll := v.Logger().WithField("method", "PrepareVolume")

	if err := v.restoreFromSnapshot(ctx); err != nil {
		return err
	}
	if err := v.CheckAttrs(); err != nil {
		return err
	}
	if !isSupportedLevel(*v.attrs.Level) {
		return errTypes.NewStorageError("unknown raid level: %d", *v.attrs.Level)
	}

	devices := make([]string, 0, len(v.disks))
	for i, disk := range v.disks {
		if err := disk.Ensure(ctx); err != nil {
			return fmt.Errorf("unable to ensure disk #%d: %w", i, err)
		}
		devices = append(devices, disk.Device())
	}
	ll.Debugf("Disks are ensured: %v", devices)

	var (
		raidDev, device string
		err             error
	)
	if v.attrs.LVMGroupCfg != "" {
		raidDev, device, err = v.assemble(ctx, devices)
	} else {
		raidDev, device, err = v.create(ctx, devices)
	}
	if err != nil {
		return err
	}
	v.attrs.RaidPV = raidDev
	v.SetDevice(device)
	return nil
}

// restoreFromSnapshot restores every disk from the disk snapshot and takes LVM attributes of snapshot.
// Disks restored before a failure are destroyed
func (v *Volume) restoreFromSnapshot(ctx context.Context) error {
	pending, err := v.PendingSnapshot()
	if err != nil || pending == nil {
		return err
	}
	snap, ok := pending.(*Snapshot)
	if !ok {
		return errTypes.NewStorageError("unable to restore raid volume from %s snapshot", pending.Type())
	}
	ll := v.Logger().WithField("method", "restoreFromSnapshot")
	ll.Infof("Restoring volume from snapshot %s", snap.ID())

	disks := make([]storage.Volume, 0, len(snap.disks))
	for i, diskSnap := range snap.disks {
		disk, err := diskSnap.Restore(ctx)
		if err != nil {
			for _, restored := range disks {
				if destroyErr := restored.Destroy(ctx, storage.DestroyOptions{Force: true}); destroyErr != nil {
					ll.Errorf("Unable to destroy restored disk %s: %v", restored.ID(), destroyErr)
				}
			}
			return fmt.Errorf("unable to restore disk #%d from snapshot %s: %w", i, diskSnap.ID(), err)
		}
		disks = append(disks, disk)
	}

	v.disks = disks
	v.attrs.VG = snap.attrs.VG
	v.attrs.Level = snap.attrs.Level
	v.attrs.PVUUID = snap.attrs.PVUUID
	v.attrs.LVMGroupCfg = snap.attrs.LVMGroupCfg
	v.ClearSnap()
	return nil
}

// assemble finds or assembles existing array and restores volume group on it.
// Volume group isn't restored if array is already assembled and its logical volume is listed,
// array assembled by a failed call is stopped
// Returns device of array and device of logical volume
func (v *Volume) assemble(ctx context.Context, devices []string) (raidDev string, device string, err error) {
	var (
		ll        = v.Logger().WithField("method", "assemble")
		vg        = v.attrs.VG
		md        string
		assembled bool
		restored  bool
	)

	md, err = v.deps.Mdadm.FindDevice(devices...)
	if err != nil {
		if !errTypes.IsNotFound(err) {
			return "", "", err
		}
		if md, err = v.deps.Mdadm.FindFreeDeviceName(); err != nil {
			return "", "", err
		}
		ll.Infof("Assembling array %s from %v", md, devices)
		if err = v.deps.Mdadm.Assemble(md, devices...); err != nil {
			return "", "", err
		}
		assembled = true
		v.deps.Mdadm.Wait(md)
	}
	defer func() {
		if err == nil || !assembled {
			return
		}
		ll.Errorf("Ensure failed: %v. Stopping array %s", err, md)
		if restored {
			if deactivateErr := v.deps.LVM.VGChange(vg, false); deactivateErr != nil {
				ll.Warnf("Unable to deactivate volume group %s: %v", vg, deactivateErr)
			}
		}
		if stopErr := v.deps.Mdadm.Stop(md); stopErr != nil {
			ll.Warnf("Unable to stop array %s: %v", md, stopErr)
			return
		}
		if removeErr := v.deps.Mdadm.Remove(md); removeErr != nil {
			ll.Warnf("Unable to remove array %s: %v", md, removeErr)
		}
	}()

	active := false
	if !assembled {
		lvs, lvsErr := v.deps.LVM.LVs(vg)
		active = lvsErr == nil && len(lvs) > 0
	}
	if active {
		ll.Infof("Volume group %s is found on assembled array %s", vg, md)
	} else {
		pvs, pvsErr := v.deps.LVM.PVs(md)
		if pvsErr != nil {
			ll.Warnf("Unable to read physical volume on %s: %v", md, pvsErr)
		}
		if len(pvs) == 0 {
			if err = v.deps.LVM.PVCreate(md, lvm.PVOptions{UUID: v.attrs.PVUUID}); err != nil {
				return "", "", err
			}
		}
		if err = v.deps.LVM.RestoreVGConfig(vg, v.attrs.LVMGroupCfg); err != nil {
			return "", "", err
		}
		restored = true
	}

	lvs, err := v.deps.LVM.LVs(vg)
	if err != nil {
		return "", "", err
	}
	if len(lvs) == 0 {
		return "", "", errTypes.NewStorageError("no logical volumes found in %s volume group", vg)
	}
	device = v.deps.LVM.LVPath(vg, lvs[0])

	if err = v.deps.LVM.VGChange(vg, true); err != nil {
		return "", "", err
	}
	if err = v.deps.WaitForDevice(ctx, device, v.deps.DeviceWaitTimeout); err != nil {
		return "", "", err
	}
	return md, device, nil
}

// create creates array with volume group and logical volume, lvm_group_cfg and pv_uuid are set on success.
// Layers created by a failed call are removed in reverse order
// Returns device of array and device of logical volume
func (v *Volume) create(ctx context.Context, devices []string) (raidDev string, device string, err error) {
	var (
		ll   = v.Logger().WithField("method", "create")
		vg   = v.attrs.VG
		md   string
		undo []func() error
	)
	defer func() {
		if err == nil {
			return
		}
		ll.Errorf("Creation failed: %v. Removing %d created layers", err, len(undo))
		for i := len(undo) - 1; i >= 0; i-- {
			if undoErr := undo[i](); undoErr != nil {
				ll.Warnf("Unable to remove created layer: %v", undoErr)
			}
		}
		v.attrs.PVUUID = ""
		v.attrs.LVMGroupCfg = ""
	}()

	md, err = v.deps.Mdadm.FindFreeDeviceName()
	if err != nil {
		return "", "", err
	}
	ll.Infof("Creating raid%d array %s from %v", *v.attrs.Level, md, devices)
	err = v.deps.Mdadm.Create(md, mdadm.CreateOptions{
		Level:       *v.attrs.Level,
		Force:       true,
		AssumeClean: true,
		Metadata:    mdadm.DefaultMetadata,
	}, devices...)
	if err != nil {
		return "", "", err
	}
	undo = append(undo, func() error {
		if err := v.deps.Mdadm.Stop(md); err != nil {
			return err
		}
		if err := v.deps.Mdadm.Remove(md); err != nil {
			return err
		}
		return v.deps.FS.RmFile(md)
	})
	if err = v.deps.Mdadm.WaitForArray(ctx, md, v.deps.ArrayWaitTimeout); err != nil {
		return "", "", err
	}
	v.deps.Mdadm.Wait(md)

	if err = v.deps.LVM.PVCreate(md, lvm.PVOptions{Force: true}); err != nil {
		return "", "", err
	}
	undo = append(undo, func() error { return v.deps.LVM.PVRemove(md, true) })
	pvs, err := v.deps.LVM.PVs(md)
	if err != nil {
		return "", "", err
	}
	if len(pvs) == 0 {
		return "", "", errTypes.NewStorageError("physical volume isn't found on %s after creation", md)
	}
	v.attrs.PVUUID = pvs[0].UUID

	// fails if volume group with this name exists, it belongs to another array then
	if err = v.deps.LVM.VGCreate(vg, md); err != nil {
		return "", "", err
	}
	undo = append(undo, func() error { return v.deps.LVM.VGRemove(vg, true) })
	stdout, stderr, err := v.deps.LVM.LVCreateExtents(vg, lvCreateExtents)
	if err != nil {
		return "", "", err
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	match := lvCreatedRe.FindStringSubmatch(strings.TrimSpace(lines[len(lines)-1]))
	if match == nil {
		return "", "", fmt.Errorf("logical volume creation failed: %s\n%s", stdout, stderr)
	}
	device = v.deps.LVM.LVPath(vg, match[1])
	if err = v.deps.WaitForDevice(ctx, device, v.deps.DeviceWaitTimeout); err != nil {
		return "", "", err
	}

	cfg, err := v.deps.LVM.BackupVGConfig(vg)
	if err != nil {
		return "", "", err
	}
	v.attrs.LVMGroupCfg = cfg
	return md, device, nil
}

// ReleaseVolume backs up and removes volume group, stops array and detaches disks.
// With force failures of LVM and array teardown are logged and teardown continues
func (v *Volume) ReleaseVolume(ctx context.Context, force bool) error {
	ll := v.Logger().WithField("method", "ReleaseVolume")

	step := func(err error, what string) error {
		if err == nil {
			return nil
		}
		if !force {
			return fmt.Errorf("unable to %s: %w", what, err)
		}
		ll.Warnf("Unable to %s, continue because of force: %v", what, err)
		return nil
	}

	if vg := v.attrs.VG; vg != "" {
		cfg, err := v.deps.LVM.BackupVGConfig(vg)
		if err == nil {
			v.attrs.LVMGroupCfg = cfg
		}
		if err = step(err, "backup volume group "+vg); err != nil {
			return err
		}
		if err = step(v.deps.LVM.VGRemove(vg, true), "remove volume group "+vg); err != nil {
			return err
		}
	}

	if raidDev := v.attrs.RaidPV; raidDev != "" {
		if err := step(v.deps.LVM.PVRemove(raidDev, true), "remove physical volume "+raidDev); err != nil {
			return err
		}
		if err := step(v.deps.Mdadm.Stop(raidDev), "stop array "+raidDev); err != nil {
			return err
		}
		if err := step(v.deps.Mdadm.Remove(raidDev), "remove array "+raidDev); err != nil {
			return err
		}
		if err := v.deps.FS.RmFile(raidDev); err != nil {
			ll.Debugf("Unable to remove device node %s: %v", raidDev, err)
		}
		v.attrs.RaidPV = ""
	}

	for i, disk := range v.disks {
		if err := disk.Detach(ctx, force); err != nil {
			return fmt.Errorf("unable to detach disk #%d: %w", i, err)
		}
	}
	return nil
}

// DestroyVolume destroys child volumes if opts.RemoveDisks is set
func (v *Volume) DestroyVolume(ctx context.Context, opts storage.DestroyOptions) error {
	if !opts.RemoveDisks {
		return nil
	}
	for i, disk := range v.disks {
		if err := disk.Destroy(ctx, opts); err != nil {
			return fmt.Errorf("unable to destroy disk #%d: %w", i, err)
		}
	}
	v.disks = nil
	return nil
}

// CloneVolume clones child volumes, strips identity of array and renames volume group
func (v *Volume) CloneVolume(cfg storage.Config) error {
	disks := make([]interface{}, 0, len(v.disks))
	for i, disk := range v.disks {
		clone, err := disk.Clone()
		if err != nil {
			return fmt.Errorf("unable to clone disk #%d: %w", i, err)
		}
		disks = append(disks, clone)
	}
	cfg[KeyDisks] = disks
	// clone gets its own volume group, source one could be active on the host
	if v.attrs.VG != "" {
		cfg[KeyVG] = cloneVGName(v.attrs.VG)
	}
	for _, key := range []string{KeyPVUUID, KeyLVMGroupCfg, KeyRaidPV, storage.KeyDevice} {
		delete(cfg, key)
	}
	return nil
}
