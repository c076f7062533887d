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

// Package lvm contains code for running and interpreting output of system logical volume manager utils
// such as: pvcreate/pvremove, vgcreate/vgremove, vgcfgbackup/vgcfgrestore, lvcreate/lvresize and dmsetup
package lvm

import (
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base/command"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/util"
)

const (
	// lvmPath is a path in the system to the lvm util
	lvmPath = "/sbin/lvm "
	// PVCreateCmdTmpl create PV cmd
	PVCreateCmdTmpl = lvmPath + "pvcreate --yes %s%s" // add options and PV name
	// PVCreateForceOpt overrides existing signatures on device
	PVCreateForceOpt = "--force "
	// PVCreateUUIDOptTmpl creates PV with known UUID, metadata is restored later with vgcfgrestore
	PVCreateUUIDOptTmpl = "--uuid %s --norestorefile " // add PV UUID
	// PVRemoveCmdTmpl remove PV cmd
	PVRemoveCmdTmpl = lvmPath + "pvremove --yes %s%s" // add options and PV name
	// PVRemoveForceOpt removes PV even if it belongs to VG
	PVRemoveForceOpt = "--force --force "
	// PVResizeCmdTmpl resize PV to the size of underlying device
	PVResizeCmdTmpl = lvmPath + "pvresize %s" // add PV name
	// PVsCmdTmpl print name, VG and UUID of PV
	PVsCmdTmpl = lvmPath + "pvs --noheadings --separator : --options pv_name,vg_name,pv_uuid %s" // add PV name
	// VGCreateCmdTmpl create VG on provided PVs cmd
	VGCreateCmdTmpl = lvmPath + "vgcreate --yes %s %s" // add VG name and PV names
	// VGRemoveCmdTmpl remove VG cmd
	VGRemoveCmdTmpl = lvmPath + "vgremove --yes %s%s" // add options and VG name
	// VGRemoveForceOpt removes VG with all its LVs
	VGRemoveForceOpt = "--force "
	// VGChangeCmdTmpl activate or deactivate VG
	VGChangeCmdTmpl = lvmPath + "vgchange --activate %s %s" // add y/n and VG name
	// VGCfgRestoreCmdTmpl restore VG metadata from file
	VGCfgRestoreCmdTmpl = lvmPath + "vgcfgrestore --file %s %s" // add file and VG name
	// VGCfgBackupCmdTmpl write VG metadata to file
	VGCfgBackupCmdTmpl = lvmPath + "vgcfgbackup --file %s %s" // add file and VG name
	// LVCreateExtentsCmdTmpl create LV on provided VG cmd, size is set in extents like 100%FREE
	LVCreateExtentsCmdTmpl = lvmPath + "lvcreate --yes --extents %s %s" // add extents and VG name
	// LVResizeCmdTmpl resize LV, size is set in extents like 100%VG
	LVResizeCmdTmpl = lvmPath + "lvresize --extents %s %s" // add extents and full LV name
	// LVsInVGCmdTmpl print LVs in VG cmd
	LVsInVGCmdTmpl = lvmPath + "lvs --select vg_name=%s -o lv_name --noheadings" // add VG name
	// LVPathTmpl is a device path of LV
	LVPathTmpl = "/dev/%s/%s" // add VG name and LV name
	// DMSetupCmdTmpl run device-mapper action (suspend, resume) for device
	DMSetupCmdTmpl = "dmsetup %s %s" // add action and device
)

// PVOptions holds options of pvcreate
type PVOptions struct {
	// UUID of PV, used when PV is re-created for restoring VG metadata
	UUID  string
	Force bool
}

// PVInfo is a parsed line of pvs output
type PVInfo struct {
	Name   string
	VGName string
	UUID   string
}

// WrapLVM is an interface that encapsulates operation with system logical volume manager (/sbin/lvm)
type WrapLVM interface {
	PVCreate(dev string, opts PVOptions) error
	PVRemove(dev string, force bool) error
	PVResize(dev string) error
	PVs(dev string) ([]PVInfo, error)
	VGCreate(name string, pvs ...string) error
	VGRemove(name string, force bool) error
	VGChange(name string, available bool) error
	VGCfgRestore(name, file string) error
	RestoreVGConfig(name, cfg string) error
	BackupVGConfig(name string) (string, error)
	LVCreateExtents(vgName, extents string) (string, string, error)
	LVResize(dev, extents string) error
	LVs(vgName string) ([]string, error)
	LVPath(vgName, lvName string) string
	DMSetup(action, dev string) error
}

// LVM is an implementation of WrapLVM interface and is a wrap for system /sbin/lvm util
type LVM struct {
	e   command.CmdExecutor
	log *logrus.Entry
	// tmpDir holds VG metadata files during backup and restore
	tmpDir string
}

// NewLVM is a constructor for LVM struct
func NewLVM(e command.CmdExecutor, l *logrus.Logger) *LVM {
	return &LVM{
		e:      e,
		log:    l.WithField("component", "LVM"),
		tmpDir: os.TempDir(),
	}
}

// run executes command built from tmpl with metrics, metric name is a command without arguments
func (l *LVM) run(tmpl string, args ...interface{}) (string, string, error) {
	return l.e.RunCmd(fmt.Sprintf(tmpl, args...),
		command.UseMetrics(true),
		command.CmdName(cmdName(tmpl)))
}

func cmdName(tmpl string) string {
	var name []string
	for _, field := range strings.Fields(tmpl) {
		if len(name) == 2 || strings.ContainsAny(field, "%-") {
			break
		}
		name = append(name, field)
	}
	return strings.Join(name, " ")
}

// PVCreate creates physical volume based on provided device or partition
// Receives device path and PVOptions
// Returns error if something went wrong
func (l *LVM) PVCreate(dev string, opts PVOptions) error {
	var options string
	if opts.Force {
		options += PVCreateForceOpt
	}
	if opts.UUID != "" {
		options += fmt.Sprintf(PVCreateUUIDOptTmpl, opts.UUID)
	}
	_, _, err := l.run(PVCreateCmdTmpl, options, dev)
	return err
}

// PVRemove removes physical volume, ignore error if PV doesn't exist
// Receives name of a physical volume to delete
// Returns error if something went wrong
func (l *LVM) PVRemove(dev string, force bool) error {
	var options string
	if force {
		options = PVRemoveForceOpt
	}
	_, stdErr, err := l.run(PVRemoveCmdTmpl, options, dev)
	if err != nil && strings.Contains(stdErr, "No PV label found") {
		return nil
	}
	return err
}

// PVResize resizes physical volume to the size of its device
func (l *LVM) PVResize(dev string) error {
	_, _, err := l.run(PVResizeCmdTmpl, dev)
	return err
}

// PVs returns information about physical volume on dev
// Returns empty slice if dev isn't a physical volume
func (l *LVM) PVs(dev string) ([]PVInfo, error) {
	stdout, stdErr, err := l.run(PVsCmdTmpl, dev)
	if err != nil {
		if strings.Contains(stdErr, "Failed to find physical volume") {
			return nil, nil
		}
		return nil, err
	}

	var pvs []PVInfo
	for _, line := range util.SplitAndTrimSpace(stdout, "\n") {
		// /dev/md0:vg0:H3rxE6-2iAg-1REQ-rOeX-7bz3-iPrh-YBXgxN
		fields := strings.Split(line, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: unexpected pvs output line %q", errTypes.ErrorFailedParsing, line)
		}
		pvs = append(pvs, PVInfo{Name: fields[0], VGName: fields[1], UUID: fields[2]})
	}
	return pvs, nil
}

// VGCreate creates volume group based on provided physical volumes (pvs)
// Receives name of VG to create and names of physical volumes which VG should based on
// Returns StorageError if VG with the same name already exists, it could belong to another array
func (l *LVM) VGCreate(name string, pvs ...string) error {
	_, stdErr, err := l.run(VGCreateCmdTmpl, name, strings.Join(pvs, " "))
	if err != nil && strings.Contains(stdErr, "already exists") {
		return errTypes.WrapStorageError(err, "volume group %s already exists", name)
	}
	return err
}

// VGRemove removes volume group, ignore error if VG doesn't exist
// Receives name of VG to remove, with force all LVs of VG are removed too
// Returns error if something went wrong
func (l *LVM) VGRemove(name string, force bool) error {
	var options string
	if force {
		options = VGRemoveForceOpt
	}
	_, stdErr, err := l.run(VGRemoveCmdTmpl, options, name)
	if err != nil && strings.Contains(stdErr, "not found") {
		return nil
	}
	return err
}

// VGChange activates (available is true) or deactivates volume group
func (l *LVM) VGChange(name string, available bool) error {
	activate := "n"
	if available {
		activate = "y"
	}
	_, _, err := l.run(VGChangeCmdTmpl, activate, name)
	return err
}

// VGCfgRestore restores metadata of VG from file
func (l *LVM) VGCfgRestore(name, file string) error {
	_, _, err := l.run(VGCfgRestoreCmdTmpl, file, name)
	return err
}

// RestoreVGConfig restores metadata of VG from base64 encoded vgcfgbackup output
// Receives name of VG and encoded metadata
// Returns error if something went wrong
func (l *LVM) RestoreVGConfig(name, cfg string) error {
	data, err := base64.StdEncoding.DecodeString(cfg)
	if err != nil {
		return fmt.Errorf("%w: VG %s config isn't base64 encoded: %v", errTypes.ErrorFailedParsing, name, err)
	}

	file, err := ioutil.TempFile(l.tmpDir, name+"-*.cfg")
	if err != nil {
		return err
	}
	defer l.removeFile(file.Name())

	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("unable to write VG %s config to %s: %w", name, file.Name(), err)
	}

	return l.VGCfgRestore(name, file.Name())
}

// BackupVGConfig returns base64 encoded metadata of VG
func (l *LVM) BackupVGConfig(name string) (string, error) {
	file, err := ioutil.TempFile(l.tmpDir, name+"-*.cfg")
	if err != nil {
		return "", err
	}
	_ = file.Close()
	defer l.removeFile(file.Name())

	if _, _, err = l.run(VGCfgBackupCmdTmpl, file.Name(), name); err != nil {
		return "", err
	}

	data, err := ioutil.ReadFile(file.Name())
	if err != nil {
		return "", fmt.Errorf("unable to read VG %s config from %s: %w", name, file.Name(), err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (l *LVM) removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		l.log.WithField("method", "removeFile").Warnf("Unable to remove %s: %v", path, err)
	}
}

// LVCreateExtents creates logical volume in volume group
// Receives name of VG and extents like 100%FREE
// Returns stdout and stderr of lvcreate, name of created LV is printed there
func (l *LVM) LVCreateExtents(vgName, extents string) (string, string, error) {
	return l.run(LVCreateExtentsCmdTmpl, extents, vgName)
}

// LVResize resizes logical volume
// Receives full name of LV and extents like 100%VG
func (l *LVM) LVResize(dev, extents string) error {
	_, _, err := l.run(LVResizeCmdTmpl, extents, dev)
	return err
}

// LVs collects names of LVs for given volume group
func (l *LVM) LVs(vgName string) ([]string, error) {
	stdout, _, err := l.run(LVsInVGCmdTmpl, vgName)
	if err != nil {
		return nil, err
	}
	return util.SplitAndTrimSpace(stdout, "\n"), nil
}

// LVPath returns path of LV device node
func (l *LVM) LVPath(vgName, lvName string) string {
	return fmt.Sprintf(LVPathTmpl, vgName, lvName)
}

// DMSetup runs device-mapper action such as suspend or resume for device
func (l *LVM) DMSetup(action, dev string) error {
	_, _, err := l.run(DMSetupCmdTmpl, action, dev)
	return err
}
