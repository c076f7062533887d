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

package lvm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/mocks"
)

var (
	testLogger = logrus.New()
	vgConfig   = "vg0 {\n\tid = \"9xWp0n-Hu4E-Wjdm-0uMP-1Lxc-aBcd-Ef0123\"\n}\n"
)

func newTestLVM(t *testing.T, e *mocks.GoMockExecutor) *LVM {
	l := NewLVM(e, testLogger)
	l.tmpDir = t.TempDir()
	return l
}

func TestLinuxUtils_CmdName(t *testing.T) {
	assert.Equal(t, "/sbin/lvm pvcreate", cmdName(PVCreateCmdTmpl))
	assert.Equal(t, "/sbin/lvm vgcfgrestore", cmdName(VGCfgRestoreCmdTmpl))
	assert.Equal(t, "dmsetup", cmdName(DMSetupCmdTmpl))
}

func TestLinuxUtils_PVCreate(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		l   = newTestLVM(t, e)
		dev = "/dev/md0"
	)
	e.OnCommand(fmt.Sprintf(PVCreateCmdTmpl, PVCreateForceOpt, dev)).Return("", "", nil).Times(1)
	assert.Nil(t, l.PVCreate(dev, PVOptions{Force: true}))

	uuidOpt := fmt.Sprintf(PVCreateUUIDOptTmpl, "H3rxE6-2iAg")
	e.OnCommand(fmt.Sprintf(PVCreateCmdTmpl, uuidOpt, dev)).Return("", "", nil).Times(1)
	assert.Nil(t, l.PVCreate(dev, PVOptions{UUID: "H3rxE6-2iAg"}))
	assert.Equal(t, "/sbin/lvm pvcreate --yes --uuid H3rxE6-2iAg --norestorefile /dev/md0",
		fmt.Sprintf(PVCreateCmdTmpl, uuidOpt, dev))

	e.AssertExpectations(t)
}

func TestLinuxUtils_PVRemove(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		l           = newTestLVM(t, e)
		dev         = "/dev/md0"
		cmd         = fmt.Sprintf(PVRemoveCmdTmpl, PVRemoveForceOpt, dev)
		expectedErr = errors.New("error")
	)

	e.OnCommand(cmd).Return("", "", nil).Times(1)
	assert.Nil(t, l.PVRemove(dev, true))

	e.OnCommand(cmd).Return("", "No PV label found on /dev/md0", expectedErr).Times(1)
	assert.Nil(t, l.PVRemove(dev, true))

	e.OnCommand(cmd).Return("", "some another error", expectedErr).Times(1)
	assert.Equal(t, expectedErr, l.PVRemove(dev, true))

	e.OnCommand(fmt.Sprintf(PVRemoveCmdTmpl, "", dev)).Return("", "", nil).Times(1)
	assert.Nil(t, l.PVRemove(dev, false))
}

func TestLinuxUtils_PVs(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		l   = newTestLVM(t, e)
		dev = "/dev/md0"
		cmd = fmt.Sprintf(PVsCmdTmpl, dev)
	)

	e.OnCommand(cmd).Return("  /dev/md0:vg0:H3rxE6-2iAg\n", "", nil).Times(1)
	pvs, err := l.PVs(dev)
	assert.Nil(t, err)
	assert.Equal(t, []PVInfo{{Name: dev, VGName: "vg0", UUID: "H3rxE6-2iAg"}}, pvs)

	e.OnCommand(cmd).Return("", "  Failed to find physical volume \"/dev/md0\".", errors.New("exit 5")).Times(1)
	pvs, err = l.PVs(dev)
	assert.Nil(t, err)
	assert.Empty(t, pvs)

	e.OnCommand(cmd).Return("garbage", "", nil).Times(1)
	_, err = l.PVs(dev)
	assert.NotNil(t, err)
}

func TestLinuxUtils_VGCreate(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		l           = newTestLVM(t, e)
		vg          = "vg0"
		dev1        = "/dev/md0"
		dev2        = "/dev/md1"
		cmd         = fmt.Sprintf(VGCreateCmdTmpl, vg, strings.Join([]string{dev1, dev2}, " "))
		expectedErr = errors.New("error")
	)

	e.OnCommand(cmd).Return("", "", nil).Times(1)
	assert.Nil(t, l.VGCreate(vg, dev1, dev2))

	e.OnCommand(cmd).Return("", "  A volume group called vg0 already exists.", expectedErr).Times(1)
	err := l.VGCreate(vg, dev1, dev2)
	assert.True(t, errTypes.IsStorageError(err))
	assert.True(t, errors.Is(err, expectedErr))
	assert.Contains(t, err.Error(), "vg0 already exists")

	e.OnCommand(cmd).Return("", "", expectedErr).Times(1)
	assert.Equal(t, expectedErr, l.VGCreate(vg, dev1, dev2))
}

func TestLinuxUtils_VGRemove(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		l           = newTestLVM(t, e)
		vg          = "vg0"
		cmd         = fmt.Sprintf(VGRemoveCmdTmpl, VGRemoveForceOpt, vg)
		expectedErr = errors.New("error")
	)

	e.OnCommand(cmd).Return("", "", nil).Times(1)
	assert.Nil(t, l.VGRemove(vg, true))

	e.OnCommand(cmd).Return("", "Volume group \"vg0\" not found", expectedErr).Times(1)
	assert.Nil(t, l.VGRemove(vg, true))

	e.OnCommand(cmd).Return("", "", expectedErr).Times(1)
	assert.Equal(t, expectedErr, l.VGRemove(vg, true))
}

func TestLinuxUtils_VGChange(t *testing.T) {
	var (
		e  = &mocks.GoMockExecutor{}
		l  = newTestLVM(t, e)
		vg = "vg0"
	)

	e.OnCommand(fmt.Sprintf(VGChangeCmdTmpl, "y", vg)).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(VGChangeCmdTmpl, "n", vg)).Return("", "", errors.New("error")).Times(1)

	assert.Nil(t, l.VGChange(vg, true))
	assert.NotNil(t, l.VGChange(vg, false))
}

func TestLinuxUtils_RestoreVGConfig(t *testing.T) {
	var (
		e        = &mocks.GoMockExecutor{}
		l        = newTestLVM(t, e)
		vg       = "vg0"
		restored string
	)

	e.On("RunCmd", mock.MatchedBy(func(cmd string) bool {
		return strings.HasPrefix(cmd, "/sbin/lvm vgcfgrestore --file "+l.tmpDir) && strings.HasSuffix(cmd, " "+vg)
	})).Run(func(args mock.Arguments) {
		file := strings.Fields(args.String(0))[3]
		data, err := ioutil.ReadFile(file)
		assert.Nil(t, err)
		restored = string(data)
	}).Return("", "", nil).Times(1)

	err := l.RestoreVGConfig(vg, base64.StdEncoding.EncodeToString([]byte(vgConfig)))
	assert.Nil(t, err)
	assert.Equal(t, vgConfig, restored)

	// temp file is removed
	files, _ := ioutil.ReadDir(l.tmpDir)
	assert.Empty(t, files)

	err = l.RestoreVGConfig(vg, "not base64 ~~~")
	assert.NotNil(t, err)
	e.AssertExpectations(t)
}

func TestLinuxUtils_BackupVGConfig(t *testing.T) {
	var (
		e  = &mocks.GoMockExecutor{}
		l  = newTestLVM(t, e)
		vg = "vg0"
	)

	e.On("RunCmd", mock.MatchedBy(func(cmd string) bool {
		return strings.HasPrefix(cmd, "/sbin/lvm vgcfgbackup --file ")
	})).Run(func(args mock.Arguments) {
		file := strings.Fields(args.String(0))[3]
		assert.Nil(t, ioutil.WriteFile(file, []byte(vgConfig), 0600))
	}).Return("", "", nil).Times(1)

	cfg, err := l.BackupVGConfig(vg)
	assert.Nil(t, err)
	decoded, err := base64.StdEncoding.DecodeString(cfg)
	assert.Nil(t, err)
	assert.Equal(t, vgConfig, string(decoded))

	files, _ := ioutil.ReadDir(l.tmpDir)
	assert.Empty(t, files)
}

func TestLinuxUtils_BackupVGConfigFail(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		l           = newTestLVM(t, e)
		expectedErr = errors.New("Volume group \"vg0\" not found")
	)

	e.On("RunCmd", mock.Anything).Return("", "", expectedErr).Times(1)

	_, err := l.BackupVGConfig("vg0")
	assert.Equal(t, expectedErr, err)
}

func TestLinuxUtils_LVCreateExtents(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		l   = newTestLVM(t, e)
		cmd = fmt.Sprintf(LVCreateExtentsCmdTmpl, "100%FREE", "vg0")
	)

	assert.Equal(t, "/sbin/lvm lvcreate --yes --extents 100%FREE vg0", cmd)
	e.OnCommand(cmd).Return("  Logical volume \"lvol0\" created.\n", "", nil).Times(1)

	stdout, _, err := l.LVCreateExtents("vg0", "100%FREE")
	assert.Nil(t, err)
	assert.Contains(t, stdout, "lvol0")
}

func TestLinuxUtils_LVResize(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		l   = newTestLVM(t, e)
		dev = "/dev/vg0/lvol0"
	)

	e.OnCommand(fmt.Sprintf(LVResizeCmdTmpl, "100%VG", dev)).Return("", "", nil).Times(1)
	assert.Nil(t, l.LVResize(dev, "100%VG"))
}

func TestLinuxUtils_LVs(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		l           = newTestLVM(t, e)
		vg          = "vg0"
		cmd         = fmt.Sprintf(LVsInVGCmdTmpl, vg)
		expectedErr = errors.New("error")
	)

	e.OnCommand(cmd).Return("  lvol0\n  lvol1", "", nil).Times(1)
	res, err := l.LVs(vg)
	assert.Nil(t, err)
	assert.Equal(t, []string{"lvol0", "lvol1"}, res)

	e.OnCommand(cmd).Return("", "", expectedErr).Times(1)
	res, err = l.LVs(vg)
	assert.NotNil(t, err)
	assert.Empty(t, res)

	assert.Equal(t, "/dev/vg0/lvol0", l.LVPath(vg, "lvol0"))
}

func TestLinuxUtils_DMSetup(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		l   = newTestLVM(t, e)
		dev = "/dev/vg0/lvol0"
	)

	e.OnCommand(fmt.Sprintf(DMSetupCmdTmpl, "suspend", dev)).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(DMSetupCmdTmpl, "resume", dev)).Return("", "", nil).Times(1)

	assert.Nil(t, l.DMSetup("suspend", dev))
	assert.Nil(t, l.DMSetup("resume", dev))
	e.AssertExpectations(t)
}
