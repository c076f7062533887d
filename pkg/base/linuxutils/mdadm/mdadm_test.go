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

package mdadm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/mocks"
)

var testLogger = logrus.New()

const mdstatTwoArrays = `Personalities : [raid1] [raid0]
md0 : active raid0 loop3[1] loop2[0]
      2093056 blocks super 1.2 512k chunks

md1 : active raid1 loop1[1] loop0[0](F)
      1046528 blocks super 1.2 [2/2] [UU]

unused devices: <none>
`

func TestMdadm_Create(t *testing.T) {
	var (
		e = &mocks.GoMockExecutor{}
		m = NewMdadm(e, testLogger)
	)

	cmd := fmt.Sprintf(CreateCmdTmpl, "/dev/md0", ForceOpt+AssumeCleanOpt+fmt.Sprintf(MetadataOptTmpl, DefaultMetadata),
		1, 2, "/dev/loop0 /dev/loop1")
	assert.Equal(t, "/sbin/mdadm --create /dev/md0 --run --force --assume-clean --metadata=default "+
		"--level=1 --raid-devices=2 /dev/loop0 /dev/loop1", cmd)
	e.OnCommand(cmd).Return("", "", nil).Times(1)

	err := m.Create("/dev/md0", CreateOptions{Level: 1, Force: true, AssumeClean: true, Metadata: DefaultMetadata},
		"/dev/loop0", "/dev/loop1")
	assert.Nil(t, err)
	e.AssertExpectations(t)
}

func TestMdadm_ManageCommands(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		m           = NewMdadm(e, testLogger)
		dev         = "/dev/md0"
		expectedErr = errors.New("error")
	)

	e.OnCommand(fmt.Sprintf(AssembleCmdTmpl, dev, "/dev/loop0 /dev/loop1")).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(AddCmdTmpl, dev, "/dev/loop2")).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(GrowRaidDevicesCmdTmpl, dev, 3)).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(GrowMaxSizeCmdTmpl, dev)).Return("", "", nil).Times(1)
	e.OnCommand(fmt.Sprintf(StopCmdTmpl, dev)).Return("", "", expectedErr).Times(1)

	assert.Nil(t, m.Assemble(dev, "/dev/loop0", "/dev/loop1"))
	assert.Nil(t, m.Add(dev, "/dev/loop2"))
	assert.Nil(t, m.GrowRaidDevices(dev, 3))
	assert.Nil(t, m.GrowMaxSize(dev))
	assert.Equal(t, expectedErr, m.Stop(dev))
	e.AssertExpectations(t)
}

func TestMdadm_Remove(t *testing.T) {
	var (
		e           = &mocks.GoMockExecutor{}
		m           = NewMdadm(e, testLogger)
		dev         = "/dev/md0"
		cmd         = fmt.Sprintf(RemoveCmdTmpl, dev)
		expectedErr = errors.New("error")
	)

	e.OnCommand(cmd).Return("", "", nil).Times(1)
	assert.Nil(t, m.Remove(dev))

	e.OnCommand(cmd).Return("", "mdadm: error opening /dev/md0: No such file or directory", expectedErr).Times(1)
	assert.Nil(t, m.Remove(dev))

	e.OnCommand(cmd).Return("", "mdadm: Cannot remove /dev/md0: Device or resource busy", expectedErr).Times(1)
	assert.Equal(t, expectedErr, m.Remove(dev))
}

func TestMdadm_WaitIgnoresError(t *testing.T) {
	var (
		e   = &mocks.GoMockExecutor{}
		m   = NewMdadm(e, testLogger)
		dev = "/dev/md0"
	)

	e.OnCommand(fmt.Sprintf(WaitCmdTmpl, dev)).Return("", "", errors.New("exit status 1")).Times(1)
	m.Wait(dev)
	e.AssertExpectations(t)
}

func TestMdadm_ParseMdstat(t *testing.T) {
	arrays := parseMdstat(mdstatTwoArrays)
	assert.Equal(t, []Array{
		{Name: "md0", Level: "raid0", Members: []string{"loop3", "loop2"}},
		{Name: "md1", Level: "raid1", Members: []string{"loop1", "loop0"}},
	}, arrays)

	assert.Empty(t, parseMdstat("Personalities : \nunused devices: <none>\n"))
}

func TestMdadm_FindDevice(t *testing.T) {
	var (
		e = &mocks.GoMockExecutor{}
		m = NewMdadm(e, testLogger)
	)
	e.OnCommand(MdstatCmd).Return(mdstatTwoArrays, "", nil)

	dev, err := m.FindDevice("/dev/loop0", "/dev/loop1")
	assert.Nil(t, err)
	assert.Equal(t, "/dev/md1", dev)

	_, err = m.FindDevice("/dev/loop0", "/dev/loop2")
	assert.True(t, errors.Is(err, errTypes.ErrorNotFound))
}

func TestMdadm_FindFreeDeviceName(t *testing.T) {
	var (
		e = &mocks.GoMockExecutor{}
		m = NewMdadm(e, testLogger)
	)
	e.OnCommand(MdstatCmd).Return(mdstatTwoArrays, "", nil).Times(1)

	dev, err := m.FindFreeDeviceName()
	assert.Nil(t, err)
	assert.Equal(t, "/dev/md2", dev)

	e.OnCommand(MdstatCmd).Return("", "", errors.New("no mdstat")).Times(1)
	_, err = m.FindFreeDeviceName()
	assert.NotNil(t, err)
}

func TestMdadm_WaitForArray(t *testing.T) {
	var (
		e = &mocks.GoMockExecutor{}
		m = NewMdadm(e, testLogger)
	)
	m.pollInterval = time.Millisecond

	e.OnCommand(MdstatCmd).Return("unused devices: <none>\n", "", nil).Times(2)
	e.OnCommand(MdstatCmd).Return(mdstatTwoArrays, "", nil).Times(1)
	assert.Nil(t, m.WaitForArray(context.Background(), "/dev/md1", time.Second))

	e.OnCommand(MdstatCmd).Return(mdstatTwoArrays, "", nil)
	err := m.WaitForArray(context.Background(), "/dev/md7", 20*time.Millisecond)
	assert.True(t, errTypes.IsStorageError(err))
}
