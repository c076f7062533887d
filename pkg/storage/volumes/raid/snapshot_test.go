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
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/mocks"
	"github.com/dell/storagevirt/pkg/storage"
)

// dmSetupCalls returns actions of DMSetup calls in order
func dmSetupCalls(m *mock.Mock) []string {
	var actions []string
	for _, call := range m.Calls {
		if call.Method == "DMSetup" {
			actions = append(actions, call.Arguments.String(0))
		}
	}
	return actions
}

func TestVolume_Snapshot(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 3)
	// the first disk completes the last
	env.fake.DelayOp(mocks.OpSnapshot, vol.Disks()[0].ID(), 30*time.Millisecond)

	snap, err := vol.Snapshot(ctx, "weekly", map[string]string{"env": "qa"})
	assert.Nil(t, err)
	raidSnap := snap.(*Snapshot)
	assert.Equal(t, Type, raidSnap.Type())
	assert.Equal(t, "weekly", raidSnap.Description())
	assert.Len(t, raidSnap.Disks(), 3)
	for i, diskSnap := range raidSnap.Disks() {
		assert.Equal(t, vol.Disks()[i].ID(), diskSnap.(*mocks.FakeSnapshot).VolumeID)
		assert.Equal(t, fmt.Sprintf("Raid1 disk %d. weekly", i), diskSnap.Description())
		assert.Equal(t, "qa", diskSnap.Tags()["env"])
	}

	cfg := raidSnap.Config()
	assert.Equal(t, 1, cfg[KeyLevel])
	assert.Equal(t, testVG, cfg[KeyVG])
	assert.Equal(t, testPVUUID, cfg[KeyPVUUID])
	assert.Equal(t, testVGCfg, cfg[KeyLVMGroupCfg])
	assert.Len(t, cfg[KeyDisks], 3)

	env.fs.AssertCalled(t, "Sync")
	assert.Equal(t, []string{"suspend", "resume"}, dmSetupCalls(&env.lvm.Mock))
	env.lvm.AssertCalled(t, "DMSetup", "suspend", testLVPath)
	assert.Equal(t, storage.StatusCompleted, snap.Status(ctx))
	// volume stays live
	assert.Equal(t, testLVPath, vol.Device())
}

func TestVolume_SnapshotDiskFail(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	env.fake.FailOp(mocks.OpSnapshot, vol.Disks()[1].ID(), mocks.Err)

	snap, err := vol.Snapshot(ctx, "", nil)
	assert.Nil(t, snap)
	var concurrentErr *errTypes.ConcurrentError
	assert.True(t, errors.As(err, &concurrentErr))
	assert.Equal(t, []int{1}, concurrentErr.Indexes())
	assert.Contains(t, err.Error(), "item #1")
	// target isn't left suspended and snapshot of the first disk is destroyed
	assert.Equal(t, []string{"suspend", "resume"}, dmSetupCalls(&env.lvm.Mock))
	assert.Equal(t, 1, strings.Count(strings.Join(env.fake.Calls(), ","), mocks.OpDestroy))

	// suspend lock is released
	env.fake.FailOp(mocks.OpSnapshot, vol.Disks()[1].ID(), nil)
	_, err = vol.Snapshot(ctx, "", nil)
	assert.Nil(t, err)
}

func TestVolume_SnapshotFail(t *testing.T) {
	ctx := context.Background()

	t.Run("detached", func(t *testing.T) {
		env := newTestEnv()
		env.allowAll()
		vol := env.newVolume(t, raidConfig(1, 2))
		_, err := vol.Snapshot(ctx, "", nil)
		assert.True(t, errTypes.IsStorageError(err))
		env.lvm.AssertNotCalled(t, "DMSetup", mock.Anything, mock.Anything)
	})

	t.Run("suspend", func(t *testing.T) {
		env := newTestEnv()
		env.lvm.On("DMSetup", "suspend", testLVPath).Return(mocks.Err)
		env.allowAll()
		vol := env.ensuredVolume(t, 1, 2)
		_, err := vol.Snapshot(ctx, "", nil)
		assert.Equal(t, mocks.Err, err)
		assert.Equal(t, []string{"suspend"}, dmSetupCalls(&env.lvm.Mock))
		assert.NotContains(t, env.fake.Calls(), mocks.OpSnapshot+" "+vol.Disks()[0].ID())
	})

	t.Run("backup volume group", func(t *testing.T) {
		env := newTestEnv()
		env.allowAll()
		vol := env.ensuredVolume(t, 1, 2)
		env.lvm.ExpectedCalls = nil
		env.lvm.On("BackupVGConfig", testVG).Return("", mocks.Err)
		env.allowAll()
		_, err := vol.Snapshot(ctx, "", nil)
		assert.Equal(t, mocks.Err, err)
		assert.Equal(t, []string{"suspend", "resume"}, dmSetupCalls(&env.lvm.Mock))
		assert.Equal(t, 2, strings.Count(strings.Join(env.fake.Calls(), ","), mocks.OpDestroy))
	})

	t.Run("suspended by another snapshot", func(t *testing.T) {
		env := newTestEnv()
		env.allowAll()
		vol := env.ensuredVolume(t, 1, 2)
		vol.suspendLock.Lock()
		defer vol.suspendLock.Unlock()

		ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := vol.Snapshot(ctx, "", nil)
		assert.True(t, errTypes.IsStorageError(err))
		env.lvm.AssertNotCalled(t, "DMSetup", mock.Anything, mock.Anything)
	})
}

func TestReduceStatuses(t *testing.T) {
	var (
		completed  = storage.StatusCompleted
		failed     = storage.StatusFailed
		inProgress = storage.StatusInProgress
		unknown    = storage.StatusUnknown
	)
	testCases := []struct {
		name     string
		statuses []storage.Status
		expected storage.Status
	}{
		{"all completed", []storage.Status{completed, completed, completed}, completed},
		{"one failed, others in progress", []storage.Status{inProgress, failed, inProgress}, failed},
		{"failed and unknown", []storage.Status{failed, unknown}, failed},
		{"in progress", []storage.Status{completed, inProgress}, inProgress},
		{"completed and unknown", []storage.Status{completed, unknown}, unknown},
		{"all unknown", []storage.Status{unknown, unknown}, unknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ReduceStatuses(tc.statuses))
		})
	}
}

func TestSnapshot_Status(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 5, 3)
	snap, err := vol.Snapshot(ctx, "", nil)
	assert.Nil(t, err)
	disks := snap.(*Snapshot).Disks()

	assert.Equal(t, storage.StatusCompleted, snap.Status(ctx))
	for _, disk := range disks {
		env.fake.SetStatus(disk.ID(), storage.StatusInProgress)
	}
	assert.Equal(t, storage.StatusInProgress, snap.Status(ctx))
	env.fake.SetStatus(disks[2].ID(), storage.StatusFailed)
	assert.Equal(t, storage.StatusFailed, snap.Status(ctx))
}

func TestSnapshot_Destroy(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	snap, err := vol.Snapshot(ctx, "", nil)
	assert.Nil(t, err)
	disks := snap.(*Snapshot).Disks()

	env.fake.FailOp(mocks.OpDestroy, disks[0].ID(), mocks.Err)
	assert.Equal(t, mocks.Err, snap.Destroy(ctx))
	assert.False(t, env.fake.IsDestroyed(disks[1].ID()))

	env.fake.FailOp(mocks.OpDestroy, disks[0].ID(), nil)
	assert.Nil(t, snap.Destroy(ctx))
	for _, disk := range disks {
		assert.True(t, env.fake.IsDestroyed(disk.ID()))
	}
	assert.Equal(t, storage.StatusFailed, snap.Status(ctx))
}

func TestSnapshot_Restore(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.lvm.On("BackupVGConfig", testVG).Return(testVGCfg, nil).Once()
	env.lvm.On("BackupVGConfig", testVG).Return("c25hcHNob3QK", nil).Once()
	env.allowAll()
	vol := env.ensuredVolume(t, 5, 3)
	snap, err := vol.Snapshot(ctx, "", nil)
	assert.Nil(t, err)

	// snapshot is persisted and read back before restore
	persisted, err := env.reg.Snapshot(snap.Config())
	assert.Nil(t, err)
	restored, err := persisted.Restore(ctx)
	assert.Nil(t, err)

	restoredVol := restored.(*Volume)
	assert.NotEqual(t, vol.ID(), restoredVol.ID())
	assert.Equal(t, testLVPath, restoredVol.Device())
	assert.Equal(t, 5, restoredVol.Level())
	assert.Equal(t, testPVUUID, restoredVol.PVUUID())
	assert.Nil(t, restoredVol.Snap())
	assert.Len(t, restoredVol.Disks(), 3)
	for i, disk := range restoredVol.Disks() {
		assert.NotEqual(t, vol.Disks()[i].ID(), disk.ID())
		assert.NotEmpty(t, disk.Device())
	}
	// array is assembled with volume group from snapshot
	env.mdadm.AssertCalled(t, "Assemble", testRaidPV, diskDevices(restoredVol))
	env.lvm.AssertCalled(t, "RestoreVGConfig", testVG, "c25hcHNob3QK")
	env.mdadm.AssertNumberOfCalls(t, "Create", 1)
}

func TestSnapshot_RestoreDiskFail(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	snap, err := vol.Snapshot(ctx, "", nil)
	assert.Nil(t, err)
	env.fake.FailOp(mocks.OpRestore, snap.(*Snapshot).Disks()[1].ID(), mocks.Err)

	restored, err := snap.Restore(ctx)
	assert.Nil(t, restored)
	assert.True(t, errors.Is(err, mocks.Err))
	assert.Contains(t, err.Error(), "disk #1")
	// disk restored from the first snapshot is destroyed
	assert.Equal(t, 1, strings.Count(strings.Join(env.fake.Calls(), ","), mocks.OpDestroy))
	env.mdadm.AssertNotCalled(t, "FindDevice", mock.Anything)
}
