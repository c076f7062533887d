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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/mocks"
	"github.com/dell/storagevirt/pkg/storage"
)

func foreachSize(size int) map[string]interface{} {
	return map[string]interface{}{"size": size}
}

func TestVolume_CheckGrowth(t *testing.T) {
	testCases := []struct {
		name     string
		levels   []int
		cfg      storage.GrowthConfig
		expected storage.GrowthResult
	}{
		{"empty", []int{0, 1, 5, 10}, storage.GrowthConfig{}, storage.GrowthNoOp},
		{"same length", []int{0, 1, 5, 10}, storage.GrowthConfig{GrowthLen: 3}, storage.GrowthNoOp},
		{"resize_fs only", []int{0, 1, 5, 10}, storage.GrowthConfig{storage.ResizeFSKey: true}, storage.GrowthNoOp},
		{"more disks", []int{1, 5}, storage.GrowthConfig{GrowthLen: 4}, storage.GrowthChanged},
		{"more disks of striped array", []int{0, 10}, storage.GrowthConfig{GrowthLen: 4}, storage.GrowthFailed},
		{"less disks", []int{0, 1, 5, 10}, storage.GrowthConfig{GrowthLen: 2}, storage.GrowthFailed},
		{"same disks", []int{0, 1, 5, 10}, storage.GrowthConfig{GrowthForeach: foreachSize(1)}, storage.GrowthNoOp},
		{"bigger disks", []int{1, 5}, storage.GrowthConfig{GrowthForeach: foreachSize(2)}, storage.GrowthChanged},
		{"bigger disks of striped array", []int{0, 10}, storage.GrowthConfig{GrowthForeach: foreachSize(2)},
			storage.GrowthFailed},
		{"smaller disks", []int{1, 5}, storage.GrowthConfig{GrowthForeach: foreachSize(-1)}, storage.GrowthFailed},
		{"bigger disks, same length", []int{1}, storage.GrowthConfig{GrowthForeach: foreachSize(2), GrowthLen: 3},
			storage.GrowthChanged},
		{"bigger and more disks", []int{5},
			storage.GrowthConfig{GrowthForeach: foreachSize(2), GrowthLen: 5}, storage.GrowthChanged},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, level := range tc.levels {
				env := newTestEnv()
				vol := env.newVolume(t, raidConfig(level, 3))
				result, err := storage.CheckGrowthResult(vol, tc.cfg)
				assert.Equal(t, tc.expected, result, "raid%d", level)
				if tc.expected == storage.GrowthFailed {
					assert.True(t, errTypes.IsStorageError(err), "raid%d: %v", level, err)
				} else {
					assert.Nil(t, err, "raid%d", level)
				}
			}
		})
	}
}

func TestVolume_GrowVolumeLevel(t *testing.T) {
	env := newTestEnv()
	vol := env.newVolume(t, raidConfig(10, 4))
	newVol, err := vol.Clone()
	assert.Nil(t, err)
	err = vol.GrowVolume(context.Background(), newVol, storage.GrowthConfig{GrowthLen: 6})
	assert.True(t, errTypes.IsStorageError(err))
	env.mdadm.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

// ensuredIDs records ids of volumes ensured by fake backend
type ensuredIDs struct {
	sync.Mutex
	ids []string
}

func (e *ensuredIDs) hook(op, id string) error {
	if op == mocks.OpEnsure {
		e.Lock()
		e.ids = append(e.ids, id)
		e.Unlock()
	}
	return nil
}

// destroyed returns ensured volumes which were destroyed except ones from skip
func (e *ensuredIDs) destroyed(fake *mocks.FakeBackend, skip []storage.Volume) []string {
	e.Lock()
	defer e.Unlock()
	skipped := make(map[string]bool)
	for _, vol := range skip {
		skipped[vol.ID()] = true
	}
	seen := make(map[string]bool)
	var ids []string
	for _, id := range e.ids {
		if seen[id] || skipped[id] || !fake.IsDestroyed(id) {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func countOp(fake *mocks.FakeBackend, op string) int {
	count := 0
	for _, call := range fake.Calls() {
		if strings.HasPrefix(call, op+" ") {
			count++
		}
	}
	return count
}

func TestVolume_GrowForeach(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	sourceDisks := vol.Disks()

	grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthForeach: foreachSize(2), storage.ResizeFSKey: true})
	assert.Nil(t, err)
	newVol := grown.(*Volume)

	assert.NotEqual(t, vol.ID(), newVol.ID())
	assert.Equal(t, "", vol.Device())
	assert.Equal(t, testLVPath, newVol.Device())
	assert.Equal(t, testPVUUID, newVol.PVUUID())
	assert.Len(t, newVol.Disks(), 2)
	for i, disk := range newVol.Disks() {
		assert.Equal(t, 2, disk.(*mocks.FakeVolume).Size)
		assert.NotEqual(t, sourceDisks[i].ID(), disk.ID())
		assert.Equal(t, 1, sourceDisks[i].(*mocks.FakeVolume).Size)
	}

	// grown array is assembled from grown disks
	env.mdadm.AssertCalled(t, "Assemble", testRaidPV, diskDevices(newVol))
	env.mdadm.AssertCalled(t, "GrowMaxSize", testRaidPV)
	env.mdadm.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	env.mdadm.AssertNotCalled(t, "GrowRaidDevices", mock.Anything, mock.Anything)
	env.lvm.AssertCalled(t, "PVResize", testRaidPV)
	env.lvm.AssertCalled(t, "LVResize", testLVPath, lvResizeExtents)
	assert.Equal(t, 0, countOp(env.fake, mocks.OpDestroy))
}

// events records order of array and disk operations
type events struct {
	sync.Mutex
	list []string
}

func (e *events) add(event string) {
	e.Lock()
	e.list = append(e.list, event)
	e.Unlock()
}

func (e *events) after(event string) []string {
	e.Lock()
	defer e.Unlock()
	for i, ev := range e.list {
		if ev == event {
			return append([]string(nil), e.list[i+1:]...)
		}
	}
	return nil
}

func callCount(m *mock.Mock, method string) int {
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func TestVolume_GrowBackupVGConfig(t *testing.T) {
	const grownCfg = "Z3Jvd24gcmFpZHZnIHsKfQo="

	for _, tc := range []struct {
		name      string
		level     int
		cfg       storage.GrowthConfig
		resizeErr error
	}{
		{"foreach", 5, storage.GrowthConfig{GrowthForeach: foreachSize(2)}, nil},
		// mirror with new member keeps size of logical volume
		{"len", 1, storage.GrowthConfig{GrowthLen: 4},
			errors.New("New size (255 extents) matches existing size (255 extents).")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var (
				ctx  = context.Background()
				env  = newTestEnv()
				live bool
			)
			env.mdadm.On("FindDevice", mock.MatchedBy(func([]string) bool { return live })).Return(testRaidPV, nil)
			// creation, release of source, growth
			env.lvm.On("BackupVGConfig", testVG).Return(testVGCfg, nil).Twice()
			env.lvm.On("BackupVGConfig", testVG).Return(grownCfg, nil).Once()
			if tc.resizeErr != nil {
				env.lvm.On("LVResize", testLVPath, lvResizeExtents).Return(tc.resizeErr)
			}
			env.allowAll()
			vol := env.ensuredVolume(t, tc.level, 3)

			grown, err := vol.Grow(ctx, tc.cfg)
			assert.Nil(t, err)
			newVol := grown.(*Volume)
			assert.Equal(t, testVG, newVol.VG())
			assert.Equal(t, grownCfg, newVol.LVMGroupCfg())
			assert.Equal(t, testVGCfg, vol.LVMGroupCfg())
			assert.Equal(t, grownCfg, newVol.Config()[KeyLVMGroupCfg])

			// array of grown volume is found, its volume group isn't overwritten by older metadata
			restored := callCount(&env.lvm.Mock, "RestoreVGConfig")
			live = true
			assert.Nil(t, newVol.Ensure(ctx))
			assert.Equal(t, testLVPath, newVol.Device())
			assert.Equal(t, restored, callCount(&env.lvm.Mock, "RestoreVGConfig"))
			env.lvm.AssertNotCalled(t, "RestoreVGConfig", testVG, grownCfg)
		})
	}
}

func TestVolume_GrowForeachFail(t *testing.T) {
	var (
		ctx     = context.Background()
		env     = newTestEnv()
		ensured = &ensuredIDs{}
	)
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	sourceDisks := vol.Disks()
	env.fake.Hook = ensured.hook
	env.fake.FailOp(mocks.OpGrow, sourceDisks[1].ID(), mocks.Err)

	grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthForeach: foreachSize(2)})
	assert.Nil(t, grown)
	assert.True(t, errTypes.IsStorageError(err))
	assert.True(t, errors.Is(err, mocks.Err))

	// the only grown disk is destroyed, source volume is ensured back
	assert.Len(t, ensured.destroyed(env.fake, sourceDisks), 1)
	for _, disk := range sourceDisks {
		assert.False(t, env.fake.IsDestroyed(disk.ID()))
		assert.NotEmpty(t, disk.Device())
	}
	assert.Equal(t, testLVPath, vol.Device())
	env.mdadm.AssertNotCalled(t, "GrowMaxSize", mock.Anything)
}

func TestVolume_GrowLen(t *testing.T) {
	var (
		ctx = context.Background()
		env = newTestEnv()
	)
	env.lvm.On("LVResize", testLVPath, lvResizeExtents).
		Return(errors.New("New size (255 extents) matches existing size (255 extents)."))
	env.allowAll()
	vol := env.ensuredVolume(t, 1, 2)
	sourceDisks := vol.Disks()

	grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthLen: 3})
	assert.Nil(t, err)
	newVol := grown.(*Volume)

	assert.Equal(t, testLVPath, newVol.Device())
	assert.Len(t, newVol.Disks(), 3)
	for i, disk := range newVol.Disks() {
		assert.NotEmpty(t, disk.Device())
		if i < len(sourceDisks) {
			assert.NotEqual(t, sourceDisks[i].ID(), disk.ID())
		}
	}
	env.mdadm.AssertCalled(t, "Add", testRaidPV, []string{newVol.Disks()[2].Device()})
	env.mdadm.AssertCalled(t, "GrowRaidDevices", testRaidPV, 3)
	env.mdadm.AssertCalled(t, "GrowMaxSize", testRaidPV)

	// clones are restored from temporary snapshots which are destroyed afterwards
	assert.Equal(t, 2, countOp(env.fake, mocks.OpSnapshot))
	assert.Equal(t, 2, countOp(env.fake, mocks.OpRestore))
	assert.Equal(t, 2, countOp(env.fake, mocks.OpDestroy))
	for _, disk := range sourceDisks {
		assert.False(t, env.fake.IsDestroyed(disk.ID()))
	}
}

func TestVolume_GrowLenFail(t *testing.T) {
	ctx := context.Background()

	t.Run("grow raid devices", func(t *testing.T) {
		var (
			env     = newTestEnv()
			ensured = &ensuredIDs{}
			growErr = errors.New("mdadm: failed to set raid disks")
			order   = &events{}
		)
		env.mdadm.On("GrowRaidDevices", testRaidPV, 5).Return(growErr).
			Run(func(mock.Arguments) { order.add("grow raid devices") })
		env.mdadm.On("Stop", mock.Anything).Return(nil).
			Run(func(args mock.Arguments) { order.add("stop " + args.String(0)) })
		env.allowAll()
		vol := env.ensuredVolume(t, 5, 3)
		sourceDisks := vol.Disks()
		env.fake.Hook = func(op, id string) error {
			if op == mocks.OpDestroy {
				order.add("destroy " + id)
			}
			return ensured.hook(op, id)
		}

		grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthLen: 5})
		assert.Nil(t, grown)
		assert.Equal(t, growErr, err)

		// 3 clones and 2 added disks are destroyed
		env.mdadm.AssertCalled(t, "Add", testRaidPV, mock.MatchedBy(func(devices []string) bool {
			return len(devices) == 2
		}))
		assert.Len(t, ensured.destroyed(env.fake, sourceDisks), 5)
		for _, disk := range sourceDisks {
			assert.False(t, env.fake.IsDestroyed(disk.ID()))
		}
		assert.Equal(t, testLVPath, vol.Device())
		assert.Len(t, vol.Disks(), 3)

		// grown array is stopped before its disks are destroyed
		rollback := order.after("grow raid devices")
		if assert.NotEmpty(t, rollback) {
			assert.Equal(t, "stop "+testRaidPV, rollback[0])
		}
		env.lvm.AssertCalled(t, "VGRemove", testVG, true)
	})

	t.Run("logical volume of raid5 isn't resized", func(t *testing.T) {
		var (
			env       = newTestEnv()
			ensured   = &ensuredIDs{}
			resizeErr = errors.New("New size (255 extents) matches existing size (255 extents).")
		)
		env.lvm.On("LVResize", testLVPath, lvResizeExtents).Return(resizeErr)
		env.allowAll()
		vol := env.ensuredVolume(t, 5, 3)
		sourceDisks := vol.Disks()
		env.fake.Hook = ensured.hook

		grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthLen: 4})
		assert.Nil(t, grown)
		assert.Equal(t, resizeErr, err)
		assert.Len(t, ensured.destroyed(env.fake, sourceDisks), 4)
		assert.Equal(t, testLVPath, vol.Device())
	})

	t.Run("temporary snapshot", func(t *testing.T) {
		env := newTestEnv()
		env.allowAll()
		vol := env.ensuredVolume(t, 1, 2)
		env.fake.FailOp(mocks.OpSnapshot, vol.Disks()[0].ID(), mocks.Err)

		grown, err := vol.Grow(ctx, storage.GrowthConfig{GrowthLen: 3})
		assert.Nil(t, grown)
		assert.True(t, errors.Is(err, mocks.Err))
		env.mdadm.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
		assert.Equal(t, testLVPath, vol.Device())
	})

	t.Run("destroyed volume", func(t *testing.T) {
		env := newTestEnv()
		env.allowAll()
		vol := env.ensuredVolume(t, 1, 2)
		assert.Nil(t, vol.Destroy(ctx, storage.DestroyOptions{}))
		_, err := vol.Grow(ctx, storage.GrowthConfig{GrowthLen: 3})
		assert.True(t, errTypes.IsStorageError(err))
	})
}
