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

package linuxutils

import (
	"github.com/stretchr/testify/mock"

	"github.com/dell/storagevirt/pkg/base/linuxutils/lvm"
)

// MockWrapLVM is a mock implementation of WrapLVM interface from lvm package
type MockWrapLVM struct {
	mock.Mock
}

// PVCreate is a mock implementations
func (m *MockWrapLVM) PVCreate(dev string, opts lvm.PVOptions) error {
	args := m.Mock.Called(dev, opts)

	return args.Error(0)
}

// PVRemove is a mock implementations
func (m *MockWrapLVM) PVRemove(dev string, force bool) error {
	args := m.Mock.Called(dev, force)

	return args.Error(0)
}

// PVResize is a mock implementations
func (m *MockWrapLVM) PVResize(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// PVs is a mock implementations
func (m *MockWrapLVM) PVs(dev string) ([]lvm.PVInfo, error) {
	args := m.Mock.Called(dev)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lvm.PVInfo), args.Error(1)
}

// VGCreate is a mock implementations
func (m *MockWrapLVM) VGCreate(name string, pvs ...string) error {
	args := m.Mock.Called(name, pvs)

	return args.Error(0)
}

// VGRemove is a mock implementations
func (m *MockWrapLVM) VGRemove(name string, force bool) error {
	args := m.Mock.Called(name, force)

	return args.Error(0)
}

// VGChange is a mock implementations
func (m *MockWrapLVM) VGChange(name string, available bool) error {
	args := m.Mock.Called(name, available)

	return args.Error(0)
}

// VGCfgRestore is a mock implementations
func (m *MockWrapLVM) VGCfgRestore(name, file string) error {
	args := m.Mock.Called(name, file)

	return args.Error(0)
}

// RestoreVGConfig is a mock implementations
func (m *MockWrapLVM) RestoreVGConfig(name, cfg string) error {
	args := m.Mock.Called(name, cfg)

	return args.Error(0)
}

// BackupVGConfig is a mock implementations
func (m *MockWrapLVM) BackupVGConfig(name string) (string, error) {
	args := m.Mock.Called(name)

	return args.String(0), args.Error(1)
}

// LVCreateExtents is a mock implementations
func (m *MockWrapLVM) LVCreateExtents(vgName, extents string) (string, string, error) {
	args := m.Mock.Called(vgName, extents)

	return args.String(0), args.String(1), args.Error(2)
}

// LVResize is a mock implementations
func (m *MockWrapLVM) LVResize(dev, extents string) error {
	args := m.Mock.Called(dev, extents)

	return args.Error(0)
}

// LVs is a mock implementations
func (m *MockWrapLVM) LVs(vgName string) ([]string, error) {
	args := m.Mock.Called(vgName)

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// LVPath is a mock implementations
func (m *MockWrapLVM) LVPath(vgName, lvName string) string {
	args := m.Mock.Called(vgName, lvName)

	return args.String(0)
}

// DMSetup is a mock implementations
func (m *MockWrapLVM) DMSetup(action, dev string) error {
	args := m.Mock.Called(action, dev)

	return args.Error(0)
}
