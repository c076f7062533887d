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
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dell/storagevirt/pkg/base/linuxutils/mdadm"
)

// MockWrapMdadm is a mock implementation of WrapMdadm interface from mdadm package
type MockWrapMdadm struct {
	mock.Mock
}

// Create is a mock implementations
func (m *MockWrapMdadm) Create(dev string, opts mdadm.CreateOptions, members ...string) error {
	args := m.Mock.Called(dev, opts, members)

	return args.Error(0)
}

// Assemble is a mock implementations
func (m *MockWrapMdadm) Assemble(dev string, members ...string) error {
	args := m.Mock.Called(dev, members)

	return args.Error(0)
}

// GrowRaidDevices is a mock implementations
func (m *MockWrapMdadm) GrowRaidDevices(dev string, count int) error {
	args := m.Mock.Called(dev, count)

	return args.Error(0)
}

// GrowMaxSize is a mock implementations
func (m *MockWrapMdadm) GrowMaxSize(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// Add is a mock implementations
func (m *MockWrapMdadm) Add(dev string, members ...string) error {
	args := m.Mock.Called(dev, members)

	return args.Error(0)
}

// Remove is a mock implementations
func (m *MockWrapMdadm) Remove(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// Wait is a mock implementations
func (m *MockWrapMdadm) Wait(dev string) {
	m.Mock.Called(dev)
}

// Stop is a mock implementations
func (m *MockWrapMdadm) Stop(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// FindDevice is a mock implementations
func (m *MockWrapMdadm) FindDevice(members ...string) (string, error) {
	args := m.Mock.Called(members)

	return args.String(0), args.Error(1)
}

// FindFreeDeviceName is a mock implementations
func (m *MockWrapMdadm) FindFreeDeviceName() (string, error) {
	args := m.Mock.Called()

	return args.String(0), args.Error(1)
}

// WaitForArray is a mock implementations
func (m *MockWrapMdadm) WaitForArray(ctx context.Context, dev string, timeout time.Duration) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}
