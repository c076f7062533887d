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
)

// MockWrapLosetup is a mock implementation of WrapLosetup interface from losetup package
type MockWrapLosetup struct {
	mock.Mock
}

// Attach is a mock implementations
func (m *MockWrapLosetup) Attach(file string) (string, error) {
	args := m.Mock.Called(file)

	return args.String(0), args.Error(1)
}

// Detach is a mock implementations
func (m *MockWrapLosetup) Detach(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// RefreshCapacity is a mock implementations
func (m *MockWrapLosetup) RefreshCapacity(dev string) error {
	args := m.Mock.Called(dev)

	return args.Error(0)
}

// FindByFile is a mock implementations
func (m *MockWrapLosetup) FindByFile(file string) (string, error) {
	args := m.Mock.Called(file)

	return args.String(0), args.Error(1)
}
