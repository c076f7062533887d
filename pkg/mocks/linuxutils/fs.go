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

// MockWrapFS is a mock implementation of WrapFS interface from fs package
type MockWrapFS struct {
	mock.Mock
}

// Sync is a mock implementations
func (m *MockWrapFS) Sync() error {
	args := m.Mock.Called()

	return args.Error(0)
}

// MkDir is a mock implementations
func (m *MockWrapFS) MkDir(src string) error {
	args := m.Mock.Called(src)

	return args.Error(0)
}

// RmDir is a mock implementations
func (m *MockWrapFS) RmDir(src string) error {
	args := m.Mock.Called(src)

	return args.Error(0)
}

// RmFile is a mock implementations
func (m *MockWrapFS) RmFile(src string) error {
	args := m.Mock.Called(src)

	return args.Error(0)
}

// CopySparse is a mock implementations
func (m *MockWrapFS) CopySparse(src, dst string) error {
	args := m.Mock.Called(src, dst)

	return args.Error(0)
}

// Truncate is a mock implementations
func (m *MockWrapFS) Truncate(src string, size int64) error {
	args := m.Mock.Called(src, size)

	return args.Error(0)
}

// FileSize is a mock implementations
func (m *MockWrapFS) FileSize(src string) (int64, error) {
	args := m.Mock.Called(src)

	return args.Get(0).(int64), args.Error(1)
}

// FileExists is a mock implementations
func (m *MockWrapFS) FileExists(src string) (bool, error) {
	args := m.Mock.Called(src)

	return args.Bool(0), args.Error(1)
}
