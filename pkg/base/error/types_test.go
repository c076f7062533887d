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

package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStorageError(t *testing.T) {
	cause := errors.New("device busy")
	err := WrapStorageError(cause, "unable to stop %s", "/dev/md0")

	assert.Equal(t, "unable to stop /dev/md0: device busy", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.True(t, IsStorageError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsNoOp(err))

	assert.Equal(t, "Unknown raid level: 3", NewStorageError("Unknown raid level: %d", 3).Error())
}

func TestNoOpError(t *testing.T) {
	err := NewNoOpError("Configurations are equal. Nothing to do")

	assert.True(t, IsNoOp(err))
	assert.True(t, IsNoOp(fmt.Errorf("grow: %w", err)))
	assert.False(t, IsStorageError(err))
	assert.False(t, IsNoOp(errors.New("error")))
}

func TestConcurrentError(t *testing.T) {
	first := errors.New("snapshot timeout")
	second := NewStorageError("disk is not attached")
	err := NewConcurrentError("snapshot", map[int]error{3: second, 1: first})

	assert.Equal(t, []int{1, 3}, err.Indexes())
	assert.Contains(t, err.Error(), "item #1: snapshot timeout")
	assert.Contains(t, err.Error(), "item #3: disk is not attached")
	assert.True(t, errors.Is(err, first))
	assert.True(t, IsStorageError(err))
}
