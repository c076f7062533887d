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

// Package error contains error types shared by storage packages
package error

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrorNotFound indicates that requested object wasn't found
	ErrorNotFound = errors.New("not found")
	// ErrorEmptyParameter indicates that required parameter is empty
	ErrorEmptyParameter = errors.New("empty parameter")
	// ErrorFailedParsing indicates that command output could not be parsed
	ErrorFailedParsing = errors.New("failed to parse")
)

// StorageError is a configuration or state error of a volume or snapshot.
// It is never retried
type StorageError struct {
	Msg string
	Err error
}

// NewStorageError is a constructor for StorageError with fmt.Sprintf semantic
func NewStorageError(format string, args ...interface{}) *StorageError {
	return &StorageError{Msg: fmt.Sprintf(format, args...)}
}

// WrapStorageError creates StorageError with msg which wraps err
func WrapStorageError(err error, format string, args ...interface{}) *StorageError {
	return &StorageError{Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

// Unwrap returns wrapped error if any
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NoOpError reports that requested operation would not change anything.
// Callers could treat it as success without action
type NoOpError struct {
	Msg string
}

// NewNoOpError is a constructor for NoOpError
func NewNoOpError(format string, args ...interface{}) *NoOpError {
	return &NoOpError{Msg: fmt.Sprintf(format, args...)}
}

func (e *NoOpError) Error() string {
	return e.Msg
}

// IsNoOp checks whether err is or wraps NoOpError
func IsNoOp(err error) bool {
	var noOp *NoOpError
	return errors.As(err, &noOp)
}

// IsNotFound checks whether err is or wraps ErrorNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrorNotFound)
}

// IsStorageError checks whether err is or wraps StorageError
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ConcurrentError aggregates failures of parallel operations over sibling items.
// Failures are keyed by the original index of the item
type ConcurrentError struct {
	Op       string
	Failures map[int]error
}

// NewConcurrentError is a constructor for ConcurrentError
func NewConcurrentError(op string, failures map[int]error) *ConcurrentError {
	return &ConcurrentError{Op: op, Failures: failures}
}

// Indexes returns sorted indexes of failed items
func (e *ConcurrentError) Indexes() []int {
	idx := make([]int, 0, len(e.Failures))
	for i := range e.Failures {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func (e *ConcurrentError) Error() string {
	lines := make([]string, 0, len(e.Failures))
	for _, i := range e.Indexes() {
		lines = append(lines, fmt.Sprintf("item #%d: %v", i, e.Failures[i]))
	}
	return fmt.Sprintf("%s failed for %d item(s). Errors:\n%s", e.Op, len(e.Failures), strings.Join(lines, "\n"))
}

// Unwrap exposes all collected errors so errors.Is and errors.As reach each of them
func (e *ConcurrentError) Unwrap() error {
	var combined error
	for _, i := range e.Indexes() {
		combined = multierr.Append(combined, e.Failures[i])
	}
	return combined
}
