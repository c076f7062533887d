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

// Package polling contains bounded waits for host conditions
package polling

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"k8s.io/apimachinery/pkg/util/wait"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

const (
	// DefaultInterval is used when WaitOptions.Interval isn't set
	DefaultInterval = time.Second
	// devicePollInterval is a fallback for missed fs events, udev creates device links asynchronously
	devicePollInterval = 500 * time.Millisecond
)

// Condition returns true when awaited state is reached, an error stops waiting
type Condition func() (bool, error)

// WaitOptions holds parameters of WaitUntil
type WaitOptions struct {
	Interval time.Duration
	// Timeout of 0 means wait until ctx is done
	Timeout time.Duration
	// ErrorText describes unmet condition in returned error
	ErrorText string
}

// WaitUntil checks condition immediately and then each opts.Interval until it's met,
// it returns an error, opts.Timeout expires or ctx is done
// Returns StorageError if condition wasn't met in time
func WaitUntil(ctx context.Context, condition Condition, opts WaitOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ErrorText == "" {
		opts.ErrorText = "condition wasn't met"
	}

	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}
	defer cancel()

	err := wait.PollImmediateUntil(opts.Interval, wait.ConditionFunc(condition), waitCtx.Done())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wait.ErrWaitTimeout):
		if ctx.Err() != nil {
			return errTypes.WrapStorageError(ctx.Err(), "%s", opts.ErrorText)
		}
		return errTypes.NewStorageError("%s in %s", opts.ErrorText, opts.Timeout)
	default:
		return err
	}
}

// WaitForDevice waits until path appears in the file system.
// Parent directory is watched with fsnotify when it exists, also path is checked periodically
// Returns StorageError if path didn't appear in timeout
func WaitForDevice(ctx context.Context, path string, timeout time.Duration) error {
	exists := func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
	if exists() {
		return nil
	}

	var (
		events     <-chan fsnotify.Event
		watchErrs  <-chan error
		watcher, _ = fsnotify.NewWatcher()
	)
	if watcher != nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(devicePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errTypes.WrapStorageError(ctx.Err(), "device %s didn't appear", path)
		case <-deadline.C:
			return errTypes.NewStorageError("device %s didn't appear in %s", path, timeout)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Name == path && exists() {
				return nil
			}
		case _, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
			}
		case <-ticker.C:
			if exists() {
				return nil
			}
		}
	}
}
