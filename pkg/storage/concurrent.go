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

package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
)

// IndexPlaceholder is replaced with position of volume in descriptions of concurrent snapshots
const IndexPlaceholder = "${index}"

// Outcome is a result of operation over one item
type Outcome[T any] struct {
	Value T
	Err   error
}

// RunConcurrently runs op for items 0..n-1, each in its own goroutine, and waits for all of them.
// Outcomes are returned in order of items regardless of completion order, none of them is dropped.
// Failure of one item doesn't cancel the others
func RunConcurrently[T any](ctx context.Context, n int, op func(ctx context.Context, i int) (T, error)) []Outcome[T] {
	outcomes := make([]Outcome[T], n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i].Err = fmt.Errorf("panic: %v", r)
				}
			}()
			value, err := op(ctx, i)
			outcomes[i] = Outcome[T]{Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Collect returns values of successful outcomes in order of items and ConcurrentError with all failures
// if any outcome failed
func Collect[T any](op string, outcomes []Outcome[T]) ([]T, error) {
	values := make([]T, 0, len(outcomes))
	failures := make(map[int]error)
	for i, outcome := range outcomes {
		if outcome.Err != nil {
			failures[i] = outcome.Err
			continue
		}
		values = append(values, outcome.Value)
	}
	if len(failures) > 0 {
		return values, errTypes.NewConcurrentError(op, failures)
	}
	return values, nil
}

// ConcurrentSnapshot snapshots volumes concurrently. IndexPlaceholder in description is replaced with
// position of volume. If any snapshot fails, successful ones are destroyed and ConcurrentError is returned
func ConcurrentSnapshot(ctx context.Context, volumes []Volume, description string, tags map[string]string,
	log *logrus.Entry) ([]Snapshot, error) {
	ll := log.WithField("method", "ConcurrentSnapshot")

	outcomes := RunConcurrently(ctx, len(volumes), func(ctx context.Context, i int) (Snapshot, error) {
		descr := strings.ReplaceAll(description, IndexPlaceholder, strconv.Itoa(i))
		return volumes[i].Snapshot(ctx, descr, tags)
	})

	snaps, err := Collect("snapshot", outcomes)
	if err == nil {
		return snaps, nil
	}

	ll.Errorf("Concurrent snapshot failed, destroying %d successful snapshots", len(snaps))
	for _, snap := range snaps {
		if destroyErr := snap.Destroy(ctx); destroyErr != nil {
			ll.Errorf("Unable to destroy snapshot %s: %v", snap.ID(), destroyErr)
		}
	}
	return nil, err
}
