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

package loop

import (
	"context"
	"path/filepath"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/storage"
)

// SnapshotVolume copies backing file into <dir>/snapshots/<snapshot id>.img.
// Loop device isn't required, detached volume could be snapshotted as well
func (v *Volume) SnapshotVolume(ctx context.Context, description string, tags map[string]string) (storage.Snapshot, error) {
	if err := v.deps.FS.Sync(); err != nil {
		return nil, err
	}
	dir := filepath.Join(v.attrs.Dir, snapshotsDir)
	if err := v.deps.FS.MkDir(dir); err != nil {
		return nil, err
	}

	id := storage.NewID(Type)
	file := filepath.Join(dir, id+fileExt)
	if err := v.deps.FS.CopySparse(v.attrs.File, file); err != nil {
		return nil, err
	}

	cfg := (&attributes{Dir: v.attrs.Dir, File: file, Size: v.attrs.Size}).config()
	cfg[storage.KeyID] = id
	cfg[storage.KeyType] = Type
	cfg[storage.KeyDescription] = description
	if len(tags) > 0 {
		cfg[storage.KeyTags] = tags
	}
	snap, err := NewSnapshot(cfg, v.deps)
	if err != nil {
		if rmErr := v.deps.FS.RmFile(file); rmErr != nil {
			v.Logger().Errorf("Unable to remove %s: %v", file, rmErr)
		}
		return nil, err
	}
	return snap, nil
}

// Snapshot is a copy of backing file of loop volume
type Snapshot struct {
	*storage.SnapshotBase
	deps  Deps
	attrs *attributes
}

// NewSnapshot constructs loop snapshot from configuration
func NewSnapshot(cfg storage.Config, deps Deps) (*Snapshot, error) {
	sb, err := storage.NewSnapshotBase(cfg, Type, deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(cfg, deps)
	if err != nil {
		return nil, err
	}
	if attrs.File == "" {
		return nil, errTypes.NewStorageError("missing attribute %q of loop snapshot %s", KeyFile, sb.ID())
	}
	s := &Snapshot{SnapshotBase: sb, deps: deps, attrs: attrs}
	sb.SetDriver(s)
	return s, nil
}

// File returns path of snapshot copy
func (s *Snapshot) File() string {
	return s.attrs.File
}

// DestroySnapshot removes snapshot copy, missing copy isn't an error
func (s *Snapshot) DestroySnapshot(ctx context.Context) error {
	return s.deps.FS.RmFile(s.attrs.File)
}

// SnapshotStatus is completed while snapshot copy exists
func (s *Snapshot) SnapshotStatus(ctx context.Context) storage.Status {
	exists, err := s.deps.FS.FileExists(s.attrs.File)
	switch {
	case err != nil:
		s.Logger().WithField("method", "SnapshotStatus").Errorf("Unable to check %s: %v", s.attrs.File, err)
		return storage.StatusUnknown
	case exists:
		return storage.StatusCompleted
	default:
		return storage.StatusFailed
	}
}

// Attributes returns loop attributes of snapshot
func (s *Snapshot) Attributes() storage.Config {
	return s.attrs.config()
}
