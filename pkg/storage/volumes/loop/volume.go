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

// Package loop contains leaf volume backed by a sparse file attached as loop device
package loop

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dell/storagevirt/pkg/base"
	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/featureconfig"
	"github.com/dell/storagevirt/pkg/base/linuxutils/fs"
	"github.com/dell/storagevirt/pkg/base/linuxutils/losetup"
	"github.com/dell/storagevirt/pkg/base/util"
	"github.com/dell/storagevirt/pkg/storage"
)

// Type is a registry tag of loop volumes and snapshots
const Type = "loop"

// Attributes of loop volume and snapshot configuration
const (
	KeyDir  = "dir"
	KeyFile = "file"
	KeySize = "size"
)

const (
	fileExt      = ".img"
	snapshotsDir = "snapshots"
)

// Deps holds collaborators of loop volumes
type Deps struct {
	Registry *storage.Registry
	FS       fs.WrapFS
	Losetup  losetup.WrapLosetup
	Logger   *logrus.Logger
	// Dir is used for volumes without "dir" attribute, base.DefaultLoopDir if not set
	Dir string
	// Features of loop volumes, all known features are enabled if not set
	Features featureconfig.FeatureChecker
}

// Register registers loop volume and snapshot types in deps.Registry
func Register(deps Deps) {
	if deps.Dir == "" {
		deps.Dir = base.DefaultLoopDir
	}
	deps.Registry.RegisterVolume(Type, func(cfg storage.Config) (storage.Volume, error) {
		return NewVolume(cfg, deps)
	})
	deps.Registry.RegisterSnapshot(Type, func(cfg storage.Config) (storage.Snapshot, error) {
		return NewSnapshot(cfg, deps)
	})
}

type attributes struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
	// human readable size like "1GiB", plain number is a count of bytes
	Size string `mapstructure:"size"`
}

func (a *attributes) config() storage.Config {
	cfg := storage.Config{}
	for key, value := range map[string]string{KeyDir: a.Dir, KeyFile: a.File, KeySize: a.Size} {
		if value != "" {
			cfg[key] = value
		}
	}
	return cfg
}

func decodeAttributes(cfg storage.Config, deps Deps) (*attributes, error) {
	attrs := &attributes{}
	if err := storage.DecodeAttributes(map[string]interface{}(cfg), attrs); err != nil {
		return nil, err
	}
	if attrs.Dir == "" {
		attrs.Dir = deps.Dir
	}
	if attrs.Size != "" {
		if _, err := util.StrToBytes(attrs.Size); err != nil {
			return nil, errTypes.WrapStorageError(err, "invalid loop size")
		}
	}
	return attrs, nil
}

// Volume is a sparse file in Dir attached to loop device
type Volume struct {
	*storage.VolumeBase
	deps  Deps
	attrs *attributes
}

// NewVolume constructs loop volume, backing file is <dir>/<id>.img if "file" isn't set
func NewVolume(cfg storage.Config, deps Deps) (*Volume, error) {
	if deps.Features == nil {
		deps.Features = featureconfig.NewFeatureConfigWith(featureconfig.Known...)
	}
	vb, err := storage.NewVolumeBase(cfg, Type, deps.Features, deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}
	attrs, err := decodeAttributes(cfg, deps)
	if err != nil {
		return nil, err
	}
	if attrs.File == "" {
		attrs.File = filepath.Join(attrs.Dir, vb.ID()+fileExt)
	}

	v := &Volume{VolumeBase: vb, deps: deps, attrs: attrs}
	vb.SetDriver(v)
	return v, nil
}

// File returns path of backing file
func (v *Volume) File() string {
	return v.attrs.File
}

// Size returns size of backing file in bytes, 0 if size isn't known
func (v *Volume) Size() int64 {
	size, _ := util.StrToBytes(v.attrs.Size)
	return size
}

// RequiredAttributes returns attributes which must be known before backing file is attached
func (v *Volume) RequiredAttributes() []string {
	return []string{KeyDir, KeyFile, KeySize}
}

// Attributes returns loop attributes
func (v *Volume) Attributes() storage.Config {
	return v.attrs.config()
}

// PrepareVolume creates backing file from pending snapshot or truncates a new one and attaches it.
// Size of existing backing file is taken if "size" isn't set
func (v *Volume) PrepareVolume(ctx context.Context) error {
	ll := v.Logger().WithField("method", "PrepareVolume")

	if err := v.prepareFile(); err != nil {
		return err
	}
	if err := v.CheckAttrs(); err != nil {
		return err
	}

	device, err := v.deps.Losetup.FindByFile(v.attrs.File)
	if err != nil {
		return err
	}
	if device != "" {
		ll.Infof("Backing file %s is already attached to %s", v.attrs.File, device)
		if err = v.deps.Losetup.RefreshCapacity(device); err != nil {
			return err
		}
	} else if device, err = v.deps.Losetup.Attach(v.attrs.File); err != nil {
		return err
	}
	v.SetDevice(device)
	return nil
}

func (v *Volume) prepareFile() error {
	ll := v.Logger().WithField("method", "prepareFile")

	pending, err := v.PendingSnapshot()
	if err != nil {
		return err
	}
	if pending != nil {
		snap, ok := pending.(*Snapshot)
		if !ok {
			return errTypes.NewStorageError("unable to restore loop volume from %s snapshot", pending.Type())
		}
		ll.Infof("Restoring backing file from snapshot %s", snap.ID())
		if err = v.deps.FS.MkDir(filepath.Dir(v.attrs.File)); err != nil {
			return err
		}
		if err = v.deps.FS.CopySparse(snap.attrs.File, v.attrs.File); err != nil {
			return err
		}
		v.attrs.Size = snap.attrs.Size
		v.ClearSnap()
		return nil
	}

	exists, err := v.deps.FS.FileExists(v.attrs.File)
	if err != nil {
		return err
	}
	if exists {
		if v.attrs.Size == "" {
			size, err := v.deps.FS.FileSize(v.attrs.File)
			if err != nil {
				return err
			}
			v.attrs.Size = fmt.Sprint(size)
		}
		return nil
	}

	if v.attrs.Size == "" {
		return errTypes.NewStorageError("missing attribute %q of loop volume %s", KeySize, v.ID())
	}
	if err = v.deps.FS.MkDir(filepath.Dir(v.attrs.File)); err != nil {
		return err
	}
	ll.Infof("Creating backing file %s of %s", v.attrs.File, v.attrs.Size)
	return v.deps.FS.Truncate(v.attrs.File, v.Size())
}

// ReleaseVolume detaches loop device
func (v *Volume) ReleaseVolume(ctx context.Context, force bool) error {
	return v.deps.Losetup.Detach(v.Device())
}

// DestroyVolume removes backing file
func (v *Volume) DestroyVolume(ctx context.Context, opts storage.DestroyOptions) error {
	return v.deps.FS.RmFile(v.attrs.File)
}

// CloneVolume makes clone to get its own backing file
func (v *Volume) CloneVolume(cfg storage.Config) error {
	delete(cfg, KeyFile)
	return nil
}

func decodeGrowthSize(cfg storage.GrowthConfig) (string, int64, error) {
	growth := struct {
		Size string `mapstructure:"size"`
	}{}
	if err := cfg.Decode(&growth); err != nil {
		return "", 0, err
	}
	if growth.Size == "" {
		return "", 0, nil
	}
	size, err := util.StrToBytes(growth.Size)
	if err != nil {
		return "", 0, errTypes.WrapStorageError(err, "invalid loop size")
	}
	return growth.Size, size, nil
}

// CheckVolumeGrowth allows only increasing of "size"
func (v *Volume) CheckVolumeGrowth(cfg storage.GrowthConfig) error {
	_, size, err := decodeGrowthSize(cfg)
	if err != nil {
		return err
	}
	current := v.Size()
	switch {
	case size == 0 || size == current:
		return errTypes.NewNoOpError("loop volume %s already has size %s", v.ID(), util.FormatBytes(current))
	case size < current:
		return errTypes.NewStorageError("loop volume %s can't be shrunk from %s to %s",
			v.ID(), util.FormatBytes(current), util.FormatBytes(size))
	}
	return nil
}

// GrowVolume copies backing file into file of newVol, extends it and ensures newVol
func (v *Volume) GrowVolume(ctx context.Context, newVol storage.Volume, cfg storage.GrowthConfig) error {
	nv, ok := newVol.(*Volume)
	if !ok {
		return errTypes.NewStorageError("unable to grow loop volume into %s volume", newVol.Type())
	}
	sizeStr, size, err := decodeGrowthSize(cfg)
	if err != nil {
		return err
	}

	if err = v.deps.FS.MkDir(filepath.Dir(nv.attrs.File)); err != nil {
		return err
	}
	if err = v.deps.FS.CopySparse(v.attrs.File, nv.attrs.File); err != nil {
		return err
	}
	if err = v.deps.FS.Truncate(nv.attrs.File, size); err != nil {
		return err
	}
	nv.attrs.Size = sizeStr
	return nv.Ensure(ctx)
}
