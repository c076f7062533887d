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
	"reflect"

	"github.com/sirupsen/logrus"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/base/featureconfig"
)

type volumeState int

const (
	stateUnmaterialized volumeState = iota
	stateLive
	stateDetached
	stateDestroyed
)

var stateNames = map[volumeState]string{
	stateUnmaterialized: "unmaterialized",
	stateLive:           "live",
	stateDetached:       "detached",
	stateDestroyed:      "destroyed",
}

func (s volumeState) String() string {
	return stateNames[s]
}

// VolumeBase implements public lifecycle of Volume. Concrete types embed it and implement Driver.
// VolumeBase isn't safe for concurrent use, callers serialize operations on the same volume
type VolumeBase struct {
	id       string
	typ      string
	device   string
	snap     interface{}
	state    volumeState
	features featureconfig.FeatureChecker

	driver   Driver
	registry *Registry
	log      *logrus.Entry
}

// NewVolumeBase reads base keys of configuration. Missing id is generated
// Returns StorageError if cfg has type other than typ
func NewVolumeBase(cfg Config, typ string, features featureconfig.FeatureChecker,
	registry *Registry, logger *logrus.Logger) (*VolumeBase, error) {
	if cfgType := cfg.String(KeyType); cfgType != "" && cfgType != typ {
		return nil, errTypes.NewStorageError("unable to construct %s volume from %s configuration", typ, cfgType)
	}
	id := cfg.String(KeyID)
	if id == "" {
		id = NewID(typ)
	}

	v := &VolumeBase{
		id:       id,
		typ:      typ,
		device:   cfg.String(KeyDevice),
		snap:     cfg[KeySnap],
		features: features,
		registry: registry,
		log: logger.WithFields(logrus.Fields{
			"component": "Volume",
			"volumeID":  id,
			"type":      typ,
		}),
	}
	if v.device != "" {
		v.state = stateLive
	}
	return v, nil
}

// SetDriver sets hooks of concrete type, it must be called by constructor of concrete type
func (v *VolumeBase) SetDriver(d Driver) {
	v.driver = d
}

// ID returns identifier of volume
func (v *VolumeBase) ID() string { return v.id }

// Type returns type tag of volume
func (v *VolumeBase) Type() string { return v.typ }

// Device returns path of materialized device
func (v *VolumeBase) Device() string { return v.device }

// SetDevice is used by drivers when device is materialized
func (v *VolumeBase) SetDevice(device string) { v.device = device }

// Features returns capabilities of volume type
func (v *VolumeBase) Features() featureconfig.FeatureChecker { return v.features }

// Snap returns pending snapshot, it's either Snapshot or its configuration
func (v *VolumeBase) Snap() interface{} { return v.snap }

// SetSnap sets snapshot which will be restored on the next Ensure
func (v *VolumeBase) SetSnap(snap Snapshot) {
	if snap == nil {
		v.snap = nil
		return
	}
	v.snap = snap
}

// Registry returns registry the volume was constructed with
func (v *VolumeBase) Registry() *Registry { return v.registry }

// Logger returns logger with volume fields
func (v *VolumeBase) Logger() *logrus.Entry { return v.log }

// PendingSnapshot constructs pending snapshot through registry, returns nil if there is no one
func (v *VolumeBase) PendingSnapshot() (Snapshot, error) {
	if v.snap == nil {
		return nil, nil
	}
	return v.registry.Snapshot(v.snap)
}

// ClearSnap is called by drivers once pending snapshot is consumed
func (v *VolumeBase) ClearSnap() { v.snap = nil }

// CheckAttrs checks that all required attributes of driver are set
// Returns StorageError with name of the first missing attribute
func (v *VolumeBase) CheckAttrs() error {
	attrs := v.driver.Attributes()
	for _, name := range v.driver.RequiredAttributes() {
		if isEmptyAttr(attrs[name]) {
			return errTypes.NewStorageError("missing attribute %q of %s volume %s", name, v.typ, v.id)
		}
	}
	return nil
}

func isEmptyAttr(value interface{}) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// Ensure materializes device of volume. Pending snapshot is restored first
// Returns StorageError if volume is destroyed, restore isn't supported or attributes are missing
func (v *VolumeBase) Ensure(ctx context.Context) error {
	ll := v.log.WithField("method", "Ensure")

	if v.state == stateDestroyed {
		return errTypes.NewStorageError("%s volume %s is destroyed", v.typ, v.id)
	}
	if v.snap != nil && !v.features.IsEnabled(featureconfig.FeatureRestore) {
		return errTypes.NewStorageError("%s volume doesn't support restore from snapshot", v.typ)
	}

	ll.Debugf("Ensuring volume, current state: %s", v.state)
	if err := v.driver.PrepareVolume(ctx); err != nil {
		return err
	}
	v.snap = nil
	if v.device == "" {
		return errTypes.NewStorageError("missing attribute %q of %s volume %s", KeyDevice, v.typ, v.id)
	}
	v.state = stateLive
	ll.Infof("Volume is ensured, device: %s", v.device)
	return nil
}

// Detach releases device of volume. Detach of volume without device does nothing
func (v *VolumeBase) Detach(ctx context.Context, force bool) error {
	if v.device == "" {
		return nil
	}
	ll := v.log.WithField("method", "Detach")

	if err := v.driver.ReleaseVolume(ctx, force); err != nil {
		return err
	}
	ll.Infof("Device %s is released", v.device)
	v.device = ""
	v.state = stateDetached
	return nil
}

// Snapshot takes snapshot of volume
func (v *VolumeBase) Snapshot(ctx context.Context, description string, tags map[string]string) (Snapshot, error) {
	if v.state == stateDestroyed {
		return nil, errTypes.NewStorageError("%s volume %s is destroyed", v.typ, v.id)
	}
	snap, err := v.driver.SnapshotVolume(ctx, description, tags)
	if err != nil {
		return nil, err
	}
	v.log.WithField("method", "Snapshot").Infof("Snapshot %s is taken", snap.ID())
	return snap, nil
}

// Destroy detaches volume if it's live and releases its resources. Destroy of destroyed volume does nothing
func (v *VolumeBase) Destroy(ctx context.Context, opts DestroyOptions) error {
	if v.state == stateDestroyed {
		return nil
	}
	ll := v.log.WithField("method", "Destroy")

	if err := v.Detach(ctx, opts.Force); err != nil {
		if !opts.Force {
			return err
		}
		ll.Warnf("Unable to detach volume, continue because of force: %v", err)
	}
	if err := v.driver.DestroyVolume(ctx, opts); err != nil {
		return err
	}
	v.device = ""
	v.state = stateDestroyed
	ll.Info("Volume is destroyed")
	return nil
}

// Clone returns not materialized volume of the same configuration with new identity
func (v *VolumeBase) Clone() (Volume, error) {
	cfg := v.Config()
	delete(cfg, KeyID)
	delete(cfg, KeyDevice)
	delete(cfg, KeySnap)
	if err := v.driver.CloneVolume(cfg); err != nil {
		return nil, err
	}
	return v.registry.Volume(cfg)
}

// CheckGrowth checks whether cfg changes volume
// Returns NoOpError if nothing changes and StorageError if growth isn't allowed
func (v *VolumeBase) CheckGrowth(cfg GrowthConfig) error {
	if !v.features.IsEnabled(featureconfig.FeatureGrow) {
		return errTypes.NewStorageError("%s volume doesn't support growth", v.typ)
	}
	return v.driver.CheckVolumeGrowth(cfg.Without(ResizeFSKey))
}

// Grow detaches volume and grows its clone. Returned volume is ensured, source volume stays detached.
// If growth fails the clone is destroyed and source volume is ensured back, the growth error is returned
func (v *VolumeBase) Grow(ctx context.Context, cfg GrowthConfig) (Volume, error) {
	ll := v.log.WithField("method", "Grow")

	if v.state == stateDestroyed {
		return nil, errTypes.NewStorageError("%s volume %s is destroyed", v.typ, v.id)
	}
	if err := v.CheckGrowth(cfg); err != nil {
		return nil, err
	}
	if _, ok := cfg[ResizeFSKey]; ok {
		ll.Debugf("%s is ignored, file systems aren't managed", ResizeFSKey)
	}
	cfg = cfg.Without(ResizeFSKey)

	ll.Infof("Detaching volume before growth")
	if err := v.Detach(ctx, false); err != nil {
		return nil, err
	}

	newVol, err := v.Clone()
	if err == nil {
		err = v.driver.GrowVolume(ctx, newVol, cfg)
	}
	if err != nil {
		ll.Errorf("Growth failed: %v. Trying to ensure source volume", err)
		if newVol != nil {
			if destroyErr := newVol.Destroy(ctx, DestroyOptions{Force: true, RemoveDisks: true}); destroyErr != nil {
				ll.Errorf("Unable to destroy grown volume %s: %v", newVol.ID(), destroyErr)
			}
		}
		if ensureErr := v.Ensure(ctx); ensureErr != nil {
			ll.Errorf("Unable to ensure source volume: %v", ensureErr)
		}
		return nil, err
	}

	ll.Infof("Volume is grown into %s", newVol.ID())
	return newVol, nil
}

// Config returns configuration of volume with its attributes
func (v *VolumeBase) Config() Config {
	cfg := Config{
		KeyID:   v.id,
		KeyType: v.typ,
	}
	if v.device != "" {
		cfg[KeyDevice] = v.device
	}
	if v.snap != nil {
		cfg[KeySnap] = configOf(v.snap)
	}
	for k, val := range v.driver.Attributes() {
		cfg[k] = val
	}
	return cfg
}

// configOf returns configuration of volume, snapshot or mapping
func configOf(v interface{}) interface{} {
	switch val := v.(type) {
	case Volume:
		return val.Config()
	case Snapshot:
		return val.Config()
	default:
		if cfg, ok := asConfig(v); ok {
			return cfg.Copy()
		}
		return v
	}
}

// ConfigsOf returns configurations of volumes or snapshots in the same order
func ConfigsOf(items interface{}) []interface{} {
	rv := reflect.ValueOf(items)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	res := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		res[i] = configOf(rv.Index(i).Interface())
	}
	return res
}
