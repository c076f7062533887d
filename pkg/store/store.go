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

// Package store persists configurations of volumes and snapshots between runs
package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	errTypes "github.com/dell/storagevirt/pkg/base/error"
	"github.com/dell/storagevirt/pkg/storage"
)

var (
	bucketVolumes   = []byte("volumes")
	bucketSnapshots = []byte("snapshots")
)

// openTimeout bounds waiting for the file lock held by another process
const openTimeout = 5 * time.Second

// Store keeps configurations keyed by id
type Store interface {
	PutVolume(cfg storage.Config) error
	GetVolume(id string) (storage.Config, error)
	ListVolumes() ([]storage.Config, error)
	DeleteVolume(id string) error

	PutSnapshot(cfg storage.Config) error
	GetSnapshot(id string) (storage.Config, error)
	ListSnapshots() ([]storage.Config, error)
	DeleteSnapshot(id string) error

	Close() error
}

// BoltStore implements Store with bbolt database, configurations are stored as JSON documents
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketVolumes, bucketSnapshots} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket []byte, cfg storage.Config) error {
	id := cfg.String(storage.KeyID)
	if id == "" {
		return errTypes.NewStorageError("unable to persist %s configuration without id", bucket)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(id), data)
	})
}

func (s *BoltStore) get(bucket []byte, id string) (storage.Config, error) {
	var cfg storage.Config
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s %s", errTypes.ErrorNotFound, bucket, id)
		}
		return json.Unmarshal(data, &cfg)
	})
	return cfg, err
}

func (s *BoltStore) list(bucket []byte) ([]storage.Config, error) {
	var configs []storage.Config
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			var cfg storage.Config
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("failed to decode %s: %w", k, err)
			}
			configs = append(configs, cfg)
			return nil
		})
	})
	return configs, err
}

func (s *BoltStore) delete(bucket []byte, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(id))
	})
}

// PutVolume creates or replaces volume configuration
func (s *BoltStore) PutVolume(cfg storage.Config) error {
	return s.put(bucketVolumes, cfg)
}

// GetVolume returns volume configuration, ErrorNotFound if there is no one with id
func (s *BoltStore) GetVolume(id string) (storage.Config, error) {
	return s.get(bucketVolumes, id)
}

// ListVolumes returns all volume configurations ordered by id
func (s *BoltStore) ListVolumes() ([]storage.Config, error) {
	return s.list(bucketVolumes)
}

// DeleteVolume removes volume configuration, missing one isn't an error
func (s *BoltStore) DeleteVolume(id string) error {
	return s.delete(bucketVolumes, id)
}

// PutSnapshot creates or replaces snapshot configuration
func (s *BoltStore) PutSnapshot(cfg storage.Config) error {
	return s.put(bucketSnapshots, cfg)
}

// GetSnapshot returns snapshot configuration, ErrorNotFound if there is no one with id
func (s *BoltStore) GetSnapshot(id string) (storage.Config, error) {
	return s.get(bucketSnapshots, id)
}

// ListSnapshots returns all snapshot configurations ordered by id
func (s *BoltStore) ListSnapshots() ([]storage.Config, error) {
	return s.list(bucketSnapshots)
}

// DeleteSnapshot removes snapshot configuration, missing one isn't an error
func (s *BoltStore) DeleteSnapshot(id string) error {
	return s.delete(bucketSnapshots, id)
}
