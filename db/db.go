// Copyright 2026 The go-benor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrClosed         = errors.New("database is closed")
	ErrEmptyBucket    = errors.New("database bucket name is empty")
	ErrBucketNotFound = errors.New("bucket not found")
)

// Database is the key/value storage used for the decision journal.
// Keys of a bucket are kept in byte order.
type Database interface {
	NewBucket(name string) error
	Put(bucket string, key, value []byte) error
	// Get returns ErrNotFound if the key does not exist.
	Get(bucket string, key []byte) ([]byte, error)
	// GetAll returns the values of the keys with the prefix
	// in key order.
	GetAll(bucket string, keyPrefix []byte) ([][]byte, error)
	Delete(bucket string, key []byte) error
	Close() error
}

// Ctor opens a database in the specified path.
type Ctor func(path string) (Database, error)

var (
	mu           sync.RWMutex
	constructors = make(map[string]Ctor)
)

// Register makes a backend available by name. Backends call it
// from their init function.
func Register(name string, ctor Ctor) {
	mu.Lock()
	defer mu.Unlock()
	constructors[name] = ctor
}

// Open opens the database of the named backend.
func Open(name string, path string) (Database, error) {
	mu.RLock()
	ctor, ok := constructors[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database %s not registered", name)
	}
	return ctor(path)
}

// Backends lists the registered backend names.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
