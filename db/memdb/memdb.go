package memdb

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ultiledger/go-benor/db"
)

func init() {
	db.Register("memdb", func(string) (db.Database, error) { return New(), nil })
}

type memdb struct {
	buckets map[string]map[string][]byte
	sync.RWMutex
}

// New creates a memory-based key-value store
// which is mainly used for testing.
func New() db.Database {
	return &memdb{buckets: make(map[string]map[string][]byte)}
}

func (m *memdb) NewBucket(name string) error {
	m.Lock()
	defer m.Unlock()

	if m.buckets == nil {
		return db.ErrClosed
	}
	if name == "" {
		return db.ErrEmptyBucket
	}
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string][]byte)
	}
	return nil
}

// bucket must be called with the lock held.
func (m *memdb) bucket(name string) (map[string][]byte, error) {
	if m.buckets == nil {
		return nil, db.ErrClosed
	}
	b, ok := m.buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", db.ErrBucketNotFound, name)
	}
	return b, nil
}

// Put writes the key/value pair to database.
func (m *memdb) Put(bucket string, key, value []byte) error {
	m.Lock()
	defer m.Unlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	b[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete deletes the key from the database.
func (m *memdb) Delete(bucket string, key []byte) error {
	m.Lock()
	defer m.Unlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return err
	}
	delete(b, string(key))
	return nil
}

// Get retrieves the value of the key from database.
func (m *memdb) Get(bucket string, key []byte) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if val, ok := b[string(key)]; ok {
		return append([]byte(nil), val...), nil
	}
	return nil, db.ErrNotFound
}

// GetAll retrieves the values of the keys with prefix from database.
func (m *memdb) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	m.RLock()
	defer m.RUnlock()

	b, err := m.bucket(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	for k := range b {
		if bytes.HasPrefix([]byte(k), keyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	vals := make([][]byte, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, append([]byte(nil), b[k]...))
	}
	return vals, nil
}

// Close closes the underlying database.
func (m *memdb) Close() error {
	m.Lock()
	defer m.Unlock()

	m.buckets = nil
	return nil
}
