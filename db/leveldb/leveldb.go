package leveldb

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ultiledger/go-benor/db"
)

func init() {
	db.Register("leveldb", New)
}

// leveldb has a single keyspace, buckets are emulated with a key
// prefix and a marker entry per bucket.
type leveldbWrapper struct {
	db *leveldb.DB
}

// New opens or creates a leveldb database in the directory path.
func New(path string) (db.Database, error) {
	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &leveldbWrapper{db: ldb}, nil
}

func markerKey(bucket string) []byte {
	return []byte("\x00bucket:" + bucket)
}

func bucketKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, 0)
	return append(k, key...)
}

func (lw *leveldbWrapper) NewBucket(name string) error {
	if name == "" {
		return db.ErrEmptyBucket
	}
	return lw.db.Put(markerKey(name), nil, nil)
}

func (lw *leveldbWrapper) checkBucket(name string) error {
	ok, err := lw.db.Has(markerKey(name), nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", db.ErrBucketNotFound, name)
	}
	return nil
}

// Put writes the key/value pair to database.
func (lw *leveldbWrapper) Put(bucket string, key, value []byte) error {
	if err := lw.checkBucket(bucket); err != nil {
		return err
	}
	return lw.db.Put(bucketKey(bucket, key), value, nil)
}

// Delete deletes the key from the database.
func (lw *leveldbWrapper) Delete(bucket string, key []byte) error {
	if err := lw.checkBucket(bucket); err != nil {
		return err
	}
	return lw.db.Delete(bucketKey(bucket, key), nil)
}

// Get retrieves the value of the key from database.
func (lw *leveldbWrapper) Get(bucket string, key []byte) ([]byte, error) {
	if err := lw.checkBucket(bucket); err != nil {
		return nil, err
	}
	val, err := lw.db.Get(bucketKey(bucket, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// GetAll retrieves the values of the keys with prefix from database.
func (lw *leveldbWrapper) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	if err := lw.checkBucket(bucket); err != nil {
		return nil, err
	}
	var vals [][]byte
	iter := lw.db.NewIterator(util.BytesPrefix(bucketKey(bucket, keyPrefix)), nil)
	for iter.Next() {
		vals = append(vals, append([]byte(nil), iter.Value()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return vals, nil
}

// Close closes the underlying database.
func (lw *leveldbWrapper) Close() error {
	return lw.db.Close()
}
