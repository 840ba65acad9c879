package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultiledger/go-benor/db"
)

func TestDBOps(t *testing.T) {
	d, err := New(t.TempDir())
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Get("TEST", []byte("k"))
	assert.ErrorIs(t, err, db.ErrBucketNotFound)
	require.NoError(t, d.NewBucket("TEST"))

	_, err = d.Get("TEST", []byte("none"))
	assert.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, d.Put("TEST", []byte("testKey"), []byte("testValue")))
	val, err := d.Get("TEST", []byte("testKey"))
	require.NoError(t, err)
	assert.Equal(t, []byte("testValue"), val)

	require.NoError(t, d.Delete("TEST", []byte("testKey")))
	_, err = d.Get("TEST", []byte("testKey"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestBucketsAreIsolated(t *testing.T) {
	path := t.TempDir()
	d, err := db.Open("leveldb", path)
	require.NoError(t, err)

	require.NoError(t, d.NewBucket("A"))
	require.NoError(t, d.NewBucket("AB"))
	require.NoError(t, d.Put("A", []byte("x/2"), []byte("2")))
	require.NoError(t, d.Put("A", []byte("x/1"), []byte("1")))
	require.NoError(t, d.Put("AB", []byte("x/3"), []byte("3")))

	vals, err := d.GetAll("A", []byte("x/"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, vals)
	require.NoError(t, d.Close())

	// buckets survive a reopen
	d, err = New(path)
	require.NoError(t, err)
	defer d.Close()
	vals, err = d.GetAll("AB", nil)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("3")}, vals)
}
