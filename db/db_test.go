package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	_, err := Open("nonexistent", "")
	assert.Error(t, err)

	Register("fake", func(path string) (Database, error) {
		return nil, ErrClosed
	})
	assert.Contains(t, Backends(), "fake")

	_, err = Open("fake", "/tmp/none")
	assert.ErrorIs(t, err, ErrClosed)
}
