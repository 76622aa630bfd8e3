package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFileRotatesPastMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailestd.log")

	rf, err := OpenRotatingFile(path, 10, 2)
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("0123456789"))
	require.NoError(t, err)

	_, err = rf.Write([]byte("rotate-me!"))
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "rotate-me!", string(data))
}

func TestRotatingFileDropsOldestBeyondMaxCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailestd.log")

	rf, err := OpenRotatingFile(path, 1, 1)
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("a"))
	require.NoError(t, err)
	_, err = rf.Write([]byte("b"))
	require.NoError(t, err)
	_, err = rf.Write([]byte("c"))
	require.NoError(t, err)

	assert.NoFileExists(t, path+".2")
	assert.FileExists(t, path+".1")
}

func TestRotatingFileWithoutMaxCountJustGrows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailestd.log")

	rf, err := OpenRotatingFile(path, 0, 0)
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("no rotation configured"))
	require.NoError(t, err)
	assert.NoFileExists(t, path+".1")
}
