package export

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-depthmesh/pkg/core"
)

func TestJob_WriteAndCommit(t *testing.T) {
	job, err := NewJob(t.TempDir())
	require.NoError(t, err)
	defer job.Close()

	cloud, faces := singleTriangle()
	artifact, err := job.Write(FormatSTL, func(w io.Writer) error {
		return STL{}.Export(w, cloud, faces)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(80+4+50), artifact.Size)
	assert.Equal(t, ".stl", filepath.Ext(artifact.Path))
	assert.Len(t, job.Artifacts(), 1)

	var buf bytes.Buffer
	n, err := artifact.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, artifact.Size, n)

	dest := filepath.Join(t.TempDir(), "nested", "out.stl")
	require.NoError(t, artifact.CommitTo(dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), data)
}

func TestJob_FailedWriteLeavesNothing(t *testing.T) {
	job, err := NewJob(t.TempDir())
	require.NoError(t, err)
	defer job.Close()

	boom := errors.New("boom")
	_, err = job.Write(FormatOBJ, func(w io.Writer) error {
		w.Write([]byte("v 0 0 0\n"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(job.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial artifact survives")
	assert.Empty(t, job.Artifacts())
}

func TestJob_CommitKeepsOldContentOnFailure(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.obj")
	require.NoError(t, os.WriteFile(dest, []byte("previous"), 0o644))

	missing := &Artifact{Path: filepath.Join(t.TempDir(), "gone.obj"), Format: FormatOBJ}
	err := missing.CommitTo(dest)
	assert.ErrorIs(t, err, core.ErrExportIO)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestJob_CloseRemovesDirectory(t *testing.T) {
	job, err := NewJob(t.TempDir())
	require.NoError(t, err)

	_, err = job.Write(FormatDXF, func(w io.Writer) error {
		cloud, _ := singleTriangle()
		return DXF{}.Export(w, cloud, nil)
	})
	require.NoError(t, err)

	require.NoError(t, job.Close())
	_, err = os.Stat(job.Dir())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, job.Close(), "second close is a no-op")

	_, err = job.Write(FormatDXF, func(io.Writer) error { return nil })
	assert.ErrorIs(t, err, ErrJobClosed)
	assert.ErrorIs(t, err, core.ErrExportIO)
}

func TestJob_IDsAreUnique(t *testing.T) {
	root := t.TempDir()
	a, err := NewJob(root)
	require.NoError(t, err)
	defer a.Close()
	b, err := NewJob(root)
	require.NoError(t, err)
	defer b.Close()

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Dir(), b.Dir())
}

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	boom := errors.New("boom")
	_, err := WriteAtomic(path, func(w io.Writer) error {
		w.Write([]byte("half"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))

	n, err := WriteAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("complete"))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len("complete")), n)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files survive")
	assert.Equal(t, "out.png", entries[0].Name())
}
