package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/df07/go-depthmesh/pkg/core"
)

// ErrJobClosed is returned by writes to a closed job
var ErrJobClosed = errors.New("export job closed")

// Job owns a private temporary directory for one export request.
// Artifacts appear in it only once fully written; Close removes everything.
type Job struct {
	ID  string
	dir string

	mu        sync.Mutex
	closed    bool
	artifacts []*Artifact
}

// Artifact is a completed file inside a Job
type Artifact struct {
	Path   string
	Format Format
	Size   int64
}

// NewJob creates the job directory under workDir, or the OS temp dir when workDir is empty
func NewJob(workDir string) (*Job, error) {
	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, core.WrapError(core.StageExport, core.ErrExportIO, err, "creating work dir %s", workDir)
		}
	}

	id := uuid.NewString()
	dir, err := os.MkdirTemp(workDir, "depthmesh-"+id+"-")
	if err != nil {
		return nil, core.WrapError(core.StageExport, core.ErrExportIO, err, "creating job dir")
	}
	return &Job{ID: id, dir: dir}, nil
}

// Dir returns the job's temporary directory
func (j *Job) Dir() string {
	return j.dir
}

// Write runs fn against a temp file and renames it into place only if fn
// and the flush, sync and close all succeed. On failure nothing is left behind.
func (j *Job) Write(format Format, fn func(io.Writer) error) (*Artifact, error) {
	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return nil, core.WrapError(core.StageExport, core.ErrExportIO, ErrJobClosed, "job %s", j.ID)
	}

	final := filepath.Join(j.dir, uuid.NewString()+format.Extension())
	size, err := WriteAtomic(final, fn)
	if err != nil {
		return nil, err
	}

	a := &Artifact{Path: final, Format: format, Size: size}
	j.mu.Lock()
	j.artifacts = append(j.artifacts, a)
	j.mu.Unlock()
	return a, nil
}

// Artifacts returns the committed artifacts in creation order
func (j *Job) Artifacts() []*Artifact {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*Artifact(nil), j.artifacts...)
}

// Close removes the job directory and everything in it. It is safe to call more than once.
func (j *Job) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	j.artifacts = nil
	if err := os.RemoveAll(j.dir); err != nil {
		return fmt.Errorf("failed to remove job dir %s: %w", j.dir, err)
	}
	return nil
}

// WriteTo streams the artifact into w
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "opening %s", a.Path)
	}
	defer f.Close()

	n, err := io.Copy(w, f)
	if err != nil {
		return n, core.WrapError(core.StageExport, core.ErrExportIO, err, "copying %s", a.Format)
	}
	return n, nil
}

// CommitTo copies the artifact to dest atomically: dest either keeps its old
// content or holds the complete artifact.
func (a *Artifact) CommitTo(dest string) error {
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.WrapError(core.StageExport, core.ErrExportIO, err, "creating %s", dir)
		}
	}
	_, err := WriteAtomic(dest, func(w io.Writer) error {
		_, err := a.WriteTo(w)
		return err
	})
	return err
}

// WriteAtomic writes path through a sibling temp file and renames it into place
// only when fn and the flush, sync and close succeed. On failure path is untouched
// and the temp file is removed. It returns the number of bytes written.
func WriteAtomic(path string, fn func(io.Writer) error) (size int64, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".partial-*")
	if err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "creating temp file for %s", path)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	cw := &countingWriter{w: tmp}
	bw := bufio.NewWriterSize(cw, 64*1024)
	if err = fn(bw); err != nil {
		return 0, err
	}
	if err = bw.Flush(); err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "flushing %s", path)
	}
	if err = tmp.Sync(); err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "syncing %s", path)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "chmod %s", path)
	}
	if err = tmp.Close(); err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "closing %s", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return 0, core.WrapError(core.StageExport, core.ErrExportIO, err, "renaming into %s", path)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
