package crashpack

import (
	"github.com/aeforge/buildpack/stream"
	"github.com/google/renameio"
)

// WriteFile atomically writes c to path, the same write-then-rename
// pattern as pipelinepack.WriteFile and samplerpack.WriteFile.
func WriteFile(path string, c *Container) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	w := &pendingWritable{f: t}
	if err := Write(w, c); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

type pendingWritable struct {
	f   *renameio.PendingFile
	pos int64
}

func (w *pendingWritable) IsOpen() bool    { return true }
func (w *pendingWritable) Position() int64 { return w.pos }

func (w *pendingWritable) Size() (int64, error) {
	fi, err := w.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (w *pendingWritable) SeekAbsolute(off int64) error {
	n, err := w.f.Seek(off, 0)
	w.pos = n
	return err
}

func (w *pendingWritable) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.pos += int64(n)
	return n, err
}

func (w *pendingWritable) Flush() error { return nil }

// ReadFile opens path and reads a Container from it.
func ReadFile(path string) (*Container, error) {
	f, err := stream.OpenFileReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}
