package stream

import (
	"os"

	"golang.org/x/xerrors"
)

// FileReader is a Readable backed by an *os.File opened read-only.
type FileReader struct {
	f    *os.File
	pos  int64
	open bool
}

// OpenFileReader opens path for reading. A failure to open is non-fatal to
// the caller's process; it is surfaced as a wrapped ErrOpenFailed.
func OpenFileReader(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return &FileReader{f: f, open: true}, nil
}

func (r *FileReader) IsOpen() bool { return r.open }
func (r *FileReader) Position() int64 { return r.pos }

func (r *FileReader) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, xerrors.Errorf("%w: %v", ErrIO, err)
	}
	return fi.Size(), nil
}

func (r *FileReader) SeekAbsolute(off int64) error {
	n, err := r.f.Seek(off, 0)
	if err != nil {
		return xerrors.Errorf("%w: %v", ErrIO, err)
	}
	r.pos = n
	return nil
}

func (r *FileReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	r.pos += int64(n)
	if err != nil {
		return n, err // io.EOF propagates as-is
	}
	return n, nil
}

// Close releases the underlying file descriptor.
func (r *FileReader) Close() error {
	r.open = false
	return r.f.Close()
}

// FileWriter is a Writable backed by an *os.File.
type FileWriter struct {
	f    *os.File
	pos  int64
	open bool
}

// CreateFileWriter truncates/creates path for writing.
func CreateFileWriter(path string) (*FileWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, xerrors.Errorf("%w: %v", ErrOpenFailed, err)
	}
	return &FileWriter{f: f, open: true}, nil
}

func (w *FileWriter) IsOpen() bool { return w.open }
func (w *FileWriter) Position() int64 { return w.pos }

func (w *FileWriter) Size() (int64, error) {
	fi, err := w.f.Stat()
	if err != nil {
		return 0, xerrors.Errorf("%w: %v", ErrIO, err)
	}
	return fi.Size(), nil
}

func (w *FileWriter) SeekAbsolute(off int64) error {
	n, err := w.f.Seek(off, 0)
	if err != nil {
		return xerrors.Errorf("%w: %v", ErrIO, err)
	}
	w.pos = n
	return nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.pos += int64(n)
	if err != nil {
		return n, xerrors.Errorf("%w: %v", ErrIO, err)
	}
	return n, nil
}

func (w *FileWriter) Flush() error {
	return w.f.Sync()
}

// Close releases the underlying file descriptor.
func (w *FileWriter) Close() error {
	w.open = false
	return w.f.Close()
}
