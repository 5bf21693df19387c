package stream

import (
	"io"

	"github.com/orcaman/writerseeker"
)

// MemReader is a read-only Readable over an owned byte slice.
type MemReader struct {
	data []byte
	pos  int64
}

// NewMemReader wraps b (not copied) as a Readable.
func NewMemReader(b []byte) *MemReader {
	return &MemReader{data: b}
}

func (r *MemReader) IsOpen() bool     { return true }
func (r *MemReader) Position() int64  { return r.pos }
func (r *MemReader) Size() (int64, error) { return int64(len(r.data)), nil }

func (r *MemReader) SeekAbsolute(off int64) error {
	if off < 0 || off > int64(len(r.data)) {
		return ErrIO
	}
	r.pos = off
	return nil
}

func (r *MemReader) Read(p []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

// MemWriter is a Writable over an exponentially growing in-memory buffer,
// backed by writerseeker.WriterSeeker the way the teacher's HTTP helpers
// lean on small focused io helper packages instead of hand-rolled buffers.
type MemWriter struct {
	ws  *writerseeker.WriterSeeker
	pos int64
}

// NewMemWriter creates an empty growable memory stream.
func NewMemWriter() *MemWriter {
	return &MemWriter{ws: &writerseeker.WriterSeeker{}}
}

func (w *MemWriter) IsOpen() bool    { return true }
func (w *MemWriter) Position() int64 { return w.pos }

func (w *MemWriter) Size() (int64, error) {
	cur := w.pos
	n, err := w.ws.Seek(0, 2) // io.SeekEnd
	if err != nil {
		return 0, err
	}
	if _, err := w.ws.Seek(cur, 0); err != nil {
		return 0, err
	}
	return n, nil
}

func (w *MemWriter) SeekAbsolute(off int64) error {
	n, err := w.ws.Seek(off, 0)
	if err != nil {
		return ErrIO
	}
	w.pos = n
	return nil
}

func (w *MemWriter) Write(p []byte) (int, error) {
	n, err := w.ws.Write(p)
	w.pos += int64(n)
	if err != nil {
		return n, ErrIO
	}
	return n, nil
}

func (w *MemWriter) Flush() error { return nil }

// Bytes returns the full contents written so far.
func (w *MemWriter) Bytes() []byte {
	r := w.ws.Reader()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, err := r.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			break
		}
	}
	return buf
}
