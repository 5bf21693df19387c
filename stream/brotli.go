package stream

import (
	"io"

	"github.com/andybalholm/brotli"
	"golang.org/x/xerrors"
)

// DefaultBrotliQuality matches the source's fixed 0.7-scaled quality on
// brotli's [0,11] integer scale.
const DefaultBrotliQuality = 8

// brotliBufSize is the internal feed buffer the read wrapper keeps, per §4.1.
const brotliBufSize = 4 << 20

// BrotliReader decompresses a Brotli stream read from an underlying
// Readable, feeding the decoder on demand through an internal 4 MiB buffer.
type BrotliReader struct {
	under Readable
	dec   *brotli.Reader
	pos   int64
}

// NewBrotliReader wraps under in a Brotli decompressor.
func NewBrotliReader(under Readable) *BrotliReader {
	return &BrotliReader{
		under: under,
		dec:   brotli.NewReaderSize(&readableAdapter{r: under}, brotliBufSize),
	}
}

func (b *BrotliReader) IsOpen() bool    { return b.under.IsOpen() }
func (b *BrotliReader) Position() int64 { return b.pos }

func (b *BrotliReader) Size() (int64, error) {
	// Decompressed size is unknown up front; report -1.
	return -1, nil
}

func (b *BrotliReader) SeekAbsolute(off int64) error {
	return xerrors.Errorf("stream: brotli reader does not support seeking: %w", ErrCompression)
}

func (b *BrotliReader) Read(p []byte) (int, error) {
	n, err := b.dec.Read(p)
	b.pos += int64(n)
	if err != nil && err != io.EOF {
		return n, xerrors.Errorf("%w: %v", ErrCompression, err)
	}
	return n, err
}

// readableAdapter adapts a Readable to io.Reader for consumption by the
// brotli package, which only knows about io.Reader.
type readableAdapter struct{ r Readable }

func (a *readableAdapter) Read(p []byte) (int, error) { return a.r.Read(p) }

// BrotliWriter compresses writes to an underlying Writable at a fixed
// quality. Callers must call Finalize (not just Flush) to terminate the
// Brotli stream before relying on the underlying stream's contents.
type BrotliWriter struct {
	under   Writable
	enc     *brotli.Writer
	pos     int64
	quality int
}

// NewBrotliWriter wraps under in a Brotli compressor at DefaultBrotliQuality.
func NewBrotliWriter(under Writable) *BrotliWriter {
	w := &writableAdapter{w: under}
	return &BrotliWriter{
		under:   under,
		enc:     brotli.NewWriterLevel(w, DefaultBrotliQuality),
		quality: DefaultBrotliQuality,
	}
}

func (b *BrotliWriter) IsOpen() bool    { return b.under.IsOpen() }
func (b *BrotliWriter) Position() int64 { return b.pos }
func (b *BrotliWriter) Size() (int64, error) { return b.under.Size() }

func (b *BrotliWriter) SeekAbsolute(off int64) error {
	return xerrors.Errorf("stream: brotli writer does not support seeking: %w", ErrCompression)
}

func (b *BrotliWriter) Write(p []byte) (int, error) {
	n, err := b.enc.Write(p)
	b.pos += int64(n)
	if err != nil {
		return n, xerrors.Errorf("%w: %v", ErrCompression, err)
	}
	return n, nil
}

func (b *BrotliWriter) Flush() error {
	if err := b.enc.Flush(); err != nil {
		return xerrors.Errorf("%w: %v", ErrCompression, err)
	}
	return b.under.Flush()
}

// Finalize closes the Brotli stream, writing its final block. The wrapper
// must not be used for further writes afterward.
func (b *BrotliWriter) Finalize() error {
	if err := b.enc.Close(); err != nil {
		return xerrors.Errorf("%w: %v", ErrCompression, err)
	}
	return nil
}

type writableAdapter struct{ w Writable }

func (a *writableAdapter) Write(p []byte) (int, error) { return a.w.Write(p) }
