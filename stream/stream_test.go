package stream

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemReaderReadToEnd(t *testing.T) {
	want := []byte("hello, world")
	r := NewMemReader(want)
	got, err := ReadToEnd(r)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadToEnd() mismatch (-want +got):\n%s", diff)
	}
}

func TestMemWriterGrows(t *testing.T) {
	w := NewMemWriter()
	for i := 0; i < 10; i++ {
		if _, err := w.Write(bytes.Repeat([]byte{byte(i)}, 1000)); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := len(w.Bytes()), 10000; got != want {
		t.Errorf("len(Bytes()) = %d, want %d", got, want)
	}
}

func TestSubStreamMatchesRange(t *testing.T) {
	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i)
	}
	parent := NewMemReader(data)
	sub, err := NewSub(parent, 100, 200)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ReadToEnd(sub)
	if err != nil {
		t.Fatal(err)
	}
	want := data[100:300]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SubStream contents mismatch (-want +got):\n%s", diff)
	}
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	want := []byte("some file contents\x00\x01\x02")

	w, err := CreateFileWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFull(w, want); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenFileReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := ReadToEnd(r)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenFileReaderMissing(t *testing.T) {
	_, err := OpenFileReader(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error opening missing file")
	}
}

func TestBrotliRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 10000)

	mem := NewMemWriter()
	bw := NewBrotliWriter(mem)
	if err := WriteFull(bw, want); err != nil {
		t.Fatal(err)
	}
	if err := bw.Finalize(); err != nil {
		t.Fatal(err)
	}

	br := NewBrotliReader(NewMemReader(mem.Bytes()))
	got, err := ReadToEnd(br)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("brotli round trip mismatch (-want +got, %d bytes)", len(diff))
	}
}
