package crashpack

import (
	"bytes"
	"testing"

	"github.com/aeforge/buildpack/stream"
)

// TestRoundTrip matches §8 scenario 3: every field returns byte-for-byte
// identical after a pack/unpack cycle.
func TestRoundTrip(t *testing.T) {
	c := &Container{
		UserInfo:  "ID: 5420170019289003836",
		SymbolsID: "Tests.Breakpad.exe",
		Log:       []byte("log test"),
		Dump:      []byte("fake-minidump-bytes-18a244ca"),
	}

	mw := stream.NewMemWriter()
	if err := Write(mw, c); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(stream.NewMemReader(mw.Bytes()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.UserInfo != c.UserInfo {
		t.Errorf("UserInfo = %q, want %q", got.UserInfo, c.UserInfo)
	}
	if got.SymbolsID != c.SymbolsID {
		t.Errorf("SymbolsID = %q, want %q", got.SymbolsID, c.SymbolsID)
	}
	if !bytes.Equal(got.Log, c.Log) {
		t.Errorf("Log = %q, want %q", got.Log, c.Log)
	}
	if !bytes.Equal(got.Dump, c.Dump) {
		t.Errorf("Dump = %q, want %q", got.Dump, c.Dump)
	}
}

func TestRoundTripWithoutLog(t *testing.T) {
	c := &Container{
		UserInfo:  "ID: 1",
		SymbolsID: "app.exe",
		Dump:      []byte{1, 2, 3, 4},
	}

	mw := stream.NewMemWriter()
	if err := Write(mw, c); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(stream.NewMemReader(mw.Bytes()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Log != nil {
		t.Errorf("Log = %v, want nil (absent)", got.Log)
	}
	if !bytes.Equal(got.Dump, c.Dump) {
		t.Errorf("Dump = %v, want %v", got.Dump, c.Dump)
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	mw := stream.NewMemWriter()
	if err := Write(mw, &Container{Dump: []byte("x")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	corrupted := mw.Bytes()
	corrupted[0] ^= 0xFF

	if _, err := Read(stream.NewMemReader(corrupted)); err != ErrBadMagic {
		t.Errorf("Read() error = %v, want ErrBadMagic", err)
	}
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	mw := stream.NewMemWriter()
	if err := Write(mw, &Container{Dump: []byte("x")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	corrupted := mw.Bytes()
	// version is the second little-endian u32, right after the magic.
	corrupted[4] = 2

	if _, err := Read(stream.NewMemReader(corrupted)); err == nil {
		t.Error("Read() error = nil, want a version-mismatch error")
	}
}

func TestEmptyStringsRoundTrip(t *testing.T) {
	c := &Container{Dump: []byte("only-dump")}

	mw := stream.NewMemWriter()
	if err := Write(mw, c); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, err := Read(stream.NewMemReader(mw.Bytes()))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.UserInfo != "" || got.SymbolsID != "" {
		t.Errorf("UserInfo/SymbolsID = %q/%q, want empty", got.UserInfo, got.SymbolsID)
	}
	if !bytes.Equal(got.Dump, c.Dump) {
		t.Errorf("Dump = %v, want %v", got.Dump, c.Dump)
	}
}
