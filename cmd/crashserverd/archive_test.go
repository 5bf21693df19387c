package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func TestCompactOnceReplacesAgedFileWithZstd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "127_0_0_1_54321")
	want := []byte("crash container bytes")
	if err := os.WriteFile(path, want, 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := compactOnce(dir, 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("raw file should have been removed, stat err = %v", err)
	}

	compressed, err := os.ReadFile(path + archiveExt)
	if err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()
	var got bytes.Buffer
	if _, err := got.ReadFrom(dec); err != nil {
		t.Fatal(err)
	}
	if got.String() != string(want) {
		t.Errorf("decompressed = %q, want %q", got.String(), want)
	}
}

func TestCompactOnceLeavesRecentFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recent")
	if err := os.WriteFile(path, []byte("fresh"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := compactOnce(dir, 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("recent file should still exist: %v", err)
	}
	if _, err := os.Stat(path + archiveExt); !os.IsNotExist(err) {
		t.Fatalf("recent file should not have been archived")
	}
}

func TestCompactOnceSkipsAlreadyArchivedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old"+archiveExt)
	if err := os.WriteFile(path, []byte("already compressed"), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	if err := compactOnce(dir, 24*time.Hour); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "already compressed" {
		t.Errorf("already-archived file was modified")
	}
}
