package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// archiveExt marks a crash container that has already been compacted.
const archiveExt = ".zst"

// archiveLoop periodically zstd-compresses uploaded crash containers older
// than after, replacing each with a ".zst" sibling and removing the raw
// file. Grounded on SPEC_FULL's archival-compression addition: the server
// still persists raw bodies on upload (matching the original's
// _IPtoFileName-keyed write), but aged files are compacted in the
// background instead of growing the folder unbounded.
func archiveLoop(ctx context.Context, folder string, after, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := compactOnce(folder, after); err != nil {
				log.Printf("crashserverd: archival compaction: %v", err)
			}
		}
	}
}

// compactOnce zstd-compresses every regular, not-yet-archived file in
// folder whose modification time is older than now-after.
func compactOnce(folder string, after time.Duration) error {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-after)
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), archiveExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := compactFile(filepath.Join(folder, e.Name())); err != nil {
			log.Printf("crashserverd: compacting %s: %v", e.Name(), err)
		}
	}
	return nil
}

func compactFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + archiveExt)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(path + archiveExt)
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(path + archiveExt)
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(path + archiveExt)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(path + archiveExt)
		return err
	}
	return os.Remove(path)
}
