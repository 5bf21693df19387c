// Command crashserverd accepts crash containers uploaded by crashsend and
// persists each raw request body to a file keyed by the client's remote
// address (§2 crash data flow), grounded on
// original_source/crash_report/crash_report_server/main.cpp.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aeforge/buildpack/internal/oninterrupt"
)

func main() {
	var (
		addr         = flag.String("listen", ":7070", "HTTP listen address")
		folder       = flag.String("folder", ".", "directory uploaded crash containers are written into")
		archiveAfter = flag.Duration("archive_after", 24*time.Hour, "age at which an uploaded crash container is zstd-compacted")
		archiveEvery = flag.Duration("archive_interval", time.Hour, "how often the archival compaction sweep runs")
	)
	flag.Parse()

	if fi, err := os.Stat(*folder); err != nil || !fi.IsDir() {
		log.Fatalf("crashserverd: %q is not a directory", *folder)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", handleUpload(*folder))
	mux.HandleFunc("/stop", handleStop)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })

	srv := &http.Server{Addr: *addr, Handler: mux}
	ctx, stop := oninterrupt.Context(context.Background())
	defer stop()

	go archiveLoop(ctx, *folder, *archiveAfter, *archiveEvery)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	log.Printf("crashserverd: listening on %s, writing into %s", *addr, *folder)
	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("crashserverd: %v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("crashserverd: shutdown: %v", err)
		}
	}
}

// sanitizeAddr keeps only ASCII alphanumerics from a remote address,
// replacing everything else with '_', matching _IPtoFileName.
func sanitizeAddr(addr string) string {
	out := make([]byte, len(addr))
	for i := 0; i < len(addr); i++ {
		c := addr[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

func handleUpload(folder string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}

		name := sanitizeAddr(r.RemoteAddr)
		path := filepath.Join(folder, name)

		f, err := os.Create(path)
		if err != nil {
			http.Error(w, "failed to write to a file", http.StatusInternalServerError)
			return
		}
		defer f.Close()

		if _, err := io.Copy(f, r.Body); err != nil {
			http.Error(w, "failed to write to a file", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusOK)
	go func() {
		log.Println("crashserverd: stop requested, exiting")
		os.Exit(0)
	}()
}
