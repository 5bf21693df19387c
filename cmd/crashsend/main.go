// Command crashsend composes a crash container (§4.7) from a minidump and
// an optional log tail, then POSTs it to a crashserverd instance's
// /upload endpoint (§2 crash data flow).
package main

import (
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/aeforge/buildpack/crashpack"
	"github.com/aeforge/buildpack/stream"
)

func main() {
	var (
		server    = flag.String("server", "", "crashserverd base URL, e.g. http://127.0.0.1:7070")
		dumpPath  = flag.String("dump", "", "path to the minidump file")
		logPath   = flag.String("log", "", "path to a log file to attach (optional)")
		userInfo  = flag.String("user_info", "", "free-form user/device info string")
		symbolsID = flag.String("symbols_id", "", "symbols identifier string")
	)
	flag.Parse()

	if *server == "" || *dumpPath == "" {
		fmt.Fprintln(os.Stderr, "crashsend: -server and -dump are required")
		os.Exit(2)
	}

	dump, err := os.ReadFile(*dumpPath)
	if err != nil {
		fatal(err)
	}

	var logBytes []byte
	if *logPath != "" {
		logBytes, err = os.ReadFile(*logPath)
		if err != nil {
			fatal(err)
		}
	}

	container := &crashpack.Container{
		UserInfo:  *userInfo,
		SymbolsID: *symbolsID,
		Log:       logBytes,
		Dump:      dump,
	}

	w := stream.NewMemWriter()
	if err := crashpack.Write(w, container); err != nil {
		fatal(err)
	}

	resp, err := http.Post(*server+"/upload", "application/octet-stream", bytes.NewReader(w.Bytes()))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "crashsend: server returned %s\n", resp.Status)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, "crashsend: upload succeeded")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "crashsend: %v\n", err)
	os.Exit(1)
}
