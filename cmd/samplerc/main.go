// Command samplerc compiles a tree of sampler declaration scripts into a
// versioned binary sampler pack (§4.6).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/aeforge/buildpack/samplerpack"
)

func main() {
	var (
		samplersDir = flag.String("samplers_dir", "", "directory to recursively scan for *.samp declaration scripts")
		out         = flag.String("out", "samplers.pack", "output pack path")
	)
	flag.Parse()

	if *samplersDir == "" {
		fmt.Fprintln(os.Stderr, "samplerc: -samplers_dir is required")
		os.Exit(2)
	}

	storage := &samplerpack.Storage{}
	if err := samplerpack.LoadDecls(*samplersDir, storage); err != nil {
		fatal(err)
	}

	pack, fixups, err := storage.Build()
	if err != nil {
		fatal(err)
	}
	if fixups > 0 {
		printFixupWarning(fixups)
	}

	if err := samplerpack.WriteFile(*out, pack); err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stderr, "samplerc: wrote %s (%d distinct samplers, %d names)\n",
		*out, len(pack.Samplers), len(pack.Names))
}

func printFixupWarning(fixups int) {
	msg := fmt.Sprintf("samplerc: %d sampler(s) required a validation fixup\n", fixups)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[33m%s\x1b[0m", msg)
		return
	}
	fmt.Fprint(os.Stderr, msg)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "samplerc: %v\n", err)
	os.Exit(1)
}
