// Command pipelinec compiles a tree of pipeline declaration scripts into a
// versioned binary pipeline pack (§4.5), shelling out to glslangValidator
// and spirv-cross for the GLSL->SPIR-V compile and reflection steps the
// spec treats as an opaque black box (§1/§6).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/aeforge/buildpack/pipelinepack"
	"github.com/aeforge/buildpack/shader"
)

func main() {
	var (
		pipelinesDir = flag.String("pipelines_dir", "", "directory to recursively scan for *.pipeline declaration scripts")
		shaderRoots  = flag.String("shader_roots", "", "comma-separated shader search roots")
		workingRoot  = flag.String("working_root", "", "path-safety root every declared shader path must resolve under (default: pipelines_dir)")
		out          = flag.String("out", "pipelines.pack", "output pack path")
	)
	flag.Parse()

	if *pipelinesDir == "" {
		fmt.Fprintln(os.Stderr, "pipelinec: -pipelines_dir is required")
		os.Exit(2)
	}
	root := *workingRoot
	if root == "" {
		root = *pipelinesDir
	}

	storage := &pipelinepack.Storage{}
	if err := pipelinepack.LoadDecls(*pipelinesDir, storage); err != nil {
		fatal(err)
	}

	compiler := &shader.Compiler{
		Reflect: reflectSPIRV,
		Compile: compileGLSL,
	}

	var roots []string
	for _, r := range strings.Split(*shaderRoots, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, r)
		}
	}
	if len(roots) == 0 {
		roots = []string{*pipelinesDir}
	}

	builder := pipelinepack.NewBuilder(storage, compiler, roots, root)
	builder.Logger = log.New(os.Stderr, "pipelinec: ", 0)

	pack, err := builder.Run(func(path string) (string, error) {
		raw, err := os.ReadFile(path)
		return string(raw), err
	})
	if err != nil {
		fatal(err)
	}

	if builder.ErrorCount() > 0 {
		printSummary(builder.ErrorCount())
	}

	if err := pipelinepack.WriteFile(*out, pack); err != nil {
		fatal(err)
	}

	fmt.Fprintf(os.Stderr, "pipelinec: wrote %s (%d graphics, %d mesh, %d compute pipelines)\n",
		*out, len(pack.GraphicsPipelines), len(pack.MeshPipelines), len(pack.ComputePipelines))
}

func printSummary(errCount int) {
	msg := fmt.Sprintf("pipelinec: %d error(s) while building pipelines\n", errCount)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[33m%s\x1b[0m", msg)
		return
	}
	fmt.Fprint(os.Stderr, msg)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "pipelinec: %v\n", err)
	os.Exit(1)
}
