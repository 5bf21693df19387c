// Package buildserver implements the scripted remote build server (§4.8):
// HTTP surface, per-build isolated workspace, the script API external
// recipe steps call into, a subprocess watchdog, log streaming and a
// reaper, grounded on
// original_source/crash_report/build_server/{main.cpp,BuildServerApi.h}.
package buildserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/aeforge/buildpack/internal/config"
	"github.com/aeforge/buildpack/internal/sandbox"
)

// toolPath resolves an external tool binary name (git, cmake, ctest,
// gradlew, adb) against config.ToolRoot when set, mirroring the source's
// compile-time AE_GIT_EXE/AE_CMAKE_EXE constants as an overridable
// runtime default; with ToolRoot unset, the bare name is resolved from
// PATH as before.
func toolPath(name string) string {
	if config.ToolRoot == "" {
		return name
	}
	return filepath.Join(config.ToolRoot, name)
}

// Compiler selects the CMake generator CMakeGen emits.
type Compiler int

const (
	CompilerVS2019 Compiler = iota
	CompilerVS2019v141
	CompilerVS2017
)

var compilerNames = map[string]Compiler{
	"VisualStudio2019":      CompilerVS2019,
	"VisualStudio2019_v141": CompilerVS2019v141,
	"VisualStudio2017":      CompilerVS2017,
}

// ParseCompiler resolves a recipe identifier to a Compiler.
func ParseCompiler(s string) (Compiler, bool) { c, ok := compilerNames[s]; return c, ok }

// Arch selects the CMake architecture flag CMakeGen emits.
type Arch int

const (
	ArchX86 Arch = iota
	ArchX64
)

var archNames = map[string]Arch{"x86": ArchX86, "x64": ArchX64}

// ParseArch resolves a recipe identifier to an Arch.
func ParseArch(s string) (Arch, bool) { a, ok := archNames[s]; return a, ok }

// ScriptAPI is the sandboxed view a build recipe executes against,
// equivalent to BuildScriptApi. Every method that accepts a path
// resolves it relative to the current directory and rejects anything
// that would escape workDir (§4.8).
type ScriptAPI struct {
	ctx       context.Context
	workDir   string
	curDir    string
	deployDir string
	log       *buildLog
	looping   *int32 // 0 = stop, nonzero = keep going
	errors    int32  // atomic error counter
	device    string

	lastHash string // most recent non-empty GitGetHash result
}

// NewScriptAPI returns a ScriptAPI rooted at workDir with curDir ==
// workDir, matching the constructor's _currentDir{workDir} default.
func NewScriptAPI(ctx context.Context, workDir, deployDir string, log *buildLog, looping *int32) *ScriptAPI {
	return &ScriptAPI{
		ctx:       ctx,
		workDir:   workDir,
		curDir:    workDir,
		deployDir: deployDir,
		log:       log,
		looping:   looping,
	}
}

// HasErrors reports whether any operation failed or was rejected by the
// sandbox.
func (a *ScriptAPI) HasErrors() bool { return atomic.LoadInt32(&a.errors) > 0 }

// ErrorCount returns the number of failed/rejected operations so far.
func (a *ScriptAPI) ErrorCount() int { return int(atomic.LoadInt32(&a.errors)) }

func (a *ScriptAPI) stopped() bool { return atomic.LoadInt32(a.looping) == 0 }

func (a *ScriptAPI) fail(op, msg string) bool {
	a.log.Append(fmt.Sprintf("%s: %s\n", op, msg))
	atomic.AddInt32(&a.errors, 1)
	return false
}

// resolve sandboxes path (interpreted relative to the current
// directory) against workDir; on violation it logs and counts an error,
// matching the source's ".." substring check on the relative path.
func (a *ScriptAPI) resolve(op, path string) (string, bool) {
	candidate := filepath.Join(a.curDir, path)
	resolved, err := sandbox.Resolve(a.workDir, candidate)
	if err != nil {
		a.fail(op, "invalid path")
		return "", false
	}
	return resolved, true
}

func (a *ScriptAPI) run(argv []string, dir string) (string, bool) {
	return runCommand(a.ctx, argv, dir, a.looping, 0)
}

// --- source control ---------------------------------------------------

// GitClone clones url at branch into dstFolder (relative to the current
// directory).
func (a *ScriptAPI) GitClone(url, branch, dstFolder string) bool {
	if a.stopped() {
		return false
	}
	dst, ok := a.resolve("GitClone", dstFolder)
	if !ok {
		return false
	}
	argv := []string{toolPath("git"), "clone", url, dst}
	if branch != "" {
		argv = append(argv, "--branch", branch)
	}
	return execAndLog(a.ctx, argv, a.curDir, a.looping, a.log)
}

// GitGetBranch returns the current branch checked out at path.
func (a *ScriptAPI) GitGetBranch(path string) string {
	if a.stopped() {
		return ""
	}
	dir, ok := a.resolve("GitGetBranch", path)
	if !ok {
		return ""
	}
	out, _ := a.run([]string{toolPath("git"), "-C", dir, "rev-parse", "--abbrev-ref", "HEAD"}, a.curDir)
	return strings.TrimSpace(out)
}

// GitGetHash returns the commit hash checked out at path, abbreviated
// when short is true.
func (a *ScriptAPI) GitGetHash(path string, short bool) string {
	if a.stopped() {
		return ""
	}
	dir, ok := a.resolve("GitGetHash", path)
	if !ok {
		return ""
	}
	argv := []string{toolPath("git"), "-C", dir, "rev-parse"}
	if short {
		argv = append(argv, "--short")
	}
	argv = append(argv, "HEAD")
	out, _ := a.run(argv, a.curDir)
	hash := strings.TrimSpace(out)
	if hash != "" {
		a.lastHash = hash
	}
	return hash
}

// LastCommitHash returns the most recent non-empty hash GitGetHash
// resolved during this build, or "" if it was never called. Used by the
// GitHub status notifier to identify which commit a build covered.
func (a *ScriptAPI) LastCommitHash() string { return a.lastHash }

// --- cmake --------------------------------------------------------------

// CMakeGen runs `cmake -S sourceDir -B buildDir` for the given
// compiler/arch/defines.
func (a *ScriptAPI) CMakeGen(comp Compiler, arch Arch, sourceDir, buildDir string, defines []string) bool {
	if a.stopped() {
		return false
	}
	src, ok := a.resolve("CMakeGen", sourceDir)
	if !ok {
		return false
	}
	build, ok := a.resolve("CMakeGen", buildDir)
	if !ok {
		return false
	}

	argv := []string{toolPath("cmake")}
	switch comp {
	case CompilerVS2017:
		gen := "Visual Studio 15 2017"
		if arch == ArchX64 {
			gen += " Win64"
		}
		argv = append(argv, "-G", gen)
	case CompilerVS2019, CompilerVS2019v141:
		argv = append(argv, "-G", "Visual Studio 16 2019")
		if comp == CompilerVS2019v141 {
			argv = append(argv, "-T", "v141")
		}
		if arch == ArchX86 {
			argv = append(argv, "-A", "Win32")
		}
	}
	argv = append(argv, "-S", src, "-B", build)
	for _, def := range defines {
		argv = append(argv, "-D"+def)
	}
	return execAndLog(a.ctx, argv, a.curDir, a.looping, a.log)
}

// CMakeBuild runs `cmake --build buildDir [--config config] [--target target]`.
func (a *ScriptAPI) CMakeBuild(buildDir, config, target string) bool {
	if a.stopped() {
		return false
	}
	build, ok := a.resolve("CMakeBuild", buildDir)
	if !ok {
		return false
	}
	argv := []string{toolPath("cmake"), "--build", build}
	if config != "" {
		argv = append(argv, "--config", config)
	}
	if target != "" {
		argv = append(argv, "--target", target)
	}
	return execAndLog(a.ctx, argv, a.curDir, a.looping, a.log)
}

// CMakeInstall runs `cmake --install buildDir --prefix dstFolder [...]`.
func (a *ScriptAPI) CMakeInstall(buildDir, dstFolder, config, target string) bool {
	if a.stopped() {
		return false
	}
	build, ok := a.resolve("CMakeInstall", buildDir)
	if !ok {
		return false
	}
	var dst string
	if dstFolder != "" {
		dst, ok = a.resolve("CMakeInstall", dstFolder)
		if !ok {
			return false
		}
	}
	argv := []string{toolPath("cmake"), "--install", build}
	if dst != "" {
		argv = append(argv, "--prefix", dst)
	}
	if config != "" {
		argv = append(argv, "--config", config)
	}
	if target != "" {
		argv = append(argv, "--target", target)
	}
	return execAndLog(a.ctx, argv, a.curDir, a.looping, a.log)
}

// passedAll100Percent reports whether ctest output's "tests failed out
// of" summary line also contains "100% tests passed", the exact test
// parsing rule from §4.8.
func passedAll100Percent(output string) bool {
	pos := strings.Index(output, "tests failed out of")
	if pos < 0 {
		return false
	}
	lineStart := strings.LastIndexByte(output[:pos], '\n') + 1
	lineEndOffset := strings.IndexByte(output[pos:], '\n')
	lineEnd := len(output)
	if lineEndOffset >= 0 {
		lineEnd = pos + lineEndOffset
	}
	return strings.Contains(output[lineStart:lineEnd], "100% tests passed")
}

// CTest runs ctest in exeDir and reports success per passedAll100Percent.
func (a *ScriptAPI) CTest(exeDir, config string) bool {
	if a.stopped() {
		return false
	}
	dir, ok := a.resolve("CTest", exeDir)
	if !ok {
		return false
	}
	argv := []string{toolPath("ctest")}
	if exeDir != "" {
		argv = append(argv, "--build-exe-dir", dir)
	}
	argv = append(argv, "-C", config, "--verbose")

	out, ranOK := a.run(argv, a.curDir)
	a.log.Append(out)
	if !ranOK {
		atomic.AddInt32(&a.errors, 1)
		return false
	}
	if !passedAll100Percent(out) {
		atomic.AddInt32(&a.errors, 1)
		return false
	}
	return true
}

// --- android --------------------------------------------------------

const (
	externalNativeBuildKey = "externalNativeBuild"
	argumentsKey           = "arguments"
)

// injectGradleDefines finds every build.gradle under root (depth <= 2),
// locates its externalNativeBuild { ... arguments [...] } block, and
// inserts the given cmake defines into the arguments list, matching
// AndroidBuild's brace-matching injection exactly.
func injectGradleDefines(root string, defines []string) error {
	if len(defines) == 0 {
		return nil
	}
	files, err := findBuildGradleFiles(root)
	if err != nil {
		return err
	}

	var argText strings.Builder
	for _, def := range defines {
		argText.WriteString("\n\t\t\t\t\t\t  '-D" + def + "',")
	}
	argText.WriteString("\n\t\t\t\t\t\t ")

	for _, fname := range files {
		src, err := os.ReadFile(fname)
		if err != nil {
			continue
		}
		text := string(src)
		pos := strings.Index(text, externalNativeBuildKey)
		if pos < 0 {
			continue
		}
		begin := pos + len(externalNativeBuildKey)
		brace := strings.IndexByte(text[begin:], '{')
		if brace < 0 {
			continue
		}
		brace += begin + 1
		depth := 1
		end := brace
		for ; depth > 0 && end < len(text); end++ {
			switch text[end] {
			case '{':
				depth++
			case '}':
				depth--
			}
		}
		argPos := strings.Index(text[begin:end], argumentsKey)
		if argPos < 0 {
			continue
		}
		insertAt := begin + argPos + len(argumentsKey) + 1
		if insertAt > len(text) {
			continue
		}
		newText := text[:insertAt] + argText.String() + text[insertAt:]
		_ = os.WriteFile(fname, []byte(newText), 0644)
	}
	return nil
}

// findBuildGradleFiles walks root and its immediate subdirectories
// (depth <= 2, matching the source's two-level Enum loop) for files
// named build.gradle.
func findBuildGradleFiles(root string) ([]string, error) {
	var files []string
	topEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var subdirs []string
	for _, e := range topEntries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(root, e.Name()))
			continue
		}
		if e.Name() == "build.gradle" {
			files = append(files, filepath.Join(root, e.Name()))
		}
	}
	for _, dir := range subdirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && e.Name() == "build.gradle" {
				files = append(files, filepath.Join(dir, e.Name()))
			}
		}
	}
	return files, nil
}

// AndroidBuild injects defines into every build.gradle under sourceDir
// and runs `gradlew build`, succeeding iff the output contains at least
// one "BUILD SUCCESSFUL" and zero "BUILD FAILED".
func (a *ScriptAPI) AndroidBuild(sourceDir string, defines []string) bool {
	if a.stopped() {
		return false
	}
	src, ok := a.resolve("AndroidBuild", sourceDir)
	if !ok {
		return false
	}
	if err := injectGradleDefines(src, defines); err != nil {
		return a.fail("AndroidBuild", err.Error())
	}

	out, ranOK := a.run([]string{toolPath("gradlew"), "build"}, src)
	a.log.Append(out)
	if !ranOK {
		atomic.AddInt32(&a.errors, 1)
		return false
	}
	successes := strings.Count(out, "BUILD SUCCESSFUL")
	failures := strings.Count(out, "BUILD FAILED")
	ok = successes > 0 && failures == 0
	if !ok {
		atomic.AddInt32(&a.errors, 1)
	}
	return ok
}

// AndroidDevices lists attached device ids via `adb devices -l`.
func (a *ScriptAPI) AndroidDevices() []string {
	out, ranOK := a.run([]string{toolPath("adb"), "devices", "-l"}, a.curDir)
	if !ranOK {
		atomic.AddInt32(&a.errors, 1)
		return nil
	}
	var devices []string
	lines := strings.Split(out, "\n")
	header := -1
	for i, l := range lines {
		if strings.Contains(l, "List of devices attached") {
			header = i
			break
		}
	}
	if header < 0 {
		return nil
	}
	for _, l := range lines[header+1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		fields := strings.Fields(l)
		devices = append(devices, fields[0])
	}
	return devices
}

// AndroidSetDevice selects device for subsequent adb commands.
func (a *ScriptAPI) AndroidSetDevice(device string) bool {
	a.device = device
	return true
}

// AndroidConnectDevice connects to a device over Wi-Fi at ip.
func (a *ScriptAPI) AndroidConnectDevice(ip string) bool {
	a.device = ip
	a.run([]string{toolPath("adb"), "connect", ip}, a.curDir)
	return true
}

// AndroidRun is a no-op placeholder, matching the source's stub.
func (a *ScriptAPI) AndroidRun(sourceDir string) bool { return true }

// AndroidCopyTo is a no-op placeholder, matching the source's stub.
func (a *ScriptAPI) AndroidCopyTo(src, dst string) bool { return true }

// --- filesystem -------------------------------------------------------

// CurDir changes the recipe's current directory.
func (a *ScriptAPI) CurDir(dir string) bool {
	if a.stopped() {
		return false
	}
	resolved, ok := a.resolve("CurDir", dir)
	if !ok {
		return false
	}
	a.log.Append("cd " + strconv.Quote(resolved) + "\n")
	a.curDir = resolved
	return true
}

// MakeDir creates dir (and any parents) under the current directory.
func (a *ScriptAPI) MakeDir(dir string) bool {
	if a.stopped() {
		return false
	}
	resolved, ok := a.resolve("MakeDir", dir)
	if !ok {
		return false
	}
	a.log.Append("mkdir " + strconv.Quote(resolved) + "\n")
	if err := os.MkdirAll(resolved, 0755); err != nil {
		return a.fail("MakeDir", err.Error())
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.IsDir()
}

// IsFile reports whether path names a regular file.
func (a *ScriptAPI) IsFile(path string) bool {
	if a.stopped() {
		return false
	}
	resolved, ok := a.resolve("IsFile", path)
	if !ok {
		return false
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.Mode().IsRegular()
}

// IsDirectory reports whether path names a directory.
func (a *ScriptAPI) IsDirectory(path string) bool {
	if a.stopped() {
		return false
	}
	resolved, ok := a.resolve("IsDirectory", path)
	if !ok {
		return false
	}
	fi, err := os.Stat(resolved)
	return err == nil && fi.IsDir()
}

// --- deploy -------------------------------------------------------------

// validateFileName replaces each character unsafe in a path component
// with '_', matching FileSystem::ValidateFileName.
func validateFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// Deploy copies distFolder/debugSymbolsFolder into
// <deployDir>/<version>/{dist,dbg_sym}, failing if that version folder
// already exists.
func (a *ScriptAPI) Deploy(version, distFolder, debugSymbolsFolder string) bool {
	if a.stopped() {
		return false
	}
	dist, ok := a.resolve("Deploy", distFolder)
	if !ok {
		return false
	}
	var dbgSym string
	if debugSymbolsFolder != "" {
		dbgSym, ok = a.resolve("Deploy", debugSymbolsFolder)
		if !ok {
			return false
		}
	}

	ver := validateFileName(version)
	verFolder := filepath.Join(a.deployDir, ver)
	if _, err := os.Stat(verFolder); err == nil {
		return a.fail("Deploy", fmt.Sprintf("folder %q already exists", verFolder))
	}
	if err := os.MkdirAll(verFolder, 0755); err != nil {
		return a.fail("Deploy", err.Error())
	}

	if fi, err := os.Stat(dist); err != nil || !fi.IsDir() {
		return a.fail("Deploy", fmt.Sprintf("distributive folder %q doesn't exist", dist))
	}
	if err := copyDirectory(dist, filepath.Join(verFolder, "dist")); err != nil {
		return a.fail("Deploy", err.Error())
	}

	if debugSymbolsFolder != "" {
		if fi, err := os.Stat(dbgSym); err != nil || !fi.IsDir() {
			return a.fail("Deploy", fmt.Sprintf("debug symbols folder %q doesn't exist", dbgSym))
		}
		if err := copyDirectory(dbgSym, filepath.Join(verFolder, "dbg_sym")); err != nil {
			return a.fail("Deploy", err.Error())
		}
	}
	return true
}

