// Package config captures environment-rooted build-server settings, the
// same small env-var-first pattern as the teacher's internal/env.
package config

import "os"

// WorkRoot is the per-build workspace root (wiped and re-created at
// server startup and again at shutdown, §4.8).
var WorkRoot = findEnv("BUILDPACK_WORKDIR", "/var/lib/buildpack/work")

// DeployRoot is where BuildScriptApi.Deploy places finished artifacts.
var DeployRoot = findEnv("BUILDPACK_DEPLOY_DIR", "/var/lib/buildpack/deploy")

// ToolRoot is the root under which external tool binaries (git, cmake,
// gradlew, adb) are resolved, mirroring the original's AE_GIT_EXE/
// AE_CMAKE_EXE compile-time constants as an overridable runtime default.
var ToolRoot = findEnv("BUILDPACK_ROOT", "")

func findEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
