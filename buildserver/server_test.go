package buildserver

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	work := filepath.Join(t.TempDir(), "work")
	deploy := filepath.Join(t.TempDir(), "deploy")
	s := New(work, deploy, 0)
	if err := s.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	return s
}

func waitForBuild(t *testing.T, s *Server, id string) *Build {
	t.Helper()
	s.mu.Lock()
	b := s.builds[id]
	s.mu.Unlock()
	if b == nil {
		t.Fatalf("no build with id %q", id)
	}
	select {
	case <-b.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("build %q did not finish in time", id)
	}
	return b
}

// putBuild submits recipeSrc as a PUT /build body and returns the response
// recorder and the id parsed out of its "BuildID: <id>" body.
func putBuild(t *testing.T, s *Server, recipeSrc string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/build", strings.NewReader(recipeSrc))
	s.handleBuild(rr, req)

	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q, want text/plain", ct)
	}
	id, ok := parseBuildID(rr.Body.String())
	if !ok {
		t.Fatalf("response body = %q, want \"BuildID: <id>\"", rr.Body.String())
	}
	return rr, id
}

func parseBuildID(body string) (string, bool) {
	const prefix = "BuildID: "
	if !strings.HasPrefix(body, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(body, prefix)
	if id == "" {
		return "", false
	}
	return id, true
}

func TestHandleBuildHappyPath(t *testing.T) {
	s := testServer(t)

	rr, id := putBuild(t, s, `api.MakeDir("out")`+"\n")
	if rr.Code != 200 {
		t.Fatalf("PUT /build status = %d, want 200", rr.Code)
	}

	b := waitForBuild(t, s, id)
	if b.running() {
		t.Error("build still running after worker finished")
	}

	if _, err := os.Stat(filepath.Join(s.WorkDir, "build-"+id)); !os.IsNotExist(err) {
		t.Error("build workspace was not cleaned up")
	}
}

// TestHandleBuildRunsSubmittedRecipe is the core per-build-recipe
// regression test: two requests on the same running server, each with its
// own distinct recipe body, must each execute their own script — not a
// shared, server-wide one.
func TestHandleBuildRunsSubmittedRecipe(t *testing.T) {
	s := testServer(t)

	_, idA := putBuild(t, s, `api.MakeDir("marker-a")`+"\n")
	_, idB := putBuild(t, s, `api.MakeDir("marker-b")`+"\n")

	bA := waitForBuild(t, s, idA)
	bB := waitForBuild(t, s, idB)

	logA := bA.log.Swap()
	logB := bB.log.Swap()

	if strings.Contains(logA, "marker-b") {
		t.Errorf("build %s ran the other build's recipe: log = %q", idA, logA)
	}
	if strings.Contains(logB, "marker-a") {
		t.Errorf("build %s ran the other build's recipe: log = %q", idB, logB)
	}
}

func TestHandleBuildMaxBuildsRejectsOverCap(t *testing.T) {
	s := testServer(t)
	s.MaxBuilds = 1
	s.builds["running"] = &Build{ID: "running", looping: 1, startTime: time.Now(), done: make(chan struct{})}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", "/build", strings.NewReader(`api.MakeDir("out")`+"\n"))
	s.handleBuild(rr, req)

	if rr.Code != 500 {
		t.Errorf("PUT /build status = %d, want 500 over max_builds", rr.Code)
	}
}

func TestHandleBuildParseErrorStillEchoesID(t *testing.T) {
	s := testServer(t)

	rr, id := putBuild(t, s, "not a valid recipe (((")
	if rr.Code != 500 {
		t.Errorf("PUT /build status = %d, want 500 on recipe parse failure", rr.Code)
	}
	if id == "" {
		t.Error("response must still echo a BuildID on parse failure")
	}

	b := waitForBuild(t, s, id)
	if b.running() {
		t.Error("build with a parse error should be immediately finished")
	}
}

func TestHandleBuildStatusEOFSentinel(t *testing.T) {
	s := testServer(t)

	_, id := putBuild(t, s, `api.MakeDir("out")`+"\n")
	waitForBuild(t, s, id)

	// Drain whatever log text accumulated.
	rr := httptest.NewRecorder()
	s.handleBuildStatus(rr, httptest.NewRequest("GET", "/build_status/"+id, nil))

	// A second poll on a finished, already-drained build must return the
	// eof sentinel (§4.8 log streaming).
	rr = httptest.NewRecorder()
	s.handleBuildStatus(rr, httptest.NewRequest("GET", "/build_status/"+id, nil))
	if got := rr.Body.String(); got != "=== eof ===" {
		t.Errorf("second status poll = %q, want eof sentinel", got)
	}
}

func TestHandleBuildStatusUnknownIDNotFound(t *testing.T) {
	s := testServer(t)
	rr := httptest.NewRecorder()
	s.handleBuildStatus(rr, httptest.NewRequest("GET", "/build_status/deadbeef", nil))
	if rr.Code != 404 {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	s := testServer(t)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/nonexistent", nil))
	if rr.Code != 404 {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestSandboxViolationCountsError(t *testing.T) {
	s := testServer(t)
	var hadErrors bool
	s.OnBuildComplete = func(id, commitHash string, hasErrors bool) { hadErrors = hasErrors }

	_, id := putBuild(t, s, `api.MakeDir("../escape")`+"\n")
	b := waitForBuild(t, s, id)

	chunk := b.log.Swap()
	if !strings.Contains(chunk, "MakeDir") {
		t.Errorf("log = %q, want a MakeDir failure message", chunk)
	}
	if !hadErrors {
		t.Error("hasErrors = false after a sandbox violation, want true")
	}
}

func TestStopClearsLoopingForActiveBuilds(t *testing.T) {
	s := testServer(t)
	b := &Build{ID: "abc", looping: 1, startTime: time.Now(), done: make(chan struct{})}
	s.builds["abc"] = b

	rr := httptest.NewRecorder()
	s.handleStop(rr, httptest.NewRequest("PUT", "/stop", nil))
	if rr.Code != 200 {
		t.Fatalf("PUT /stop status = %d, want 200", rr.Code)
	}
	if b.looping != 0 {
		t.Error("looping not cleared after /stop")
	}
}

func TestReapDeletesOldFinishedBuilds(t *testing.T) {
	s := testServer(t)
	old := &Build{ID: "old", endTime: time.Now().Add(-2 * retainFor), done: make(chan struct{})}
	recent := &Build{ID: "recent", endTime: time.Now(), done: make(chan struct{})}
	s.builds["old"] = old
	s.builds["recent"] = recent

	s.reapOnce(time.Now())

	if _, ok := s.builds["old"]; ok {
		t.Error("old finished build was not reaped")
	}
	if _, ok := s.builds["recent"]; !ok {
		t.Error("recently finished build was reaped too early")
	}
}

func TestRunCanBeCanceled(t *testing.T) {
	s := testServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-errc:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	if _, err := os.Stat(s.WorkDir); !os.IsNotExist(err) {
		t.Error("working root was not wiped on shutdown")
	}
}
