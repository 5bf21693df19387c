// Command buildserverd runs the scripted remote build server (§4.8): each
// submitted build carries its own recipe script as the PUT /build request
// body, executed in a fresh sandboxed workspace per request.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/go-github/v27/github"
	"golang.org/x/oauth2"

	"github.com/aeforge/buildpack/buildserver"
	"github.com/aeforge/buildpack/internal/config"
	"github.com/aeforge/buildpack/internal/oninterrupt"
)

func main() {
	var (
		addr        = flag.String("listen", ":7080", "HTTP listen address")
		maxBuilds   = flag.Int("max_builds", 8, "maximum number of builds allowed to run concurrently; PUT /build is rejected with 500 over this cap")
		workDir     = flag.String("work_dir", config.WorkRoot, "working root every build's sandboxed workspace is created under")
		deployDir   = flag.String("deploy_dir", config.DeployRoot, "root Deploy() copies distributables into")
		accessToken = flag.String("github_access_token", "", "oauth2 GitHub access token; when set, posts a commit status after every build")
		statusRepo  = flag.String("github_repo", "", "owner/repo (or https://github.com/owner/repo) the commit status is posted against")
		statusCtx   = flag.String("github_status_context", "buildserverd", "status context name shown on the GitHub commit")
	)
	flag.Parse()

	srv := buildserver.New(*workDir, *deployDir, *maxBuilds)

	if *accessToken != "" {
		if *statusRepo == "" {
			log.Fatal("buildserverd: -github_repo is required when -github_access_token is set")
		}
		owner, repo, err := splitRepo(*statusRepo)
		if err != nil {
			log.Fatalf("buildserverd: %v", err)
		}
		srv.OnBuildComplete = newGitHubNotifier(*accessToken, owner, repo, *statusCtx)
	}

	ctx, stop := oninterrupt.Context(context.Background())
	defer stop()

	log.Printf("buildserverd: listening on %s, working root %s", *addr, *workDir)
	if err := srv.Run(ctx, *addr); err != nil {
		log.Fatalf("buildserverd: %v", err)
	}
}

// splitRepo accepts either "owner/repo" or a full GitHub URL, matching
// cmd/autobuilder's -repo flag handling.
func splitRepo(s string) (owner, repo string, err error) {
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimSuffix(s, ".git")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid -github_repo %q, want owner/repo", s)
	}
	return parts[0], parts[1], nil
}

// newGitHubNotifier returns an OnBuildComplete callback that posts a
// commit status for the recipe's last resolved commit hash, grounded on
// cmd/autobuilder's oauth2.StaticTokenSource + github.NewClient wiring
// (generalized here from a polling loop into a per-build notifier).
func newGitHubNotifier(accessToken, owner, repo, statusContext string) func(id, commitHash string, hasErrors bool) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	client := github.NewClient(oauth2.NewClient(context.Background(), ts))

	return func(id, commitHash string, hasErrors bool) {
		if commitHash == "" {
			log.Printf("buildserverd: build %s: no commit hash recorded, skipping status", id)
			return
		}
		state := "success"
		desc := "build " + id + " passed"
		if hasErrors {
			state = "failure"
			desc = "build " + id + " failed"
		}
		status := &github.RepoStatus{
			State:       &state,
			Description: &desc,
			Context:     &statusContext,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, _, err := client.Repositories.CreateStatus(ctx, owner, repo, commitHash, status); err != nil {
			log.Printf("buildserverd: build %s: posting GitHub status: %v", id, err)
		}
	}
}
