package gitrepo

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
)

// gitCmd runs git in dir and fails the test on error.
func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v: %s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// setupClone builds a bare origin with one commit on main and a clone of it.
// Returns the clone path and a seed working copy that can push more commits
// to origin.
func setupClone(t *testing.T) (clone, seed string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	tmp := t.TempDir()
	origin := filepath.Join(tmp, "origin.git")
	gitCmd(t, tmp, "init", "--bare", "-b", "main", origin)

	seed = filepath.Join(tmp, "seed")
	gitCmd(t, tmp, "clone", origin, seed)
	gitCmd(t, seed, "config", "user.name", "test")
	gitCmd(t, seed, "config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(seed, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, seed, "add", "-A")
	gitCmd(t, seed, "commit", "-m", "initial commit")
	gitCmd(t, seed, "push", "origin", "main")

	clone = filepath.Join(tmp, "clone")
	gitCmd(t, tmp, "clone", origin, clone)
	gitCmd(t, clone, "config", "user.name", "test")
	gitCmd(t, clone, "config", "user.email", "test@example.com")
	return clone, seed
}

func testManager() *Manager {
	return NewManager("", "", "", "test", "test@example.com", logging.New(io.Discard))
}

func TestCheckoutBranchCreatesNew(t *testing.T) {
	clone, _ := setupClone(t)
	m := testManager()

	if !m.CheckoutBranch(context.Background(), clone, "feature/abc-1", "main") {
		t.Fatal("CheckoutBranch() = false, want true")
	}
	if got := gitCmd(t, clone, "rev-parse", "--abbrev-ref", "HEAD"); got != "feature/abc-1" {
		t.Errorf("current branch = %q, want feature/abc-1", got)
	}
}

func TestCheckoutBranchDiscardsLocalEdits(t *testing.T) {
	clone, _ := setupClone(t)
	m := testManager()
	ctx := context.Background()

	if !m.CheckoutBranch(ctx, clone, "feature/abc-1", "main") {
		t.Fatal("first checkout failed")
	}
	if err := os.WriteFile(filepath.Join(clone, "scratch.txt"), []byte("wip\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, clone, "add", "-A")
	gitCmd(t, clone, "commit", "-m", "local only")

	// Re-checkout must reset onto the remote state, dropping the unpushed
	// commit (the remote branch does not exist, so base is the fallback).
	if !m.CheckoutBranch(ctx, clone, "feature/abc-1", "main") {
		t.Fatal("second checkout failed")
	}
	if _, err := os.Stat(filepath.Join(clone, "scratch.txt")); err == nil {
		t.Error("expected unpushed local commit to be discarded")
	}
}

func TestCheckoutBranchMirrorsRemote(t *testing.T) {
	clone, seed := setupClone(t)
	m := testManager()
	ctx := context.Background()

	// Publish the feature branch from the seed copy.
	gitCmd(t, seed, "checkout", "-b", "feature/abc-1")
	if err := os.WriteFile(filepath.Join(seed, "feature.txt"), []byte("work\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, seed, "add", "-A")
	gitCmd(t, seed, "commit", "-m", "feature work")
	gitCmd(t, seed, "push", "origin", "feature/abc-1")

	if !m.CheckoutBranch(ctx, clone, "feature/abc-1", "main") {
		t.Fatal("CheckoutBranch() = false, want true")
	}
	if _, err := os.Stat(filepath.Join(clone, "feature.txt")); err != nil {
		t.Error("expected checkout to track the published remote branch")
	}
}

func TestDirtyFiles(t *testing.T) {
	clone, _ := setupClone(t)
	m := testManager()
	ctx := context.Background()

	files, err := m.DirtyFiles(ctx, clone)
	if err != nil {
		t.Fatalf("DirtyFiles() error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("fresh clone should be clean, got %v", files)
	}

	if err := os.WriteFile(filepath.Join(clone, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	files, err = m.DirtyFiles(ctx, clone)
	if err != nil {
		t.Fatalf("DirtyFiles() error: %v", err)
	}
	if len(files) != 1 || files[0] != "new.txt" {
		t.Errorf("DirtyFiles() = %v, want [new.txt]", files)
	}
}

func TestCommitsAheadAndFetch(t *testing.T) {
	clone, seed := setupClone(t)
	m := testManager()
	ctx := context.Background()

	// Advance origin/main from the seed copy.
	if err := os.WriteFile(filepath.Join(seed, "more.txt"), []byte("y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, seed, "add", "-A")
	gitCmd(t, seed, "commit", "-m", "advance main")
	gitCmd(t, seed, "push", "origin", "main")

	if err := m.Fetch(ctx, clone, "main"); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	n, err := m.CommitsAhead(ctx, clone, "HEAD", "origin/main")
	if err != nil {
		t.Fatalf("CommitsAhead() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CommitsAhead() = %d, want 1", n)
	}
}

func TestHasConflictMarkers(t *testing.T) {
	clone, _ := setupClone(t)
	m := testManager()
	ctx := context.Background()

	got, err := m.HasConflictMarkers(ctx, clone)
	if err != nil {
		t.Fatalf("HasConflictMarkers() error: %v", err)
	}
	if got {
		t.Error("clean tree reported conflict markers")
	}

	marked := "<<<<<<< HEAD\nours\n=======\ntheirs\n>>>>>>> main\n"
	if err := os.WriteFile(filepath.Join(clone, "conflicted.txt"), []byte(marked), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, clone, "add", "conflicted.txt")

	got, err = m.HasConflictMarkers(ctx, clone)
	if err != nil {
		t.Fatalf("HasConflictMarkers() error: %v", err)
	}
	if !got {
		t.Error("expected conflict markers to be detected")
	}
}

func TestCommitSubjects(t *testing.T) {
	clone, _ := setupClone(t)
	m := testManager()
	ctx := context.Background()

	gitCmd(t, clone, "checkout", "-b", "feature/abc-1")
	if err := os.WriteFile(filepath.Join(clone, "a.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	gitCmd(t, clone, "add", "-A")
	gitCmd(t, clone, "commit", "-m", "add a")

	subjects, err := m.CommitSubjects(ctx, clone, "origin/main..HEAD")
	if err != nil {
		t.Fatalf("CommitSubjects() error: %v", err)
	}
	if len(subjects) != 1 || subjects[0] != "add a" {
		t.Errorf("CommitSubjects() = %v, want [add a]", subjects)
	}
}

func TestRepoPath(t *testing.T) {
	m := NewManager("/data/repos", "u", "t", "n", "e", logging.New(io.Discard))
	got := m.RepoPath(hosting.RepoRef{Owner: "acme", Name: "widgets"})
	if got != filepath.Join("/data/repos", "widgets") {
		t.Errorf("RepoPath() = %q", got)
	}
}
