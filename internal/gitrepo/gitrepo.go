package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/nozcat/adam/internal/hosting"
	"github.com/nozcat/adam/internal/logging"
)

// Manager owns the local clones, one per repository name. Clones are created
// on first reference and never deleted.
type Manager struct {
	reposDir    string
	username    string
	token       string
	commitName  string
	commitEmail string
	logger      *logging.Logger
}

// NewManager creates a clone manager rooted at reposDir.
func NewManager(reposDir, username, token, commitName, commitEmail string, logger *logging.Logger) *Manager {
	return &Manager{
		reposDir:    reposDir,
		username:    username,
		token:       token,
		commitName:  commitName,
		commitEmail: commitEmail,
		logger:      logger,
	}
}

// RepoPath returns the local clone directory for a repository.
func (m *Manager) RepoPath(repo hosting.RepoRef) string {
	return filepath.Join(m.reposDir, repo.Name)
}

// run executes git in dir and returns combined output.
func (m *Manager) run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// EnsureRepository makes sure a local clone exists, cloning and configuring
// the commit identity on first reference. Returns the clone path and whether
// the repository is usable. Failures are logged, never propagated.
func (m *Manager) EnsureRepository(ctx context.Context, repo hosting.RepoRef) (string, bool) {
	path := m.RepoPath(repo)
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return path, true
	}

	if m.username == "" || m.token == "" {
		m.logger.Errorf("cannot clone %s: missing GitHub credentials", repo.FullName())
		return "", false
	}

	if err := os.MkdirAll(m.reposDir, 0o755); err != nil {
		m.logger.Errorf("cannot create repos dir: %v", err)
		return "", false
	}

	// Serialize clone creation on this volume; a second command racing the
	// daemon would otherwise see a half-written clone.
	lock := flock.New(filepath.Join(m.reposDir, ".clone.lock"))
	if err := lock.Lock(); err != nil {
		m.logger.Errorf("cannot lock repos dir: %v", err)
		return "", false
	}
	defer lock.Unlock()

	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return path, true
	}

	m.logger.Iconf(logging.IconClone, "cloning %s", repo.FullName())
	url := fmt.Sprintf("https://%s:%s@github.com/%s.git", m.username, m.token, repo.FullName())
	if _, err := m.run(ctx, m.reposDir, "clone", url, path); err != nil {
		m.logger.Errorf("clone %s failed: %v", repo.FullName(), err)
		return "", false
	}

	// Commit identity is configured exactly once, at clone time.
	if _, err := m.run(ctx, path, "config", "user.name", m.commitName); err != nil {
		m.logger.Errorf("configure user.name: %v", err)
		return "", false
	}
	if _, err := m.run(ctx, path, "config", "user.email", m.commitEmail); err != nil {
		m.logger.Errorf("configure user.email: %v", err)
		return "", false
	}

	return path, true
}

// CheckoutBranch resolves the branch to a known-good state: an existing
// branch mirrors its remote exactly (hard reset), a new branch is cut from
// base. Local edits never survive a checkout. Returns false on unrecoverable
// git errors; the caller skips the issue for this cycle.
func (m *Manager) CheckoutBranch(ctx context.Context, dir, branch, base string) bool {
	m.clearDanglingState(ctx, dir)

	if _, err := m.run(ctx, dir, "fetch", "origin", "--prune"); err != nil {
		m.logger.Errorf("fetch: %v", err)
		return false
	}

	if m.branchExists(ctx, dir, branch) {
		if _, err := m.run(ctx, dir, "checkout", branch); err != nil {
			m.logger.Errorf("checkout %s: %v", branch, err)
			return false
		}
		// Mirror the remote branch; fall back to base if it was deleted
		// out-of-band.
		if _, err := m.run(ctx, dir, "reset", "--hard", "origin/"+branch); err != nil {
			m.logger.Warnf("remote branch %s gone, resetting onto %s", branch, base)
			if _, err := m.run(ctx, dir, "reset", "--hard", "origin/"+base); err != nil {
				m.logger.Errorf("reset onto %s: %v", base, err)
				return false
			}
		}
		return true
	}

	if _, err := m.run(ctx, dir, "checkout", base); err != nil {
		m.logger.Errorf("checkout %s: %v", base, err)
		return false
	}
	if _, err := m.run(ctx, dir, "pull", "origin", base); err != nil {
		m.logger.Errorf("pull %s: %v", base, err)
		return false
	}
	if _, err := m.run(ctx, dir, "checkout", "-b", branch); err != nil {
		m.logger.Errorf("create branch %s: %v", branch, err)
		return false
	}
	m.logger.Iconf(logging.IconBranch, "created %s from %s", branch, base)
	return true
}

// clearDanglingState aborts any merge/cherry-pick/revert a previous crashed
// run left behind, falling back to a hard reset when the abort itself fails.
func (m *Manager) clearDanglingState(ctx context.Context, dir string) {
	pending := map[string]string{
		"MERGE_HEAD":       "merge",
		"CHERRY_PICK_HEAD": "cherry-pick",
		"REVERT_HEAD":      "revert",
	}
	for marker, op := range pending {
		if _, err := os.Stat(filepath.Join(dir, ".git", marker)); err != nil {
			continue
		}
		m.logger.Warnf("clearing unfinished %s in %s", op, dir)
		if _, err := m.run(ctx, dir, op, "--abort"); err != nil {
			m.run(ctx, dir, "reset", "--hard", "HEAD")
		}
	}
}

func (m *Manager) branchExists(ctx context.Context, dir, branch string) bool {
	if _, err := m.run(ctx, dir, "rev-parse", "--verify", "refs/heads/"+branch); err == nil {
		return true
	}
	_, err := m.run(ctx, dir, "rev-parse", "--verify", "refs/remotes/origin/"+branch)
	return err == nil
}

// DirtyFiles lists paths with uncommitted changes.
func (m *Manager) DirtyFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := m.run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		files = append(files, fields[len(fields)-1])
	}
	return files, nil
}

// Push pushes the branch to origin.
func (m *Manager) Push(ctx context.Context, dir, branch string) error {
	_, err := m.run(ctx, dir, "push", "-u", "origin", branch)
	return err
}

// Fetch fetches a single ref from origin.
func (m *Manager) Fetch(ctx context.Context, dir, ref string) error {
	_, err := m.run(ctx, dir, "fetch", "origin", ref)
	return err
}

// CommitsAhead counts commits reachable from upstream but not from local,
// i.e. how far upstream has moved past the local ref.
func (m *Manager) CommitsAhead(ctx context.Context, dir, local, upstream string) (int, error) {
	out, err := m.run(ctx, dir, "rev-list", "--count", local+".."+upstream)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(out))
}

// HasConflictMarkers scans the working tree for unresolved conflict markers.
func (m *Manager) HasConflictMarkers(ctx context.Context, dir string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "grep", "-l", "-E", "^(<{7}|={7}|>{7})")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		// git grep exits 1 when nothing matched.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, err
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

// CommitSubjects returns the subject lines in a revision range, newest first.
func (m *Manager) CommitSubjects(ctx context.Context, dir, revRange string) ([]string, error) {
	out, err := m.run(ctx, dir, "log", "--format=%s", revRange)
	if err != nil {
		return nil, err
	}

	var subjects []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			subjects = append(subjects, line)
		}
	}
	return subjects, nil
}
