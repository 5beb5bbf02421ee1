package workflow

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/nozcat/adam/internal/logging"
	"github.com/nozcat/adam/internal/retry"
)

// fakeRunner records prompts and replays canned outputs.
type fakeRunner struct {
	mu      sync.Mutex
	Prompts []string
	Output  string
	Err     error

	// OnRun, when set, overrides Output/Err per call.
	OnRun func(prompt string) (string, error)
}

func (f *fakeRunner) Run(ctx context.Context, prompt, workDir string) (string, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	hook := f.OnRun
	f.mu.Unlock()

	if hook != nil {
		return hook(prompt)
	}
	return f.Output, f.Err
}

func (f *fakeRunner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// fakeGit is an in-memory Git with per-method state.
type fakeGit struct {
	Dirty    []string
	DirtyErr error

	PushErrs  []error // consumed per Push call; empty means success
	pushCalls int

	FetchErr    error
	Ahead       []int // consumed per CommitsAhead call; last value sticks
	Conflicted  bool
	ConflictErr error
	Subjects    []string
	SubjectsErr error
}

func (f *fakeGit) DirtyFiles(ctx context.Context, dir string) ([]string, error) {
	return f.Dirty, f.DirtyErr
}

func (f *fakeGit) Push(ctx context.Context, dir, branch string) error {
	f.pushCalls++
	if len(f.PushErrs) == 0 {
		return nil
	}
	err := f.PushErrs[0]
	f.PushErrs = f.PushErrs[1:]
	return err
}

func (f *fakeGit) Fetch(ctx context.Context, dir, ref string) error {
	return f.FetchErr
}

func (f *fakeGit) CommitsAhead(ctx context.Context, dir, local, upstream string) (int, error) {
	if len(f.Ahead) == 0 {
		return 0, nil
	}
	n := f.Ahead[0]
	if len(f.Ahead) > 1 {
		f.Ahead = f.Ahead[1:]
	}
	return n, nil
}

func (f *fakeGit) HasConflictMarkers(ctx context.Context, dir string) (bool, error) {
	return f.Conflicted, f.ConflictErr
}

func (f *fakeGit) CommitSubjects(ctx context.Context, dir, revRange string) ([]string, error) {
	return f.Subjects, f.SubjectsErr
}

var errPermanent = errors.New("invalid request")

func testRetryOpts() retry.Options {
	return retry.Options{MaxAttempts: 3, Classifier: retry.ClassifyAssistant}
}

func newTestDriver(runner *fakeRunner, git *fakeGit) *Driver {
	return NewDriver(runner, git, testRetryOpts(), logging.New(io.Discard))
}
