package dispatcher_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/dispatcher"
	"github.com/localjudge/engine/internal/sandbox"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[int64]*contest.Task
	tests   map[int64][]contest.Test
	history []contest.HistoryRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[int64]*contest.Task), tests: make(map[int64][]contest.Test)}
}

func (f *fakeStore) GetTask(taskID int64) (*contest.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID], nil
}

func (f *fakeStore) LoadTests(taskID int64) ([]contest.Test, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tests[taskID], nil
}

func (f *fakeStore) SaveSubmissionCode(contestID, participantID string, taskID int64, code string) error {
	return nil
}

func (f *fakeStore) AppendHistory(rec contest.HistoryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, rec)
	return int64(len(f.history)), nil
}

type fakeManager struct {
	mu        sync.Mutex
	applied   []string
	persisted []string
	done      chan struct{}
}

func (f *fakeManager) ApplyResult(contestID, participantID string, taskID int64, verdict string, passed, total int, fatal bool, now int64) (*contest.TaskScore, error) {
	f.mu.Lock()
	f.applied = append(f.applied, verdict)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return &contest.TaskScore{}, nil
}

func (f *fakeManager) PersistParticipant(contestID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, participantID)
	return nil
}

func TestDispatcher_ProcessesJobAndAppendsHistory(t *testing.T) {
	store := newFakeStore()
	store.tasks[1] = &contest.Task{ID: 1}
	store.tests[1] = []contest.Test{{ID: 1, TaskID: 1, ExpectedOutput: "3\n"}}

	mgr := &fakeManager{done: make(chan struct{}, 1)}
	runner := sandbox.NewFakeRunner([]sandbox.Result{{Tests: []sandbox.TestResult{{Verdict: sandbox.VerdictAccepted}}}})

	d := dispatcher.New(dispatcher.Config{Workers: 2}, runner, store, mgr, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue(dispatcher.Job{ContestID: "c1", ParticipantID: "p1", TaskID: 1, Language: contest.LanguagePython, Code: "print(3)"})

	select {
	case <-mgr.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ApplyResult")
	}
	// AppendHistory runs after ApplyResult; Stop waits for the worker to
	// finish the job before the history is inspected.
	d.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.history) != 1 {
		t.Fatalf("expected 1 history row, got %d", len(store.history))
	}
	if store.history[0].Verdict != "Accepted" {
		t.Errorf("verdict = %q, want Accepted", store.history[0].Verdict)
	}
}

func TestDispatcher_NoTestsDefinedShortCircuits(t *testing.T) {
	store := newFakeStore()
	store.tasks[1] = &contest.Task{ID: 1}
	// no tests registered for task 1

	mgr := &fakeManager{done: make(chan struct{}, 1)}
	runner := sandbox.NewFakeRunner(nil)

	d := dispatcher.New(dispatcher.Config{Workers: 1}, runner, store, mgr, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue(dispatcher.Job{ContestID: "c1", ParticipantID: "p1", TaskID: 1, Language: contest.LanguagePython, Code: "print(3)"})

	select {
	case <-mgr.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ApplyResult")
	}

	if runner.GetCallCount() != 0 {
		t.Errorf("expected the sandbox to never run when no tests are defined, got %d calls", runner.GetCallCount())
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if len(mgr.applied) != 1 || mgr.applied[0] != "NO_TESTS_DEFINED" {
		t.Fatalf("expected NO_TESTS_DEFINED verdict, got %v", mgr.applied)
	}
}
