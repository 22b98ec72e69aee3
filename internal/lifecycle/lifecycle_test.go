package lifecycle_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/lifecycle"
	"github.com/localjudge/engine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	mu         sync.Mutex
	active     []*contest.Contest
	scheduled  map[string]int64
	finished   []string
	persisted  []string
}

func (f *fakeStore) LoadAllActiveContests() ([]*contest.Contest, error) { return f.active, nil }
func (f *fakeStore) LoadScheduled() (map[string]int64, error)          { return f.scheduled, nil }
func (f *fakeStore) MarkFinished(contestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, contestID)
	return nil
}
func (f *fakeStore) PersistContestSnapshot(contestID string, participants map[string]*contest.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, contestID)
	return nil
}

type fakeManager struct {
	mu        sync.Mutex
	hydrated  []string
	started   []string
	closed    []string
	contests  []*contest.Contest
}

func (f *fakeManager) Hydrate(c *contest.Contest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hydrated = append(f.hydrated, c.ID)
	f.contests = append(f.contests, c)
}
func (f *fakeManager) All() []*contest.Contest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*contest.Contest, len(f.contests))
	copy(out, f.contests)
	return out
}
func (f *fakeManager) StartContest(contestID string, now int64) *types.RPCError {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, contestID)
	return nil
}
func (f *fakeManager) CheckFreeze(contestID string, now int64) {}
func (f *fakeManager) Close(contestID string) *types.RPCError {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, contestID)
	return nil
}

func TestController_RecoverDropsStaleRunaway(t *testing.T) {
	staleStart := int64(0)
	freshStart := int64(1_700_000_000)
	stale := contest.NewContest("stale", "Stale", []int64{1}, contest.Config{DurationMinutes: 60}, contest.StatusRunning)
	stale.StartTime = &staleStart
	fresh := contest.NewContest("fresh", "Fresh", []int64{1}, contest.Config{DurationMinutes: 60}, contest.StatusRunning)
	fresh.StartTime = &freshStart

	store := &fakeStore{active: []*contest.Contest{stale, fresh}, scheduled: map[string]int64{}}
	mgr := &fakeManager{}
	ctl := lifecycle.New(store, mgr, discardLogger(), func() int64 { return freshStart + 60 })

	if err := ctl.Recover(); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if len(mgr.hydrated) != 1 || mgr.hydrated[0] != "fresh" {
		t.Errorf("expected only fresh contest hydrated, got %v", mgr.hydrated)
	}
	if len(store.finished) != 1 || store.finished[0] != "stale" {
		t.Errorf("expected stale contest marked finished, got %v", store.finished)
	}
}

func TestController_TickStartsDueScheduledContests(t *testing.T) {
	store := &fakeStore{active: nil, scheduled: map[string]int64{"c1": 100}}
	mgr := &fakeManager{}
	ctl := lifecycle.New(store, mgr, discardLogger(), func() int64 { return 200 })

	ctl.Tick()

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if len(mgr.started) != 1 || mgr.started[0] != "c1" {
		t.Fatalf("expected StartContest to be called for the due scheduled contest, got %v", mgr.started)
	}
}
