package contest_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/localjudge/engine/internal/contest"
)

// fakeStore is an in-memory stand-in for internal/store.Store, sufficient
// to exercise Manager without a real database.
type fakeStore struct {
	mu           sync.Mutex
	snapshots    map[string]map[string]*contest.Participant
	history      []contest.HistoryRecord
	whitelist    map[string]string // "contestID/nickname/password" -> participantID
	byNickname   map[string]*contest.Participant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots:  make(map[string]map[string]*contest.Participant),
		whitelist:  make(map[string]string),
		byNickname: make(map[string]*contest.Participant),
	}
}

func (f *fakeStore) PersistContestSnapshot(contestID string, participants map[string]*contest.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[contestID] = participants
	return nil
}

func (f *fakeStore) AppendHistory(rec contest.HistoryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.InsertionID = int64(len(f.history) + 1)
	f.history = append(f.history, rec)
	return rec.InsertionID, nil
}

func (f *fakeStore) SaveFrozenBoard(contestID string, frozen, final *contest.ScoreboardView, freezeTime int64) error {
	return nil
}

func (f *fakeStore) FindParticipantByNickname(contestID, nickname string) (*contest.Participant, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byNickname[contestID+"/"+nickname]
	return p, ok, nil
}

func (f *fakeStore) ValidateWhitelist(contestID, nickname, organization, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pid, ok := f.whitelist[contestID+"/"+nickname+"/"+password]
	if !ok {
		return "", fmt.Errorf("no such whitelist entry")
	}
	return pid, nil
}

func (f *fakeStore) SaveContestConfig(c *contest.Contest) error             { return nil }
func (f *fakeStore) SetContestStart(contestID string, startTime int64) error { return nil }
func (f *fakeStore) ScheduleContest(contestID string, startTime int64) error { return nil }
func (f *fakeStore) DeleteScheduled(contestID string) error                  { return nil }

type fakeBroadcast struct {
	mu                sync.Mutex
	statusUpdates     int
	personalResults   []contest.PersonalResult
	pendingEvents     int
	lifecycleEvents   []string
}

func (f *fakeBroadcast) PublishFullStatusUpdate(contestID string, view *contest.ScoreboardView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates++
}

func (f *fakeBroadcast) PublishPersonalResult(contestID string, result contest.PersonalResult, participantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personalResults = append(f.personalResults, result)
}

func (f *fakeBroadcast) PublishSubmissionPending(contestID, participantID string, taskID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingEvents++
}

func (f *fakeBroadcast) PublishLifecycle(contestID, method string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lifecycleEvents = append(f.lifecycleEvents, method)
}

func newTestManager() (*contest.Manager, *fakeStore, *fakeBroadcast) {
	st := newFakeStore()
	bc := &fakeBroadcast{}
	return contest.NewManager(st, bc), st, bc
}

func runningContest(id string, scoring contest.Scoring, start int64) *contest.Contest {
	cfg := contest.Config{
		DurationMinutes:  60,
		Scoring:          scoring,
		Mode:             contest.ModeFree,
		AllowedLanguages: []contest.Language{contest.LanguagePython},
	}
	c := contest.NewContest(id, "Test Contest", []int64{1}, cfg, contest.StatusRunning)
	c.StartTime = &start
	return c
}

func TestJoinAdmitApplyResult_S1(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringICPC, 0))

	pid, errJoin := m.Join("c1", "alice", "", "", 30)
	if errJoin != nil {
		t.Fatalf("Join: %v", errJoin)
	}

	if errAdmit := m.Admit("c1", pid, 1, contest.LanguagePython, "print(3)", 30); errAdmit != nil {
		t.Fatalf("Admit: %v", errAdmit)
	}

	score, err := m.ApplyResult("c1", pid, 1, "Accepted", 2, 2, false, 30)
	if err != nil {
		t.Fatalf("ApplyResult: %v", err)
	}
	want := contest.TaskScore{Score: 1, Passed: true, Attempts: 0, Penalty: 0}
	if *score != want {
		t.Errorf("got %+v, want %+v", *score, want)
	}
}

func TestAdmit_TooManyPending(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0))
	pid, _ := m.Join("c1", "bob", "", "", 0)

	for i := 0; i < 3; i++ {
		if err := m.Admit("c1", pid, 1, contest.LanguagePython, "code", 0); err != nil {
			t.Fatalf("Admit #%d: %v", i, err)
		}
	}
	if err := m.Admit("c1", pid, 1, contest.LanguagePython, "code", 0); err == nil {
		t.Fatal("expected TooManyPending on 4th concurrent submission")
	} else if err.Data.ErrorType != "TOO_MANY_PENDING" {
		t.Errorf("got error type %q, want TOO_MANY_PENDING", err.Data.ErrorType)
	}
}

func TestAdmit_TimeBoundary(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0)) // duration 60 min = 3600s
	pid, _ := m.Join("c1", "carol", "", "", 0)

	if err := m.Admit("c1", pid, 1, contest.LanguagePython, "code", 3599); err != nil {
		t.Fatalf("submission at duration-1s should succeed: %v", err)
	}
	// second slot freed implicitly is not modeled here; use a fresh admit check at the boundary
	if err := m.Admit("c1", pid, 1, contest.LanguagePython, "code", 3601); err == nil {
		t.Fatal("expected TimeOver at duration+1s")
	}
}

func TestAdmit_LanguageNotAllowed(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0))
	pid, _ := m.Join("c1", "dave", "", "", 0)
	if err := m.Admit("c1", pid, 1, contest.LanguageCPP, "code", 0); err == nil {
		t.Fatal("expected LanguageNotAllowed")
	}
}

func TestDisqualify_S5(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringICPC, 0))
	pid, _ := m.Join("c1", "alice", "", "", 0)
	m.Admit("c1", pid, 1, contest.LanguagePython, "code", 0)
	m.ApplyResult("c1", pid, 1, "Accepted", 2, 2, false, 0)

	if err := m.Disqualify("c1", pid); err != nil {
		t.Fatalf("Disqualify: %v", err)
	}

	c, _ := m.Get("c1")
	p := c.Participants[pid]
	if !p.Disqualified || !p.FinishedEarly {
		t.Fatalf("expected disqualified+finished_early flags set, got %+v", p)
	}
	if p.Scores[1].Score != 0 || p.Scores[1].Passed {
		t.Fatalf("expected zeroed score after DQ, got %+v", p.Scores[1])
	}
}

func TestFinishEarly_Terminal(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0))
	pid, _ := m.Join("c1", "erin", "", "", 0)

	if err := m.FinishEarly("c1", pid); err != nil {
		t.Fatalf("FinishEarly: %v", err)
	}
	if err := m.FinishEarly("c1", pid); err == nil {
		t.Fatal("expected AlreadyFinishedEarly on second call")
	}
	if _, err := m.Join("c1", "erin", "", "", 0); err == nil {
		t.Fatal("expected re-join to fail for a finished-early participant (spec §9 Open Question c)")
	}
}

func TestApplyResult_DroppedAfterClose(t *testing.T) {
	m, st, bc := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0))
	pid, _ := m.Join("c1", "frank", "", "", 0)
	m.Admit("c1", pid, 1, contest.LanguagePython, "code", 0)

	if err := m.Close("c1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := st.snapshots["c1"]; !ok {
		t.Fatal("expected PersistContestSnapshot on Close")
	}

	// Late result for the now-finished contest must be silently dropped.
	score, err := m.ApplyResult("c1", pid, 1, "Accepted", 1, 1, false, 10)
	if err != nil || score != nil {
		t.Fatalf("expected a no-op for a late result, got score=%v err=%v", score, err)
	}
	if bc.statusUpdates != 0 {
		t.Fatalf("expected no broadcast for a dropped late result")
	}
}

func TestSnapshot_RecomputesRankAndRemainingSeconds(t *testing.T) {
	m, _, _ := newTestManager()
	m.Hydrate(runningContest("c1", contest.ScoringPoints, 0))
	pid, _ := m.Join("c1", "gina", "", "", 0)
	m.Admit("c1", pid, 1, contest.LanguagePython, "code", 0)
	m.ApplyResult("c1", pid, 1, "Accepted", 1, 1, false, 0)

	view, err := m.Snapshot("c1", 100)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(view.Rows) != 1 || view.Rows[0].Rank != 1 {
		t.Fatalf("unexpected scoreboard: %+v", view.Rows)
	}
	if view.RemainingSeconds != 3500 {
		t.Fatalf("remaining_seconds = %d, want 3500", view.RemainingSeconds)
	}
}
