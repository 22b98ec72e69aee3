package store_test

import (
	"path/filepath"
	"testing"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	// File-backed: with ":memory:" every pooled connection opens its own
	// empty database, and LoadAllActiveContests reads on a second
	// connection while its first query is still open.
	s, err := store.Open(filepath.Join(t.TempDir(), "judge.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetTask(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateTask(&contest.Task{Title: "A+B", Difficulty: "easy", Topic: "math", Description: "add two numbers"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	got, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "A+B" || got.Topic != "math" {
		t.Errorf("unexpected task: %+v", got)
	}
}

func TestImportAndLoadTests(t *testing.T) {
	s := newTestStore(t)

	taskID, err := s.CreateTask(&contest.Task{Title: "sum"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	tests := []contest.Test{
		{Input: "1 2", ExpectedOutput: "3"},
		{Input: "5 5", ExpectedOutput: "10"},
	}
	if err := s.ImportTests(taskID, tests); err != nil {
		t.Fatalf("ImportTests: %v", err)
	}

	loaded, err := s.LoadTests(taskID)
	if err != nil {
		t.Fatalf("LoadTests: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Input != "1 2" || loaded[1].ExpectedOutput != "10" {
		t.Errorf("unexpected loaded tests: %+v", loaded)
	}
}

func TestSaveContestConfigAndLoadAllActive(t *testing.T) {
	s := newTestStore(t)

	c := contest.NewContest("c1", "Contest One", []int64{1, 2}, contest.Config{
		DurationMinutes: 120,
		Scoring:         contest.ScoringICPC,
		Mode:            contest.ModeFree,
	}, contest.StatusRunning)
	start := int64(1_700_000_000)
	c.StartTime = &start

	if err := s.SaveContestConfig(c); err != nil {
		t.Fatalf("SaveContestConfig: %v", err)
	}

	active, err := s.LoadAllActiveContests()
	if err != nil {
		t.Fatalf("LoadAllActiveContests: %v", err)
	}
	if len(active) != 1 || active[0].ID != "c1" || active[0].Config.Scoring != contest.ScoringICPC {
		t.Fatalf("unexpected active contests: %+v", active)
	}
}

func TestLoadAllActiveContests_InfersMissingStartTimeFromHistory(t *testing.T) {
	s := newTestStore(t)

	c := contest.NewContest("c1", "Contest One", []int64{1}, contest.Config{
		DurationMinutes: 120,
		Scoring:         contest.ScoringICPC,
		Mode:            contest.ModeFree,
	}, contest.StatusRunning)
	// StartTime left nil: the crash scenario where the contest transitioned
	// to running but the start_time write never landed.

	if err := s.SaveContestConfig(c); err != nil {
		t.Fatalf("SaveContestConfig: %v", err)
	}

	if _, err := s.AppendHistory(contest.HistoryRecord{ContestID: "c1", ParticipantID: "p1", TaskID: 1, Verdict: "Wrong Answer", Timestamp: 1_700_000_050}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if _, err := s.AppendHistory(contest.HistoryRecord{ContestID: "c1", ParticipantID: "p2", TaskID: 1, Verdict: "Accepted", Timestamp: 1_700_000_010}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	active, err := s.LoadAllActiveContests()
	if err != nil {
		t.Fatalf("LoadAllActiveContests: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active contest, got %d", len(active))
	}
	if active[0].StartTime == nil || *active[0].StartTime != 1_700_000_010 {
		t.Fatalf("expected inferred start time 1_700_000_010, got %v", active[0].StartTime)
	}

	// The inference should have been persisted, so a second load doesn't
	// need to re-infer it from history.
	reloaded, err := s.LoadAllActiveContests()
	if err != nil {
		t.Fatalf("LoadAllActiveContests (reload): %v", err)
	}
	if reloaded[0].StartTime == nil || *reloaded[0].StartTime != 1_700_000_010 {
		t.Fatalf("expected persisted start time 1_700_000_010 on reload, got %v", reloaded[0].StartTime)
	}
}

func TestScheduleAndDeleteScheduled(t *testing.T) {
	s := newTestStore(t)

	if err := s.ScheduleContest("c1", 1_700_000_100); err != nil {
		t.Fatalf("ScheduleContest: %v", err)
	}

	scheduled, err := s.LoadScheduled()
	if err != nil {
		t.Fatalf("LoadScheduled: %v", err)
	}
	if scheduled["c1"] != 1_700_000_100 {
		t.Fatalf("expected c1 scheduled at 1_700_000_100, got %v", scheduled)
	}

	if err := s.DeleteScheduled("c1"); err != nil {
		t.Fatalf("DeleteScheduled: %v", err)
	}
	scheduled, err = s.LoadScheduled()
	if err != nil {
		t.Fatalf("LoadScheduled: %v", err)
	}
	if len(scheduled) != 0 {
		t.Fatalf("expected no scheduled contests after delete, got %v", scheduled)
	}
}

func TestAppendHistoryAssignsIncreasingInsertionIDs(t *testing.T) {
	s := newTestStore(t)

	first, err := s.AppendHistory(contest.HistoryRecord{ContestID: "c1", ParticipantID: "p1", TaskID: 1, Verdict: "Accepted"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	second, err := s.AppendHistory(contest.HistoryRecord{ContestID: "c1", ParticipantID: "p1", TaskID: 2, Verdict: "WrongAnswer"})
	if err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if second <= first {
		t.Errorf("expected increasing insertion ids, got %d then %d", first, second)
	}

	records, err := s.HistoryForParticipant("c1", "p1")
	if err != nil {
		t.Fatalf("HistoryForParticipant: %v", err)
	}
	if len(records) != 2 || records[0].Verdict != "Accepted" || records[1].Verdict != "WrongAnswer" {
		t.Errorf("unexpected history: %+v", records)
	}
}

func TestUpsertAndValidateWhitelist(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertWhitelistEntry("c1", "alice", "team-a", "pw", "p-alice"); err != nil {
		t.Fatalf("UpsertWhitelistEntry: %v", err)
	}

	pid, err := s.ValidateWhitelist("c1", "alice", "team-a", "pw")
	if err != nil {
		t.Fatalf("ValidateWhitelist: %v", err)
	}
	if pid != "p-alice" {
		t.Errorf("participant id = %q, want p-alice", pid)
	}

	if _, err := s.ValidateWhitelist("c1", "alice", "team-a", "wrong-password"); err == nil {
		t.Error("expected error for wrong password")
	}
}
