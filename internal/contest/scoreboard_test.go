package contest_test

import (
	"testing"

	"github.com/localjudge/engine/internal/contest"
)

func TestBuildScoreboard_FrozenCellsOverrideRanking(t *testing.T) {
	c := contest.NewContest("c1", "Contest", []int64{1}, contest.Config{Scoring: contest.ScoringICPC}, contest.StatusRunning)

	leader := contest.NewParticipant("p-leader", "leader", "")
	leader.Scores[1] = &contest.TaskScore{Passed: true, Score: 1, Penalty: 10}
	c.Participants[leader.ID] = leader

	challenger := contest.NewParticipant("p-challenger", "challenger", "")
	// Not solved as of the freeze baseline, but solves it after the freeze.
	c.Participants[challenger.ID] = challenger

	frozenCells := map[string]map[int64]contest.Cell{
		"p-leader":     {1: {Passed: true, Score: 1, Penalty: 10}},
		"p-challenger": {1: {}},
	}

	// Simulate the post-freeze solve landing in live state.
	challenger.Scores[1] = &contest.TaskScore{Passed: true, Score: 1, Penalty: 5}

	view := contest.BuildScoreboard(c, frozenCells)

	var leaderRow, challengerRow contest.Row
	for _, row := range view.Rows {
		switch row.ParticipantID {
		case "p-leader":
			leaderRow = row
		case "p-challenger":
			challengerRow = row
		}
	}

	if !challengerRow.Cells[1].Pending {
		t.Fatalf("expected challenger's post-freeze cell to read pending")
	}
	if challengerRow.Solved != 0 {
		t.Errorf("challenger.Solved = %d, want 0 (ranking must use the frozen baseline, not the live post-freeze solve)", challengerRow.Solved)
	}
	if leaderRow.Rank != 1 {
		t.Errorf("leader.Rank = %d, want 1 (frozen baseline still leads)", leaderRow.Rank)
	}
	if challengerRow.Rank <= leaderRow.Rank {
		t.Errorf("challenger.Rank = %d should rank behind leader.Rank = %d during the freeze window", challengerRow.Rank, leaderRow.Rank)
	}
}
