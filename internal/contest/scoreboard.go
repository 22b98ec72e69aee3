package contest

import "sort"

// Row is one participant's rendered scoreboard line.
type Row struct {
	ParticipantID string            `json:"participant_id"`
	Nickname      string            `json:"nickname"`
	Organization  string            `json:"organization,omitempty"`
	Rank          int               `json:"rank"`
	Solved        int               `json:"solved"`
	TotalScore    int               `json:"total_score"`
	TotalPenalty  int               `json:"total_penalty"`
	Disqualified  bool              `json:"disqualified"`
	Cells         map[int64]Cell    `json:"cells"`
}

// Cell is one participant/task scoreboard cell. Pending is set while the
// value is hidden behind a freeze (spec §4.3 "Freeze/unfreeze").
type Cell struct {
	Passed   bool `json:"passed"`
	Score    int  `json:"score"`
	Attempts int  `json:"attempts"`
	Penalty  int  `json:"penalty"`
	Pending  bool `json:"pending"`
}

// ScoreboardView is the cached, ranked rendering of a Contest, overlaid each
// Snapshot with live remaining_seconds and status (spec §4.3 "Snapshot").
type ScoreboardView struct {
	ContestID       string  `json:"contest_id"`
	Status          Status  `json:"status"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Rows            []Row   `json:"rows"`
	Frozen          bool    `json:"frozen"`
}

// BuildScoreboard recomputes the ranked view for c. frozenCells, when
// non-nil, supplies the pre-freeze value for any cell that should currently
// read "pending" (spec's freeze window); callers pass nil outside of a
// freeze window.
func BuildScoreboard(c *Contest, frozenCells map[string]map[int64]Cell) *ScoreboardView {
	rows := make([]Row, 0, len(c.Participants))
	totals := make([]ParticipantTotals, 0, len(c.Participants))

	for _, p := range c.Participants {
		cells := make(map[int64]Cell, len(c.TaskIDs))
		for _, taskID := range c.TaskIDs {
			s, ok := p.Scores[taskID]
			cell := Cell{}
			if ok {
				cell = Cell{Passed: s.Passed, Score: s.Score, Attempts: s.Attempts, Penalty: s.Penalty}
			}
			if frozen, ok := frozenCells[p.ID]; ok {
				if fc, ok := frozen[taskID]; ok {
					fc.Pending = true
					cell = fc
				}
			}
			cells[taskID] = cell
		}

		// Rank from the same cells just rendered, not from live p.Scores,
		// so a freeze hides post-freeze standing changes from the ranked
		// view and not just the individual cell text (spec §4.3
		// "Freeze/unfreeze").
		t := totalsFromCells(p.ID, cells)
		totals = append(totals, t)

		rows = append(rows, Row{
			ParticipantID: p.ID,
			Nickname:      p.Nickname,
			Organization:  p.Organization,
			Solved:        t.Solved,
			TotalScore:    t.TotalScore,
			TotalPenalty:  t.TotalPenalty,
			Disqualified:  p.Disqualified,
			Cells:         cells,
		})
	}

	sort.Slice(totals, func(i, j int) bool { return Less(c.Config.Scoring, totals[i], totals[j]) })
	rank := make(map[string]int, len(totals))
	for i, t := range totals {
		rank[t.ParticipantID] = i + 1
	}
	sort.Slice(rows, func(i, j int) bool { return rank[rows[i].ParticipantID] < rank[rows[j].ParticipantID] })
	for i := range rows {
		rows[i].Rank = rank[rows[i].ParticipantID]
	}

	return &ScoreboardView{
		ContestID: c.ID,
		Status:    c.Status,
		Rows:      rows,
		Frozen:    frozenCells != nil,
	}
}

// totalsFromCells sums a participant's already-rendered cell set into
// ParticipantTotals, so ranking always agrees with what the board displays:
// a frozen cell's baseline value, not the live score it's standing in for.
func totalsFromCells(participantID string, cells map[int64]Cell) ParticipantTotals {
	t := ParticipantTotals{ParticipantID: participantID}
	for _, cell := range cells {
		if cell.Passed {
			t.Solved++
		}
		t.TotalScore += cell.Score
		t.TotalPenalty += cell.Penalty
	}
	return t
}
