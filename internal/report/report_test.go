package report

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/localjudge/engine/internal/contest"
)

func TestFormatCell_ICPC(t *testing.T) {
	cases := []struct {
		name string
		cell contest.Cell
		want string
	}{
		{"unattempted", contest.Cell{}, "."},
		{"solved first try", contest.Cell{Passed: true, Attempts: 0}, "+"},
		{"solved after retries", contest.Cell{Passed: true, Attempts: 2}, "+2"},
		{"unsolved with attempts", contest.Cell{Passed: false, Attempts: 2}, "-2"},
		{"pending behind freeze", contest.Cell{Pending: true}, "?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatCell(tc.cell, contest.ScoringICPC); got != tc.want {
				t.Errorf("FormatCell(%+v) = %q, want %q", tc.cell, got, tc.want)
			}
		})
	}
}

func TestFormatCell_Points(t *testing.T) {
	if got := FormatCell(contest.Cell{Score: 70, Attempts: 1}, contest.ScoringPoints); got != "70" {
		t.Errorf("got %q, want 70", got)
	}
	if got := FormatCell(contest.Cell{}, contest.ScoringPoints); got != "." {
		t.Errorf("got %q, want .", got)
	}
}

func TestWriteScoreboard(t *testing.T) {
	view := &contest.ScoreboardView{
		ContestID: "c1",
		Rows: []contest.Row{
			{
				Nickname:     "alice",
				Organization: "team-a",
				TotalScore:   1,
				TotalPenalty: 20,
				Solved:       1,
				Cells: map[int64]contest.Cell{
					1: {Passed: true, Attempts: 0},
					2: {Passed: false, Attempts: 2},
				},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "report.xlsx")
	if err := WriteScoreboard(path, view, contest.ScoringICPC, map[int64]string{1: "A", 2: "B"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopening report: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("reading rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	wantHeader := []string{"Nickname", "Organization", "Total", "Penalty", "Solved", "A", "B"}
	for i, h := range wantHeader {
		if rows[0][i] != h {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], h)
		}
	}
	if rows[1][0] != "alice" || rows[1][5] != "+" || rows[1][6] != "-2" {
		t.Errorf("unexpected data row: %v", rows[1])
	}
}
