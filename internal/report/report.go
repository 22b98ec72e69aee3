// Package report renders a contest's final scoreboard to a spreadsheet
// rollup, the write-side counterpart of internal/importer's read-side
// excelize usage (spec §6 "Persistence layout" — per-contest rollups
// exportable to spreadsheet).
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/localjudge/engine/internal/contest"
)

const sheetName = "Scoreboard"

// WriteScoreboard renders view to an xlsx file at path with columns
// [Nickname, Organization, Total, (Penalty?, Solved?), Task A … Task J]
// (spec §6). taskTitles maps task id to its display column header; tasks
// with no entry fall back to "Task <id>".
func WriteScoreboard(path string, view *contest.ScoreboardView, scoring contest.Scoring, taskTitles map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheetName)

	taskIDs := collectTaskIDs(view.Rows)

	headers := []string{"Nickname", "Organization", "Total"}
	switch scoring {
	case contest.ScoringICPC:
		headers = append(headers, "Penalty", "Solved")
	default:
		headers = append(headers, "Solved")
	}
	for _, id := range taskIDs {
		title, ok := taskTitles[id]
		if !ok {
			title = fmt.Sprintf("Task %d", id)
		}
		headers = append(headers, title)
	}
	for i, h := range headers {
		axis, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, axis, h)
	}

	for r, row := range view.Rows {
		rowNum := r + 2
		col := 1
		set := func(v any) {
			axis, _ := excelize.CoordinatesToCellName(col, rowNum)
			f.SetCellValue(sheetName, axis, v)
			col++
		}
		set(row.Nickname)
		set(row.Organization)
		set(row.TotalScore)
		if scoring == contest.ScoringICPC {
			set(row.TotalPenalty)
		}
		set(row.Solved)
		for _, id := range taskIDs {
			set(FormatCell(row.Cells[id], scoring))
		}
	}

	return f.SaveAs(path)
}

// FormatCell renders one scoreboard cell using the ICPC textual encoding
// named in the spec: "+", "+k", "-k", "." (unsolved, no attempts), where k
// is Cell.Attempts, the number of non-accepted submissions. Non-ICPC scoring
// models render the raw numeric score instead, or "." for a cell that is
// neither passed nor attempted.
func FormatCell(c contest.Cell, scoring contest.Scoring) string {
	if c.Pending {
		return "?"
	}
	if scoring != contest.ScoringICPC {
		if c.Attempts == 0 && !c.Passed {
			return "."
		}
		return fmt.Sprintf("%d", c.Score)
	}
	if c.Passed {
		if c.Attempts == 0 {
			return "+"
		}
		return fmt.Sprintf("+%d", c.Attempts)
	}
	if c.Attempts == 0 {
		return "."
	}
	return fmt.Sprintf("-%d", c.Attempts)
}

func collectTaskIDs(rows []contest.Row) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range rows {
		for id := range r.Cells {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
