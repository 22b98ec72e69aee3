package store

import (
	"database/sql"
	"fmt"

	"github.com/localjudge/engine/internal/contest"
)

// AppendHistory records one submission's final verdict permanently (spec
// §4.4 "AppendHistory"), returning the auto-incremented row id
// (HistoryRecord.InsertionID), the order HistoryForParticipant returns rows in.
func (s *Store) AppendHistory(rec contest.HistoryRecord) (int64, error) {
	var insertionID int64
	err := s.withWrite("append_history", func(db *sql.DB) error {
		res, err := db.Exec(`
			INSERT INTO contest_history (contest_id, participant_id, task_id, language, verdict, tests_passed, total_tests, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ContestID, rec.ParticipantID, rec.TaskID, rec.Language, rec.Verdict, rec.TestsPassed, rec.TotalTests, rec.Timestamp)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		insertionID = id
		s.historyInserts.Add(1)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return insertionID, nil
}

// GetFirstSolvers returns, for every task that has at least one accepted
// submission in the contest, the participant id of the earliest solver
// (spec §3 "Contest.FirstSolves", rebuilt from history on restart recovery
// since FirstSolves is not itself persisted as a column).
func (s *Store) GetFirstSolvers(contestID string) (map[int64]string, error) {
	rows, err := s.db.Query(`
		SELECT task_id, participant_id, MIN(timestamp) AS first_ts
		FROM contest_history
		WHERE contest_id = ? AND verdict = 'Accepted'
		GROUP BY task_id
	`, contestID)
	if err != nil {
		return nil, fmt.Errorf("query first solvers: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var taskID int64
		var participantID string
		var ts int64
		if err := rows.Scan(&taskID, &participantID, &ts); err != nil {
			return nil, fmt.Errorf("scan first solver: %w", err)
		}
		out[taskID] = participantID
	}
	return out, rows.Err()
}

// HistoryForParticipant returns every recorded submission result for a
// participant in submission order, backing the "history" query (spec §6
// External Interfaces).
func (s *Store) HistoryForParticipant(contestID, participantID string) ([]contest.HistoryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, contest_id, participant_id, task_id, language, verdict, tests_passed, total_tests, timestamp
		FROM contest_history WHERE contest_id = ? AND participant_id = ?
		ORDER BY id ASC
	`, contestID, participantID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []contest.HistoryRecord
	for rows.Next() {
		var rec contest.HistoryRecord
		if err := rows.Scan(&rec.InsertionID, &rec.ContestID, &rec.ParticipantID, &rec.TaskID, &rec.Language, &rec.Verdict, &rec.TestsPassed, &rec.TotalTests, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
