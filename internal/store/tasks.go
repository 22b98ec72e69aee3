package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/localjudge/engine/internal/contest"
)

// CreateTask inserts a new task definition and returns its assigned id
// (spec §6 "create_task").
func (s *Store) CreateTask(t *contest.Task) (int64, error) {
	var id int64
	err := s.withWrite("create_task", func(db *sql.DB) error {
		res, err := db.Exec(`
			INSERT INTO tasks (title, difficulty, topic, description, attachment, attachment_format, checker)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.Title, t.Difficulty, t.Topic, t.Description, t.Attachment, t.AttachmentFormat, t.Checker)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// GetTask loads one task by id (spec §3 "Task").
func (s *Store) GetTask(taskID int64) (*contest.Task, error) {
	row := s.db.QueryRow(`
		SELECT id, title, difficulty, topic, description, attachment, attachment_format, checker
		FROM tasks WHERE id = ?
	`, taskID)

	var t contest.Task
	var attachment []byte
	var attachmentFormat, checker sql.NullString
	if err := row.Scan(&t.ID, &t.Title, &t.Difficulty, &t.Topic, &t.Description, &attachment, &attachmentFormat, &checker); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %d not found", taskID)
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Attachment = attachment
	t.AttachmentFormat = attachmentFormat.String
	t.Checker = checker.String
	return &t, nil
}

// ListTasks returns every task, for the admin task-bank listing.
func (s *Store) ListTasks() ([]*contest.Task, error) {
	rows, err := s.db.Query(`SELECT id, title, difficulty, topic, description, attachment, attachment_format, checker FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*contest.Task
	for rows.Next() {
		var t contest.Task
		var attachment []byte
		var attachmentFormat, checker sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &t.Difficulty, &t.Topic, &t.Description, &attachment, &attachmentFormat, &checker); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		t.Attachment = attachment
		t.AttachmentFormat = attachmentFormat.String
		t.Checker = checker.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

// ImportTests bulk-inserts the test cases for a task, replacing any
// existing tests (spec §6 "import_tests", grounded on the spreadsheet and
// zip-archive import paths in internal/importer).
func (s *Store) ImportTests(taskID int64, tests []contest.Test) error {
	return s.withWrite("import_tests", func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM tests WHERE task_id = ?`, taskID); err != nil {
			return fmt.Errorf("clear existing tests: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO tests (task_id, ordinal, input, expected_output, time_limit_seconds)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare test insert: %w", err)
		}
		defer stmt.Close()

		for i, tc := range tests {
			input := strings.ReplaceAll(tc.Input, "\r\n", "\n")
			expected := strings.ReplaceAll(tc.ExpectedOutput, "\r\n", "\n")
			if _, err := stmt.Exec(taskID, i, input, expected, tc.TimeLimitSeconds); err != nil {
				return fmt.Errorf("insert test %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// LoadTests returns a task's test cases in import order (spec §4.1 "Sandbox
// Runner" consumes these for a submission run).
func (s *Store) LoadTests(taskID int64) ([]contest.Test, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, input, expected_output, time_limit_seconds
		FROM tests WHERE task_id = ? ORDER BY ordinal ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var out []contest.Test
	for rows.Next() {
		var t contest.Test
		if err := rows.Scan(&t.ID, &t.TaskID, &t.Input, &t.ExpectedOutput, &t.TimeLimitSeconds); err != nil {
			return nil, fmt.Errorf("scan test row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
