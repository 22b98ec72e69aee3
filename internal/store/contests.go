package store

import (
	"database/sql"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/localjudge/engine/internal/contest"
)

// SaveContestConfig persists a newly created (or edited) contest's static
// configuration (spec §4.4 "SaveContestConfig", spec §6 "create_contest").
func (s *Store) SaveContestConfig(c *contest.Contest) error {
	taskIDsJSON, err := json.Marshal(c.TaskIDs)
	if err != nil {
		return fmt.Errorf("marshal task ids: %w", err)
	}
	configJSON, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return s.withWrite("save_contest_config", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO contests_config (id, name, task_ids_json, config_json, status, start_time, announcement)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name=excluded.name, task_ids_json=excluded.task_ids_json, config_json=excluded.config_json,
				status=excluded.status, start_time=excluded.start_time, announcement=excluded.announcement
		`, c.ID, c.Name, string(taskIDsJSON), string(configJSON), string(c.Status), c.StartTime, c.Announcement)
		if err != nil {
			return fmt.Errorf("upsert contest config: %w", err)
		}
		return nil
	})
}

// SetContestStart records the effective start time once a contest
// transitions scheduled/waiting -> running (spec §4.5 "Lifecycle
// Controller").
func (s *Store) SetContestStart(contestID string, startTime int64) error {
	return s.withWrite("set_contest_start", func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE contests_config SET status = ?, start_time = ? WHERE id = ?`, string(contest.StatusRunning), startTime, contestID)
		if err != nil {
			return fmt.Errorf("set contest start: %w", err)
		}
		return nil
	})
}

// MarkFinished flips a contest's durable status to finished (spec §4.5,
// called from Close/the lifecycle tick after the duration elapses).
func (s *Store) MarkFinished(contestID string) error {
	return s.withWrite("mark_finished", func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE contests_config SET status = ? WHERE id = ?`, string(contest.StatusFinished), contestID)
		if err != nil {
			return fmt.Errorf("mark finished: %w", err)
		}
		return nil
	})
}

// ScheduleContest records a future start time for a contest created in
// "scheduled" status (spec §4.5 "scheduled -> running").
func (s *Store) ScheduleContest(contestID string, startTime int64) error {
	return s.withWrite("schedule_contest", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO scheduled_contests (contest_id, start_time) VALUES (?, ?)
			ON CONFLICT(contest_id) DO UPDATE SET start_time=excluded.start_time
		`, contestID, startTime)
		if err != nil {
			return fmt.Errorf("schedule contest: %w", err)
		}
		return nil
	})
}

// LoadScheduled returns every contest id still awaiting its scheduled
// start, paired with that start time (spec §4.5 restart recovery).
func (s *Store) LoadScheduled() (map[string]int64, error) {
	rows, err := s.db.Query(`SELECT contest_id, start_time FROM scheduled_contests`)
	if err != nil {
		return nil, fmt.Errorf("query scheduled contests: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var start int64
		if err := rows.Scan(&id, &start); err != nil {
			return nil, fmt.Errorf("scan scheduled contest: %w", err)
		}
		out[id] = start
	}
	return out, rows.Err()
}

// DeleteScheduled removes a contest from the scheduled set once it has
// transitioned to running, so a restart does not re-trigger the start.
func (s *Store) DeleteScheduled(contestID string) error {
	return s.withWrite("delete_scheduled", func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM scheduled_contests WHERE contest_id = ?`, contestID)
		if err != nil {
			return fmt.Errorf("delete scheduled contest: %w", err)
		}
		return nil
	})
}

// LoadAllActiveContests reconstructs every non-finished contest (scheduled,
// waiting or running) and its participants from durable state, for restart recovery
// (spec §4.5 "Recovery on restart"): contests not in a finished state are
// re-hydrated into memory. A running contest whose start_time column is
// NULL has its StartTime inferred from the earliest contest_history row
// (spec §4.5 "infer start_time = min(history.timestamp)") and the inferred
// value is written back so later restarts don't need to re-infer it.
func (s *Store) LoadAllActiveContests() ([]*contest.Contest, error) {
	rows, err := s.db.Query(`
		SELECT id, name, task_ids_json, config_json, status, start_time, announcement
		FROM contests_config WHERE status != ?
	`, string(contest.StatusFinished))
	if err != nil {
		return nil, fmt.Errorf("query active contests: %w", err)
	}
	defer rows.Close()

	var out []*contest.Contest
	for rows.Next() {
		var id, name, taskIDsJSON, configJSON, status string
		var announcement sql.NullString
		var startTime sql.NullInt64
		if err := rows.Scan(&id, &name, &taskIDsJSON, &configJSON, &status, &startTime, &announcement); err != nil {
			return nil, fmt.Errorf("scan active contest: %w", err)
		}

		var taskIDs []int64
		if err := json.Unmarshal([]byte(taskIDsJSON), &taskIDs); err != nil {
			return nil, fmt.Errorf("unmarshal task ids for %s: %w", id, err)
		}
		var cfg contest.Config
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config for %s: %w", id, err)
		}

		c := contest.NewContest(id, name, taskIDs, cfg, contest.Status(status))
		c.Announcement = announcement.String
		if startTime.Valid {
			st := startTime.Int64
			c.StartTime = &st
		} else if c.Status == contest.StatusRunning {
			inferred, found, err := s.inferStartTimeFromHistory(id)
			if err != nil {
				return nil, fmt.Errorf("infer start time for %s: %w", id, err)
			}
			if found {
				c.StartTime = &inferred
				if err := s.SetContestStart(id, inferred); err != nil {
					return nil, fmt.Errorf("persist inferred start time for %s: %w", id, err)
				}
			}
		}

		if err := s.hydrateParticipants(c); err != nil {
			return nil, fmt.Errorf("hydrate participants for %s: %w", id, err)
		}
		if firstSolves, err := s.GetFirstSolvers(id); err == nil {
			c.FirstSolves = firstSolves
		}

		out = append(out, c)
	}
	return out, rows.Err()
}

// inferStartTimeFromHistory backfills a running contest's missing start_time
// from the earliest recorded submission (spec §4.5 restart recovery), since
// a crash between CreateContest/StartContest and the SetContestStart write
// can otherwise leave a running contest with no start_time forever.
func (s *Store) inferStartTimeFromHistory(contestID string) (start int64, found bool, err error) {
	row := s.db.QueryRow(`SELECT MIN(timestamp) FROM contest_history WHERE contest_id = ?`, contestID)
	var ts sql.NullInt64
	if err := row.Scan(&ts); err != nil {
		return 0, false, fmt.Errorf("query min history timestamp: %w", err)
	}
	if !ts.Valid {
		return 0, false, nil
	}
	return ts.Int64, true, nil
}

func (s *Store) hydrateParticipants(c *contest.Contest) error {
	rows, err := s.db.Query(`SELECT participant_id FROM contest_results WHERE contest_id = ?`, c.ID)
	if err != nil {
		return fmt.Errorf("query participant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var pid string
		if err := rows.Scan(&pid); err != nil {
			return fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, pid)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, pid := range ids {
		p, found, err := s.GetParticipantProgress(c.ID, pid)
		if err != nil {
			return err
		}
		if found {
			c.Participants[pid] = p
		}
	}
	return nil
}
