package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/segmentio/encoding/json"

	"github.com/localjudge/engine/internal/contest"
)

// PersistContestSnapshot UPSERTs every participant's scores and last
// submitted code for a contest in a single transaction
// (spec §4.4 "PersistContestSnapshot"), grounded on
// internal/cache/embeddings.go's prepared-statement-in-a-transaction upsert
// idiom.
func (s *Store) PersistContestSnapshot(contestID string, participants map[string]*contest.Participant) error {
	return s.withWrite("persist_contest_snapshot", func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		resultStmt, err := tx.Prepare(`
			INSERT INTO contest_results (contest_id, participant_id, nickname, organization, scores_json, finished_early, disqualified)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(contest_id, participant_id) DO UPDATE SET
				nickname=excluded.nickname, organization=excluded.organization,
				scores_json=excluded.scores_json, finished_early=excluded.finished_early,
				disqualified=excluded.disqualified
		`)
		if err != nil {
			return fmt.Errorf("prepare result upsert: %w", err)
		}
		defer resultStmt.Close()

		codeStmt, err := tx.Prepare(`
			INSERT INTO contest_submissions (contest_id, participant_id, task_id, code)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(contest_id, participant_id, task_id) DO UPDATE SET code=excluded.code
		`)
		if err != nil {
			return fmt.Errorf("prepare code upsert: %w", err)
		}
		defer codeStmt.Close()

		for pid, p := range participants {
			scoresJSON, err := json.Marshal(scoreKeysToStrings(p.Scores))
			if err != nil {
				return fmt.Errorf("marshal scores for %s: %w", pid, err)
			}

			if _, err := resultStmt.Exec(contestID, pid, p.Nickname, p.Organization, string(scoresJSON), boolInt(p.FinishedEarly), boolInt(p.Disqualified)); err != nil {
				return fmt.Errorf("upsert result for %s: %w", pid, err)
			}
			for taskID, code := range p.LastSubmissions {
				if _, err := codeStmt.Exec(contestID, pid, taskID, code); err != nil {
					return fmt.Errorf("upsert code for %s/%d: %w", pid, taskID, err)
				}
			}
		}

		return tx.Commit()
	})
}

// GetParticipantProgress loads a single participant's durable state
// (spec §4.4 "GetParticipantProgress"). Returns found=false if no row
// exists.
func (s *Store) GetParticipantProgress(contestID, participantID string) (p *contest.Participant, found bool, err error) {
	row := s.db.QueryRow(`
		SELECT nickname, organization, scores_json, finished_early, disqualified
		FROM contest_results WHERE contest_id = ? AND participant_id = ?
	`, contestID, participantID)

	var nickname string
	var organization sql.NullString
	var scoresJSON string
	var finishedEarly, disqualified int
	if err := row.Scan(&nickname, &organization, &scoresJSON, &finishedEarly, &disqualified); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("scan participant progress: %w", err)
	}

	p = contest.NewParticipant(participantID, nickname, organization.String)
	p.FinishedEarly = finishedEarly != 0
	p.Disqualified = disqualified != 0
	if err := unmarshalScores(scoresJSON, p.Scores); err != nil {
		return nil, false, fmt.Errorf("unmarshal scores: %w", err)
	}

	codeRows, err := s.db.Query(`SELECT task_id, code FROM contest_submissions WHERE contest_id = ? AND participant_id = ?`, contestID, participantID)
	if err != nil {
		return nil, false, fmt.Errorf("query submissions: %w", err)
	}
	defer codeRows.Close()
	for codeRows.Next() {
		var taskID int64
		var code string
		if err := codeRows.Scan(&taskID, &code); err != nil {
			return nil, false, fmt.Errorf("scan submission row: %w", err)
		}
		p.LastSubmissions[taskID] = code
	}
	if err := codeRows.Err(); err != nil {
		return nil, false, err
	}

	return p, true, nil
}

// SaveSubmissionCode persists one submission's code immediately on Admit,
// ahead of the sandbox run (spec §2 "Store records the code immediately").
func (s *Store) SaveSubmissionCode(contestID, participantID string, taskID int64, code string) error {
	return s.withWrite("save_submission_code", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO contest_submissions (contest_id, participant_id, task_id, code)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(contest_id, participant_id, task_id) DO UPDATE SET code=excluded.code
		`, contestID, participantID, taskID, code)
		if err != nil {
			return fmt.Errorf("save submission code: %w", err)
		}
		return nil
	})
}

// FindParticipantByNickname looks up a free-mode participant by nickname
// when Join does not find them in memory.
func (s *Store) FindParticipantByNickname(contestID, nickname string) (*contest.Participant, bool, error) {
	row := s.db.QueryRow(`SELECT participant_id FROM contest_results WHERE contest_id = ? AND nickname = ? LIMIT 1`, contestID, nickname)
	var pid string
	if err := row.Scan(&pid); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find participant by nickname: %w", err)
	}
	return s.GetParticipantProgress(contestID, pid)
}

// ValidateWhitelist checks a closed-mode join against the whitelist table,
// returning the whitelist row's participant id on success
// (spec §4.3 "Join", closed mode).
func (s *Store) ValidateWhitelist(contestID, nickname, organization, password string) (string, error) {
	row := s.db.QueryRow(`
		SELECT participant_id, password FROM whitelist WHERE contest_id = ? AND nickname = ?
	`, contestID, nickname)

	var pid, storedPassword string
	if err := row.Scan(&pid, &storedPassword); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("nickname not on whitelist")
		}
		return "", fmt.Errorf("validate whitelist: %w", err)
	}
	if storedPassword != password {
		return "", fmt.Errorf("password mismatch")
	}
	return pid, nil
}

// UpsertWhitelistEntry inserts or replaces a single whitelist row, used by
// the roster-upload import path (spec §6 "roster upload").
func (s *Store) UpsertWhitelistEntry(contestID, nickname, organization, password, participantID string) error {
	return s.withWrite("upsert_whitelist_entry", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO whitelist (contest_id, nickname, organization, password, participant_id)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(contest_id, nickname) DO UPDATE SET
				organization=excluded.organization, password=excluded.password, participant_id=excluded.participant_id
		`, contestID, nickname, organization, password, participantID)
		if err != nil {
			return fmt.Errorf("upsert whitelist entry: %w", err)
		}
		return nil
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scoreKeysToStrings normalizes integer task-id keys to their decimal string
// form for the wire/storage representation (spec §3 "Key-type confusion":
// in-memory is integer, on-the-wire JSON keys are decimal strings).
func scoreKeysToStrings(scores map[int64]*contest.TaskScore) map[string]*contest.TaskScore {
	out := make(map[string]*contest.TaskScore, len(scores))
	for k, v := range scores {
		out[strconv.FormatInt(k, 10)] = v
	}
	return out
}

// unmarshalScores decodes a stored scores_json blob into dst, tolerating
// legacy string keys and duck-typed bare-integer rows
// (spec §9 "Duck-typed score rows", "Key-type confusion"; upgrade-on-read
// happens inside contest.TaskScore.UnmarshalJSON).
func unmarshalScores(blob string, dst map[int64]*contest.TaskScore) error {
	if blob == "" {
		return nil
	}
	var raw map[string]*contest.TaskScore
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return err
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue // tolerate unparseable legacy keys rather than fail the whole load
		}
		dst[id] = v
	}
	return nil
}

