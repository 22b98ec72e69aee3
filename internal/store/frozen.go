package store

import (
	"database/sql"
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/localjudge/engine/internal/contest"
)

// SaveFrozenBoard persists the frozen and (once computed) final scoreboard
// snapshots for a contest that used an ICPC freeze window (spec §4.3
// "Freeze/unfreeze", spec §4.4 "SaveFrozenBoard"). Either snapshot may be
// nil if not yet available.
func (s *Store) SaveFrozenBoard(contestID string, frozen, final *contest.ScoreboardView, freezeTime int64) error {
	frozenJSON, err := marshalOptionalView(frozen)
	if err != nil {
		return fmt.Errorf("marshal frozen view: %w", err)
	}
	finalJSON, err := marshalOptionalView(final)
	if err != nil {
		return fmt.Errorf("marshal final view: %w", err)
	}
	revealed := 0
	if final != nil {
		revealed = 1
	}

	return s.withWrite("save_frozen_board", func(db *sql.DB) error {
		_, err := db.Exec(`
			INSERT INTO frozen_boards (contest_id, frozen_scoreboard, final_scoreboard, freeze_time, is_revealed)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(contest_id) DO UPDATE SET
				frozen_scoreboard = COALESCE(excluded.frozen_scoreboard, frozen_boards.frozen_scoreboard),
				final_scoreboard  = COALESCE(excluded.final_scoreboard, frozen_boards.final_scoreboard),
				freeze_time       = excluded.freeze_time,
				is_revealed       = MAX(frozen_boards.is_revealed, excluded.is_revealed)
		`, contestID, frozenJSON, finalJSON, freezeTime, revealed)
		if err != nil {
			return fmt.Errorf("upsert frozen board: %w", err)
		}
		return nil
	})
}

func marshalOptionalView(v *contest.ScoreboardView) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
