package contest

import "github.com/localjudge/engine/pkg/types"

// CheckFreeze evaluates whether the ICPC freeze boundary has just been
// crossed and, if so, captures the baseline cell values and flips the
// frozen flag (spec §4.3 "Freeze/unfreeze"). Called by the Lifecycle
// Controller's tick, not by submission handling.
func (m *Manager) CheckFreeze(contestID string, now int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok || c.Config.Scoring != ScoringICPC || c.Config.FreezeMinutes == nil || c.frozen {
		return
	}
	if c.StartTime == nil {
		return
	}
	end := *c.StartTime + int64(c.Config.DurationMinutes)*60
	freezeBoundary := end - int64(*c.Config.FreezeMinutes)*60
	if now < freezeBoundary {
		return
	}

	c.frozen = true
	fb := now
	c.freezeTime = &fb
	c.frozenBaseline = make(map[string]map[int64]Cell, len(c.Participants))
	for pid, p := range c.Participants {
		cells := make(map[int64]Cell, len(c.TaskIDs))
		for _, taskID := range c.TaskIDs {
			if s, ok := p.Scores[taskID]; ok {
				cells[taskID] = Cell{Passed: s.Passed, Score: s.Score, Attempts: s.Attempts, Penalty: s.Penalty}
			} else {
				cells[taskID] = Cell{}
			}
		}
		c.frozenBaseline[pid] = cells
	}
	c.MarkDirty()
}

// Reveal replays frozen changes in application order (tie-break by
// insertion order, per spec §9 Open Question (b)), emitting a reveal_step
// per change, then marks the contest revealed so the next Snapshot exposes
// the final board (spec §4.3 "On admin Reveal").
func (m *Manager) Reveal(contestID string, now int64) *types.RPCError {
	m.mu.Lock()
	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return types.ErrorContestNotFound(contestID)
	}
	if !c.frozen || c.revealed {
		m.mu.Unlock()
		return nil
	}
	changes := c.frozenChanges
	c.revealed = true
	c.MarkDirty()
	view := snapshotLocked(c, now)
	m.mu.Unlock()

	for _, ch := range changes {
		m.broadcast.PublishLifecycle(contestID, "reveal_step", map[string]any{
			"participant_id": ch.ParticipantID,
			"task_id":        ch.TaskID,
			"new_score":      ch.NewCell.Score,
		})
	}
	m.broadcast.PublishFullStatusUpdate(contestID, view)
	if err := m.store.SaveFrozenBoard(contestID, nil, view, *c.freezeTime); err != nil {
		return types.ErrorPersistenceError(err.Error())
	}
	return nil
}
