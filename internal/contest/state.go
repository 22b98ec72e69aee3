package contest

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localjudge/engine/internal/metrics"
	"github.com/localjudge/engine/pkg/types"
)

// Store is the subset of the persistent Store the Manager depends on. It is
// satisfied by internal/store.Store; declared here (consumer side) to keep
// internal/contest free of a dependency on internal/store.
type Store interface {
	PersistContestSnapshot(contestID string, participants map[string]*Participant) error
	AppendHistory(rec HistoryRecord) (insertionID int64, err error)
	SaveFrozenBoard(contestID string, frozen, final *ScoreboardView, freezeTime int64) error
	FindParticipantByNickname(contestID, nickname string) (*Participant, bool, error)
	ValidateWhitelist(contestID, nickname, organization, password string) (participantID string, err error)
	SaveContestConfig(c *Contest) error
	SetContestStart(contestID string, startTime int64) error
	ScheduleContest(contestID string, startTime int64) error
	DeleteScheduled(contestID string) error
}

// Broadcaster is the subset of internal/broadcast the Manager depends on.
type Broadcaster interface {
	PublishFullStatusUpdate(contestID string, view *ScoreboardView)
	PublishPersonalResult(contestID string, result PersonalResult, participantID string)
	PublishSubmissionPending(contestID, participantID string, taskID int64)
	PublishLifecycle(contestID, method string, payload any)
}

// Manager owns every non-finished Contest in memory, behind one coarse
// mutex (spec §3 "Ownership", §5 "Scheduling model"). All Contest State
// mutation anywhere in the process goes through a Manager method.
type Manager struct {
	mu       sync.Mutex
	contests map[string]*Contest

	store     Store
	broadcast Broadcaster
}

// NewManager creates an empty Manager.
func NewManager(store Store, broadcast Broadcaster) *Manager {
	return &Manager{
		contests:  make(map[string]*Contest),
		store:     store,
		broadcast: broadcast,
	}
}

// Hydrate inserts a Contest loaded from the Store into memory, for restart
// recovery (spec §4.5 "Restart recovery"). Callers must not hold mu.
func (m *Manager) Hydrate(c *Contest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.isDirty = true
	m.contests[c.ID] = c
}

// Get returns the in-memory Contest, or false if it is not loaded (already
// finished, or never existed).
func (m *Manager) Get(contestID string) (*Contest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	return c, ok
}

// All returns every currently loaded Contest, for lifecycle scanning.
func (m *Manager) All() []*Contest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Contest, 0, len(m.contests))
	for _, c := range m.contests {
		out = append(out, c)
	}
	return out
}

// remainingSeconds computes live remaining time; never cached (spec §4.3
// "remaining_seconds and status are never cached").
func remainingSeconds(c *Contest, now int64) int64 {
	if c.StartTime == nil {
		return int64(c.Config.DurationMinutes) * 60
	}
	end := *c.StartTime + int64(c.Config.DurationMinutes)*60
	if now >= end {
		return 0
	}
	return end - now
}

// Join admits a participant into a contest (spec §4.3 "Join").
func (m *Manager) Join(contestID, nickname, organization, password string, now int64) (string, *types.RPCError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return "", types.ErrorContestNotFound(contestID)
	}
	if c.Status == StatusFinished {
		return "", types.ErrorContestClosed()
	}

	if c.Config.Mode == ModeClosed {
		pid, err := m.store.ValidateWhitelist(contestID, nickname, organization, password)
		if err != nil {
			return "", types.ErrorAuthFailed(err.Error())
		}
		if p, ok := c.Participants[pid]; ok {
			if p.FinishedEarly {
				return "", types.ErrorAlreadyFinishedEarly()
			}
			return pid, nil
		}
		p := NewParticipant(pid, nickname, organization)
		c.Participants[pid] = p
		c.MarkDirty()
		return pid, nil
	}

	// free mode: reuse by nickname, from memory first, then Store.
	for _, p := range c.Participants {
		if p.Nickname == nickname {
			if p.FinishedEarly {
				return "", types.ErrorAlreadyFinishedEarly()
			}
			return p.ID, nil
		}
	}
	if stored, found, err := m.store.FindParticipantByNickname(contestID, nickname); err == nil && found {
		if stored.FinishedEarly {
			return "", types.ErrorAlreadyFinishedEarly()
		}
		c.Participants[stored.ID] = stored
		c.MarkDirty()
		return stored.ID, nil
	}

	id := uuid.NewString()
	p := NewParticipant(id, nickname, organization)
	c.Participants[id] = p
	c.MarkDirty()
	return id, nil
}

// Admit validates and admits a submission (spec §4.3 "Admit").
func (m *Manager) Admit(contestID, participantID string, taskID int64, language Language, code string, now int64) *types.RPCError {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contests[contestID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	if c.Status != StatusRunning {
		return types.ErrorContestNotRunning()
	}
	if remainingSeconds(c, now) <= 0 {
		return types.ErrorTimeOver()
	}
	if !c.Config.AllowsLanguage(language) {
		return types.ErrorLanguageNotAllowed(string(language))
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	if p.Disqualified {
		return types.ErrorDisqualified()
	}
	if p.FinishedEarly {
		return types.ErrorAlreadyFinishedEarly()
	}
	if p.PendingSubmissions >= 3 {
		return types.ErrorTooManyPending()
	}

	p.LastSubmissions[taskID] = code
	p.PendingSubmissions++
	c.MarkDirty()

	m.broadcast.PublishSubmissionPending(contestID, participantID, taskID)
	return nil
}

// ApplyResult mutates scoring per the contest's model and decrements
// pending_submissions on every path (spec §4.3 "ApplyResult", §4.2 worker
// procedure step 5).
func (m *Manager) ApplyResult(contestID, participantID string, taskID int64, verdict string, passed, total int, fatal bool, now int64) (*TaskScore, error) {
	lockedAt := time.Now()
	m.mu.Lock()
	unlock := func() {
		m.mu.Unlock()
		metrics.ContestMutexHoldSeconds.Observe(time.Since(lockedAt).Seconds())
	}
	c, ok := m.contests[contestID]
	if !ok {
		unlock()
		return nil, nil // contest left memory (finished); late result is dropped (spec §5)
	}
	p, ok := c.Participants[participantID]
	if !ok {
		unlock()
		return nil, nil
	}

	if p.PendingSubmissions > 0 {
		p.PendingSubmissions--
	}

	if p.Disqualified {
		c.MarkDirty()
		unlock()
		return p.ScoreFor(taskID), nil
	}

	s := p.ScoreFor(taskID)
	wasPassed := s.Passed
	elapsed := 0
	if c.StartTime != nil {
		elapsed = int((now - *c.StartTime) / 60)
	}
	ApplyOutcome(c.Config.Scoring, s, passed, total, elapsed, fatal)
	c.MarkDirty()

	if !wasPassed && s.Passed {
		if _, exists := c.FirstSolves[taskID]; !exists {
			c.FirstSolves[taskID] = participantID
		}
	}

	frozen := c.frozen && !c.revealed
	if frozen {
		cell := Cell{Passed: s.Passed, Score: s.Score, Attempts: s.Attempts, Penalty: s.Penalty}
		c.frozenChanges = append(c.frozenChanges, FreezeChange{
			ParticipantID: participantID,
			TaskID:        taskID,
			NewCell:       cell,
			Timestamp:     now,
		})
	}

	view := snapshotLocked(c, now)
	result := PersonalResult{TaskID: taskID, Verdict: verdict, TestsPassed: passed, TotalTests: total, Score: s.Score, Passed: s.Passed}
	scoreCopy := *s
	unlock()

	m.broadcast.PublishPersonalResult(contestID, result, participantID)
	m.broadcast.PublishFullStatusUpdate(contestID, view)

	return &scoreCopy, nil
}

// PersistParticipant durably writes one participant's current progress via
// the Store (spec §4.2 worker procedure step 6 "Persist progress"). Called
// by the Dispatcher after every ApplyResult so a crash mid-contest does not
// lose already-scored submissions (spec §8 scenario S6). A no-op if the
// contest or participant is no longer in memory.
func (m *Manager) PersistParticipant(contestID, participantID string) error {
	m.mu.Lock()
	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	p, ok := c.Participants[participantID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	snapshot := map[string]*Participant{participantID: p}
	m.mu.Unlock()

	return m.store.PersistContestSnapshot(contestID, snapshot)
}

// Snapshot returns the scoreboard, recomputing it only when dirty
// (spec §4.3 "Snapshot").
func (m *Manager) Snapshot(contestID string, now int64) (*ScoreboardView, *types.RPCError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return nil, types.ErrorContestNotFound(contestID)
	}
	return snapshotLocked(c, now), nil
}

// snapshotLocked must be called with m.mu held.
func snapshotLocked(c *Contest, now int64) *ScoreboardView {
	if c.isDirty || c.cachedScoreboard == nil {
		var frozenCells map[string]map[int64]Cell
		if c.frozen && !c.revealed {
			frozenCells = c.frozenBaseline
		}
		c.cachedScoreboard = BuildScoreboard(c, frozenCells)
		c.isDirty = false
	}
	view := *c.cachedScoreboard
	view.RemainingSeconds = remainingSeconds(c, now)
	view.Status = c.Status
	view.Frozen = c.frozen && !c.revealed
	rows := make([]Row, len(view.Rows))
	copy(rows, view.Rows)
	view.Rows = rows
	return &view
}

// FinishEarly marks a participant as having finished early
// (spec §4.3, §9 Open Question (c): terminal, re-admission disallowed).
func (m *Manager) FinishEarly(contestID, participantID string) *types.RPCError {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	if p.FinishedEarly {
		return types.ErrorAlreadyFinishedEarly()
	}
	p.FinishedEarly = true
	c.MarkDirty()
	return nil
}

// Disqualify flags a participant and zeros all of their scores
// (spec §4.3 "Disqualify", scenario S5).
func (m *Manager) Disqualify(contestID, participantID string) *types.RPCError {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contests[contestID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	p, ok := c.Participants[participantID]
	if !ok {
		return types.ErrorContestNotFound(contestID)
	}
	p.Disqualified = true
	p.FinishedEarly = true
	for _, s := range p.Scores {
		*s = TaskScore{}
	}
	c.MarkDirty()
	return nil
}

// Close transitions a contest to finished, persists it, and evicts it from
// memory (spec §4.3 "Close"). After evicting, Close writes every
// participant's scores and code via PersistContestSnapshot, marks the
// contest finished in the Store when the Store provides MarkFinished, and,
// if those writes succeed, publishes the "finished" lifecycle event.
func (m *Manager) Close(contestID string) *types.RPCError {
	m.mu.Lock()
	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return types.ErrorContestNotFound(contestID)
	}
	c.Status = StatusFinished
	delete(m.contests, contestID)
	m.mu.Unlock()

	if err := m.store.PersistContestSnapshot(contestID, c.Participants); err != nil {
		// Non-fatal (spec §7 PersistenceError): the contest is already
		// evicted from memory since it is finished; the durable rows
		// remain the last successfully-written snapshot.
		return types.ErrorPersistenceError(err.Error())
	}
	if fs, ok := m.store.(interface{ MarkFinished(contestID string) error }); ok {
		if err := fs.MarkFinished(contestID); err != nil {
			return types.ErrorPersistenceError(err.Error())
		}
	}
	m.broadcast.PublishLifecycle(contestID, "finished", nil)
	return nil
}

// CreateContest registers a brand-new Contest in memory and persists its
// configuration (spec §6 "create contest"). startTime nil puts the contest
// in StatusWaiting (manual start required); a non-nil startTime puts it in
// StatusScheduled for the Lifecycle Controller to start automatically.
func (m *Manager) CreateContest(id, name string, taskIDs []int64, cfg Config, startTime *int64) (*Contest, error) {
	status := StatusWaiting
	if startTime != nil {
		status = StatusScheduled
	}
	c := NewContest(id, name, taskIDs, cfg, status)
	c.StartTime = startTime

	if err := m.store.SaveContestConfig(c); err != nil {
		return nil, err
	}
	if startTime != nil {
		if err := m.store.ScheduleContest(id, *startTime); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.contests[id] = c
	m.mu.Unlock()
	return c, nil
}

// StartContest transitions a scheduled or waiting contest to running,
// stamping start_time if one was not already set by CreateContest
// (spec §6 "start", §4.5 scheduler tick "transition to running").
func (m *Manager) StartContest(contestID string, now int64) *types.RPCError {
	m.mu.Lock()
	c, ok := m.contests[contestID]
	if !ok {
		m.mu.Unlock()
		return types.ErrorContestNotFound(contestID)
	}
	if c.Status == StatusRunning || c.Status == StatusFinished {
		m.mu.Unlock()
		return nil
	}
	if c.StartTime == nil {
		start := now
		c.StartTime = &start
	}
	c.Status = StatusRunning
	c.MarkDirty()
	m.mu.Unlock()

	if err := m.store.SetContestStart(contestID, *c.StartTime); err != nil {
		return types.ErrorPersistenceError(err.Error())
	}
	if err := m.store.DeleteScheduled(contestID); err != nil {
		return types.ErrorPersistenceError(err.Error())
	}
	m.broadcast.PublishLifecycle(contestID, "started", nil)
	return nil
}
