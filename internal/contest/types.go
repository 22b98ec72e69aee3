// Package contest holds the authoritative in-memory contest state: the
// configuration, participants, scores, and cached scoreboard for every
// contest that is not yet finished. All reads and writes go through Manager,
// which serializes access behind a single coarse mutex (spec §3
// "Ownership", §5 "Scheduling model").
package contest

import "github.com/segmentio/encoding/json"

// Scoring identifies one of the three scoring models.
type Scoring string

const (
	ScoringICPC          Scoring = "icpc"
	ScoringAllOrNothing  Scoring = "all_or_nothing"
	ScoringPoints        Scoring = "points"
)

// Mode controls how participants join a contest.
type Mode string

const (
	ModeFree   Mode = "free"
	ModeClosed Mode = "closed"
)

// Language is a fixed, registry-backed submission language.
type Language string

const (
	LanguagePython Language = "Python"
	LanguageCPP    Language = "C++"
	LanguageCSharp Language = "C#"
)

// Status is a contest's lifecycle state (spec §3 "Lifecycles").
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusWaiting   Status = "waiting"
	StatusRunning   Status = "running"
	StatusFinished  Status = "finished"
)

// Config is the fixed, admin-supplied contest configuration.
type Config struct {
	DurationMinutes int        `json:"duration_minutes"`
	Scoring         Scoring    `json:"scoring"`
	Mode            Mode       `json:"mode"`
	AllowedLanguages []Language `json:"allowed_languages"`
	FreezeMinutes   *int       `json:"freeze_minutes,omitempty"`
}

// AllowsLanguage reports whether language is in the configured whitelist.
func (c Config) AllowsLanguage(language Language) bool {
	for _, l := range c.AllowedLanguages {
		if l == language {
			return true
		}
	}
	return false
}

// Task is an immutable problem definition, referenced by id for the
// lifetime of a contest.
type Task struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Difficulty  string          `json:"difficulty"`
	Topic       string          `json:"topic"`
	Description string          `json:"description"`
	Attachment  []byte          `json:"attachment,omitempty"`
	AttachmentFormat string     `json:"attachment_format,omitempty"`
	Checker     string          `json:"checker,omitempty"`
}

// Test is one input/expected-output pair for a task, with its own wall-clock
// limit. Stored with '\n' newlines only; CRLF is stripped on ingest
// (spec §3 "Newline normalization").
type Test struct {
	ID               int64   `json:"id"`
	TaskID           int64   `json:"task_id"`
	Input            string  `json:"input"`
	ExpectedOutput   string  `json:"expected_output"`
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
}

// TaskScore is the frozen-on-pass scoring record for one (participant, task)
// pair. Invariants (enforced by ApplyOutcome in scoring.go, never by callers
// directly mutating a TaskScore): passed ⇒ score > 0; penalty > 0 ⇒ passed;
// once passed, attempts and penalty never change again.
type TaskScore struct {
	Score    int  `json:"score"`
	Attempts int  `json:"attempts"`
	Passed   bool `json:"passed"`
	Penalty  int  `json:"penalty"`
}

// UnmarshalJSON accepts either a bare integer (legacy duck-typed rows) or a
// structured object, upgrading the former to the full TaskScore shape in
// place (spec §9 "Duck-typed score rows").
func (s *TaskScore) UnmarshalJSON(data []byte) error {
	var bare int
	if err := json.Unmarshal(data, &bare); err == nil {
		s.Score = bare
		s.Attempts = 0
		s.Passed = bare > 0
		s.Penalty = 0
		return nil
	}

	type alias TaskScore
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = TaskScore(a)
	return nil
}

// Participant is one contestant's state within a single contest.
type Participant struct {
	ID                 string                 `json:"id"`
	Nickname           string                 `json:"nickname"`
	Organization       string                 `json:"organization,omitempty"`
	Scores             map[int64]*TaskScore    `json:"scores"`
	LastSubmissions    map[int64]string        `json:"last_submissions"`
	PendingSubmissions int                     `json:"pending_submissions"`
	FinishedEarly      bool                    `json:"finished_early"`
	Disqualified       bool                    `json:"disqualified"`
}

// NewParticipant creates a Participant with initialized maps.
func NewParticipant(id, nickname, organization string) *Participant {
	return &Participant{
		ID:              id,
		Nickname:        nickname,
		Organization:    organization,
		Scores:          make(map[int64]*TaskScore),
		LastSubmissions: make(map[int64]string),
	}
}

// ScoreFor returns the TaskScore for taskID, creating a zero-value one if
// absent. Never returns nil.
func (p *Participant) ScoreFor(taskID int64) *TaskScore {
	s, ok := p.Scores[taskID]
	if !ok {
		s = &TaskScore{}
		p.Scores[taskID] = s
	}
	return s
}

// Contest is the authoritative in-memory record for one contest.
type Contest struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	TaskIDs      []int64                 `json:"task_ids"`
	Config       Config                  `json:"config"`
	Status       Status                  `json:"status"`
	StartTime    *int64                  `json:"start_time,omitempty"` // epoch seconds
	Announcement string                  `json:"announcement,omitempty"`
	Participants map[string]*Participant `json:"participants"`
	FirstSolves  map[int64]string        `json:"first_solves"`

	cachedScoreboard *ScoreboardView
	isDirty          bool
	freezeTime       *int64 // epoch seconds, set once the freeze boundary is crossed

	frozen         bool                     // true once freeze boundary crossed, until Reveal completes
	revealed       bool                     // true once Reveal has replayed all frozen changes
	frozenBaseline map[string]map[int64]Cell // cell values as of the freeze boundary
	frozenChanges  []FreezeChange           // post-freeze ApplyResult outcomes, in application order
}

// FreezeChange records one ApplyResult outcome that happened after the
// freeze boundary, for later replay by Reveal (spec §4.3 "Freeze/unfreeze").
type FreezeChange struct {
	ParticipantID string
	TaskID        int64
	NewCell       Cell
	InsertionID   int64
	Timestamp     int64
}

// NewContest creates a Contest in the given initial status with empty
// participant/first-solve maps.
func NewContest(id, name string, taskIDs []int64, cfg Config, status Status) *Contest {
	return &Contest{
		ID:           id,
		Name:         name,
		TaskIDs:      taskIDs,
		Config:       cfg,
		Status:       status,
		Participants: make(map[string]*Participant),
		FirstSolves:  make(map[int64]string),
		isDirty:      true,
	}
}

// MarkDirty sets the dirty flag so the next Snapshot recomputes the
// scoreboard (spec §4.3 "Dirty-flag protocol").
func (c *Contest) MarkDirty() { c.isDirty = true }
