package transport

import (
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/segmentio/encoding/json"

	"github.com/localjudge/engine/internal/broadcast"
	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/dispatcher"
	"github.com/localjudge/engine/pkg/types"
)

// Manager is the subset of internal/contest.Manager the transport layer
// depends on, declared consumer-side.
type Manager interface {
	Join(contestID, nickname, organization, password string, now int64) (string, *types.RPCError)
	Snapshot(contestID string, now int64) (*contest.ScoreboardView, *types.RPCError)
	FinishEarly(contestID, participantID string) *types.RPCError
	Disqualify(contestID, participantID string) *types.RPCError
	Close(contestID string) *types.RPCError
	CreateContest(id, name string, taskIDs []int64, cfg contest.Config, startTime *int64) (*contest.Contest, error)
	StartContest(contestID string, now int64) *types.RPCError
	Reveal(contestID string, now int64) *types.RPCError
	Get(contestID string) (*contest.Contest, bool)
	Admit(contestID, participantID string, taskID int64, language contest.Language, code string, now int64) *types.RPCError
}

// Store is the subset of internal/store.Store the transport layer depends
// on for admin task/roster endpoints and participant history queries.
type Store interface {
	CreateTask(t *contest.Task) (int64, error)
	ListTasks() ([]*contest.Task, error)
	ImportTests(taskID int64, tests []contest.Test) error
	SaveSubmissionCode(contestID, participantID string, taskID int64, code string) error
	HistoryForParticipant(contestID, participantID string) ([]contest.HistoryRecord, error)
	UpsertWhitelistEntry(contestID, nickname, organization, password, participantID string) error
}

// Dispatcher is the subset of internal/dispatcher.Dispatcher the transport
// layer depends on.
type Dispatcher interface {
	Enqueue(j dispatcher.Job)
	QueueDepth() int
}

// Deps bundles everything RegisterBuiltinHandlers needs, mirroring the
// teacher's buildRegistryOptions construction step.
type Deps struct {
	Manager         Manager
	Store           Store
	Dispatcher      Dispatcher
	Hub             *broadcast.Hub
	AdminPasswordHash []byte
	Now             func() int64
	Logger          *slog.Logger
}

// RegisterBuiltinHandlers registers every external-interface method on s
// (spec §6), the way the teacher's RegisterBuiltinHandlers wires
// initialize/evaluate_batch/etc. onto its Server.
func RegisterBuiltinHandlers(s *Server, d Deps) {
	s.RegisterHandler("join", handleJoin(d))
	s.RegisterHandler("subscribe", handleSubscribe(d))
	s.RegisterHandler("submit", handleSubmit(d))
	s.RegisterHandler("finish_early", handleFinishEarly(d))
	s.RegisterHandler("history", handleHistory(d))
	s.RegisterHandler("scoreboard", handleScoreboard(d))

	s.RegisterHandler("admin_login", handleAdminLogin(d))
	s.RegisterHandler("create_task", handleCreateTask(d))
	s.RegisterHandler("import_tests", handleImportTests(d))
	s.RegisterHandler("create_contest", handleCreateContest(d))
	s.RegisterHandler("start_contest", handleStartContest(d))
	s.RegisterHandler("finish_contest", handleFinishContest(d))
	s.RegisterHandler("disqualify", handleDisqualify(d))
	s.RegisterHandler("reveal", handleReveal(d))
	s.RegisterHandler("upload_roster", handleUploadRoster(d))
}

func requireAdmin(conn *Conn) *types.RPCError {
	if conn.Session().Role() != RoleAdmin {
		return types.ErrorAuthFailed("admin authentication required")
	}
	return nil
}

// --- participant endpoints ---

type joinParams struct {
	ContestID    string `json:"contest_id"`
	Nickname     string `json:"nickname"`
	Organization string `json:"organization,omitempty"`
	Password     string `json:"password,omitempty"`
}

type joinResult struct {
	ParticipantID string `json:"participant_id"`
}

func handleJoin(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		var p joinParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid join params: " + err.Error())
		}
		pid, rpcErr := d.Manager.Join(p.ContestID, p.Nickname, p.Organization, p.Password, d.Now())
		if rpcErr != nil {
			return nil, rpcErr
		}
		conn.Session().SetParticipant(p.ContestID, pid)
		d.Hub.Subscribe(p.ContestID, conn, pid)
		return joinResult{ParticipantID: pid}, nil
	}
}

type subscribeParams struct {
	ContestID string `json:"contest_id"`
}

// handleSubscribe lets a spectator (or an admin watching) join a contest's
// broadcast room without becoming a participant (spec §4.6 "spectators join
// as read-only").
func handleSubscribe(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		var p subscribeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid subscribe params: " + err.Error())
		}
		if _, ok := d.Manager.Get(p.ContestID); !ok {
			return nil, types.ErrorContestNotFound(p.ContestID)
		}
		if conn.Session().Role() == RoleUnauthenticated {
			conn.Session().SetSpectator(p.ContestID)
		}
		d.Hub.Subscribe(p.ContestID, conn, conn.Session().Participant())
		return struct{}{}, nil
	}
}

type submitParams struct {
	TaskID   int64  `json:"task_id"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

type submitResult struct {
	Status    string `json:"status"`
	QueueSize int    `json:"queue_size"`
}

func handleSubmit(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		sess := conn.Session()
		if sess.Role() != RoleParticipant {
			return nil, types.ErrorAuthFailed("join before submitting")
		}
		var p submitParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid submit params: " + err.Error())
		}
		contestID, participantID := sess.Contest(), sess.Participant()
		language := contest.Language(p.Language)
		now := d.Now()

		if rpcErr := d.Manager.Admit(contestID, participantID, p.TaskID, language, p.Code, now); rpcErr != nil {
			return nil, rpcErr
		}
		if err := d.Store.SaveSubmissionCode(contestID, participantID, p.TaskID, p.Code); err != nil {
			d.Logger.Error("save submission code", "contest", contestID, "participant", participantID, "err", err)
		}
		d.Dispatcher.Enqueue(dispatcher.Job{
			ContestID:     contestID,
			ParticipantID: participantID,
			TaskID:        p.TaskID,
			Language:      language,
			Code:          p.Code,
			SubmittedAt:   now,
		})
		return submitResult{Status: "queued", QueueSize: d.Dispatcher.QueueDepth()}, nil
	}
}

func handleFinishEarly(d Deps) Handler {
	return func(conn *Conn, _ json.RawMessage) (any, *types.RPCError) {
		sess := conn.Session()
		if sess.Role() != RoleParticipant {
			return nil, types.ErrorAuthFailed("join before finishing")
		}
		if rpcErr := d.Manager.FinishEarly(sess.Contest(), sess.Participant()); rpcErr != nil {
			return nil, rpcErr
		}
		return struct{}{}, nil
	}
}

type historyResult struct {
	Records []contest.HistoryRecord `json:"records"`
}

func handleHistory(d Deps) Handler {
	return func(conn *Conn, _ json.RawMessage) (any, *types.RPCError) {
		sess := conn.Session()
		if sess.Role() != RoleParticipant {
			return nil, types.ErrorAuthFailed("join before requesting history")
		}
		records, err := d.Store.HistoryForParticipant(sess.Contest(), sess.Participant())
		if err != nil {
			return nil, types.ErrorPersistenceError(err.Error())
		}
		return historyResult{Records: records}, nil
	}
}

type scoreboardParams struct {
	ContestID string `json:"contest_id"`
}

func handleScoreboard(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		contestID := conn.Session().Contest()
		if contestID == "" {
			var p scoreboardParams
			if err := json.Unmarshal(params, &p); err == nil {
				contestID = p.ContestID
			}
		}
		if contestID == "" {
			return nil, types.ErrorContestNotFound("")
		}
		view, rpcErr := d.Manager.Snapshot(contestID, d.Now())
		if rpcErr != nil {
			return nil, rpcErr
		}
		return view, nil
	}
}

// --- administrative endpoints ---

type adminLoginParams struct {
	Password string `json:"password"`
}

func handleAdminLogin(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		var p adminLoginParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid admin_login params: " + err.Error())
		}
		if err := bcrypt.CompareHashAndPassword(d.AdminPasswordHash, []byte(p.Password)); err != nil {
			return nil, types.ErrorAuthFailed("invalid admin credentials")
		}
		conn.Session().SetAdmin()
		return struct{}{}, nil
	}
}

type createTaskParams struct {
	Title            string `json:"title"`
	Difficulty       string `json:"difficulty"`
	Topic            string `json:"topic"`
	Description      string `json:"description"`
	Attachment       []byte `json:"attachment,omitempty"`
	AttachmentFormat string `json:"attachment_format,omitempty"`
	Checker          string `json:"checker,omitempty"`
}

type createTaskResult struct {
	TaskID int64 `json:"task_id"`
}

func handleCreateTask(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p createTaskParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid create_task params: " + err.Error())
		}
		id, err := d.Store.CreateTask(&contest.Task{
			Title: p.Title, Difficulty: p.Difficulty, Topic: p.Topic, Description: p.Description,
			Attachment: p.Attachment, AttachmentFormat: p.AttachmentFormat, Checker: p.Checker,
		})
		if err != nil {
			return nil, types.ErrorPersistenceError(err.Error())
		}
		return createTaskResult{TaskID: id}, nil
	}
}

type importTestsParams struct {
	TaskID int64           `json:"task_id"`
	Tests  []contest.Test  `json:"tests"`
}

func handleImportTests(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p importTestsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid import_tests params: " + err.Error())
		}
		if err := d.Store.ImportTests(p.TaskID, p.Tests); err != nil {
			return nil, types.ErrorPersistenceError(err.Error())
		}
		return struct{}{}, nil
	}
}

type createContestParams struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	TaskIDs          []int64           `json:"task_ids"`
	DurationMinutes  int               `json:"duration_minutes"`
	Scoring          contest.Scoring   `json:"scoring"`
	Mode             contest.Mode      `json:"mode"`
	AllowedLanguages []contest.Language `json:"allowed_languages"`
	StartTime        *int64            `json:"start_time,omitempty"`
	FreezeMinutes    *int              `json:"freeze_minutes,omitempty"`
}

func handleCreateContest(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p createContestParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid create_contest params: " + err.Error())
		}
		cfg := contest.Config{
			DurationMinutes:  p.DurationMinutes,
			Scoring:          p.Scoring,
			Mode:             p.Mode,
			AllowedLanguages: p.AllowedLanguages,
			FreezeMinutes:    p.FreezeMinutes,
		}
		c, err := d.Manager.CreateContest(p.ID, p.Name, p.TaskIDs, cfg, p.StartTime)
		if err != nil {
			return nil, types.ErrorPersistenceError(err.Error())
		}
		return c, nil
	}
}

type contestIDParams struct {
	ContestID string `json:"contest_id"`
}

func handleStartContest(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p contestIDParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid start_contest params: " + err.Error())
		}
		if rpcErr := d.Manager.StartContest(p.ContestID, d.Now()); rpcErr != nil {
			return nil, rpcErr
		}
		return struct{}{}, nil
	}
}

func handleFinishContest(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p contestIDParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid finish_contest params: " + err.Error())
		}
		if rpcErr := d.Manager.Close(p.ContestID); rpcErr != nil {
			return nil, rpcErr
		}
		return struct{}{}, nil
	}
}

type disqualifyParams struct {
	ContestID     string `json:"contest_id"`
	ParticipantID string `json:"participant_id"`
}

func handleDisqualify(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p disqualifyParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid disqualify params: " + err.Error())
		}
		if rpcErr := d.Manager.Disqualify(p.ContestID, p.ParticipantID); rpcErr != nil {
			return nil, rpcErr
		}
		return struct{}{}, nil
	}
}

func handleReveal(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p contestIDParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid reveal params: " + err.Error())
		}
		if rpcErr := d.Manager.Reveal(p.ContestID, d.Now()); rpcErr != nil {
			return nil, rpcErr
		}
		return struct{}{}, nil
	}
}

type uploadRosterParams struct {
	ContestID string          `json:"contest_id"`
	Entries   []rosterEntry   `json:"entries"`
}

type rosterEntry struct {
	Nickname      string `json:"nickname"`
	Organization  string `json:"organization,omitempty"`
	Password      string `json:"password"`
	ParticipantID string `json:"participant_id"`
}

func handleUploadRoster(d Deps) Handler {
	return func(conn *Conn, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireAdmin(conn); rpcErr != nil {
			return nil, rpcErr
		}
		var p uploadRosterParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.ErrorEngineError("invalid upload_roster params: " + err.Error())
		}
		for _, e := range p.Entries {
			participantID := e.ParticipantID
			if participantID == "" {
				participantID = uuid.NewString()
			}
			if err := d.Store.UpsertWhitelistEntry(p.ContestID, e.Nickname, e.Organization, e.Password, participantID); err != nil {
				return nil, types.ErrorPersistenceError(err.Error())
			}
		}
		return struct{}{}, nil
	}
}
