// Package broadcast fans out scoreboard updates, personal results, pending
// notices, and lifecycle events to every connected client of a contest
// (spec §4.6 "Broadcast Layer"). Grounded on internal/server/server.go's
// writer-mutex discipline (s.mu guarding a single NDJSON writer),
// generalized from "one writer per process" to "one writer-mutex per
// subscriber connection, one room registry per contest."
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/pkg/types"
)

// Writer is anything that can have a Notification pushed to it. Connections
// in internal/transport implement this with their own s.mu-guarded NDJSON
// encoder, mirroring writeNotification in the teacher's server.go.
type Writer interface {
	WriteNotification(n *types.Notification)
}

// Hub owns one room per contest and fans notifications out to every
// subscriber currently in that room. Safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[Writer]string // contestID -> subscriber -> participantID ("" for admin/spectator)

	logger *slog.Logger
}

// New creates an empty Hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[Writer]string),
		logger: logger,
	}
}

// Subscribe adds w to contestID's room. participantID is "" for admin and
// spectator connections, which receive full_status_update and lifecycle
// events but never a personal_result addressed to a specific participant.
func (h *Hub) Subscribe(contestID string, w Writer, participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[contestID]
	if !ok {
		room = make(map[Writer]string)
		h.rooms[contestID] = room
	}
	room[w] = participantID
}

// Unsubscribe removes w from contestID's room, called when a connection
// closes (spec §4.6 "subscriber connection").
func (h *Hub) Unsubscribe(contestID string, w Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[contestID]
	if !ok {
		return
	}
	delete(room, w)
	if len(room) == 0 {
		delete(h.rooms, contestID)
	}
}

// subscribers returns a snapshot of contestID's room, safe to range over
// without holding h.mu while writes (which may block on slow clients) run.
func (h *Hub) subscribers(contestID string) map[Writer]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[contestID]
	out := make(map[Writer]string, len(room))
	for w, pid := range room {
		out[w] = pid
	}
	return out
}

func (h *Hub) notify(contestID, method string, payload any, to func(participantID string) bool) {
	n, err := types.NewNotification(method, payload)
	if err != nil {
		h.logger.Error("marshal notification", "method", method, "contest", contestID, "err", err)
		return
	}
	for w, pid := range h.subscribers(contestID) {
		if to != nil && !to(pid) {
			continue
		}
		w.WriteNotification(n)
	}
}

// PublishFullStatusUpdate pushes the ranked scoreboard to every subscriber
// of contestID (spec §4.6 "full_status_update").
func (h *Hub) PublishFullStatusUpdate(contestID string, view *contest.ScoreboardView) {
	h.notify(contestID, "full_status_update", view, nil)
}

// PublishPersonalResult pushes a verdict to the single participant it
// belongs to (spec §4.6 "personal_result"). Other subscribers in the room
// never see it.
func (h *Hub) PublishPersonalResult(contestID string, result contest.PersonalResult, participantID string) {
	h.notify(contestID, "personal_result", result, func(pid string) bool {
		return pid == participantID
	})
}

// submissionPending is the payload of a submission_pending notification,
// telling a participant their own submission was accepted and is awaiting
// judgment (spec §4.6 "submission_pending").
type submissionPending struct {
	TaskID int64 `json:"task_id"`
}

// PublishSubmissionPending notifies participantID that their submission was
// admitted into the queue (spec §2 "Flow", acknowledgment before judging).
func (h *Hub) PublishSubmissionPending(contestID, participantID string, taskID int64) {
	h.notify(contestID, "submission_pending", submissionPending{TaskID: taskID}, func(pid string) bool {
		return pid == participantID
	})
}

// PublishLifecycle pushes a contest-wide lifecycle event (started, finished,
// reveal_step, announcement) to every subscriber (spec §4.6 "Events").
func (h *Hub) PublishLifecycle(contestID, method string, payload any) {
	h.notify(contestID, method, payload, nil)
}
