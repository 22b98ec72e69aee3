// Package lifecycle runs the contest lifecycle controller: a ~10s ticker
// that starts scheduled contests, closes expired ones, and drives the ICPC
// freeze/reveal boundary (spec §4.5 "Lifecycle Controller"). Grounded on
// internal/cache/embeddings.go's flushLoop ticker-with-stop-channel idiom.
package lifecycle

import (
	"log/slog"
	"time"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/pkg/types"
)

// tickInterval matches the ~10s cadence spec §4.5 requires.
const tickInterval = 10 * time.Second

// staleRunawayAge bounds how far in the past a running contest's effective
// end may sit before restart recovery drops it rather than resuming it
// (spec §4.5 "Drop contests whose effective end is more than one hour in
// the past").
const staleRunawayAge = 1 * time.Hour

// Store is the subset of internal/store.Store the Controller depends on.
type Store interface {
	LoadAllActiveContests() ([]*contest.Contest, error)
	LoadScheduled() (map[string]int64, error)
	MarkFinished(contestID string) error
	PersistContestSnapshot(contestID string, participants map[string]*contest.Participant) error
}

// Manager is the subset of internal/contest.Manager the Controller depends
// on, declared consumer-side.
type Manager interface {
	Hydrate(c *contest.Contest)
	All() []*contest.Contest
	StartContest(contestID string, now int64) *types.RPCError
	CheckFreeze(contestID string, now int64)
	Close(contestID string) *types.RPCError
}

// Controller owns the background ticker that advances every loaded
// contest's lifecycle (spec §4.5).
type Controller struct {
	store   Store
	manager Manager
	logger  *slog.Logger
	now     func() int64

	stop chan struct{}
	done chan struct{}
}

// New creates a Controller. Call Recover once at process start, then Start
// to begin ticking.
func New(store Store, manager Manager, logger *slog.Logger, now func() int64) *Controller {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &Controller{
		store:   store,
		manager: manager,
		logger:  logger,
		now:     now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Recover reloads every non-finished contest, scheduled ones included, from
// the Store (their scheduled start times are read by each Tick, not here),
// with a missing start_time inferred from the earliest history row, and
// drops stale runaways (spec §4.5 "Restart recovery").
// Must be called once before Start, with nothing else touching Manager yet.
func (ctl *Controller) Recover() error {
	contests, err := ctl.store.LoadAllActiveContests()
	if err != nil {
		return err
	}

	now := ctl.now()
	for _, c := range contests {
		if c.Status == contest.StatusRunning && c.StartTime != nil {
			end := *c.StartTime + int64(c.Config.DurationMinutes)*60
			if now-end > int64(staleRunawayAge.Seconds()) {
				ctl.logger.Warn("dropping stale runaway contest on recovery", "contest", c.ID, "effective_end", end)
				if err := ctl.store.MarkFinished(c.ID); err != nil {
					ctl.logger.Error("mark stale contest finished", "contest", c.ID, "err", err)
				}
				continue
			}
		}
		ctl.manager.Hydrate(c)
	}
	return nil
}

// Start launches the ticker loop in its own goroutine. Call Stop to end it.
func (ctl *Controller) Start() {
	go ctl.loop()
}

// Stop signals the loop to exit and blocks until it has.
func (ctl *Controller) Stop() {
	close(ctl.stop)
	<-ctl.done
}

func (ctl *Controller) loop() {
	defer close(ctl.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctl.Tick()
		case <-ctl.stop:
			return
		}
	}
}

// Tick advances scheduled starts, freeze boundaries, and expirations for
// every contest currently in memory (spec §4.5 "scheduler loop"). Exported
// so tests can drive a tick directly instead of waiting on the ticker.
func (ctl *Controller) Tick() {
	now := ctl.now()

	scheduled, err := ctl.store.LoadScheduled()
	if err != nil {
		ctl.logger.Error("load scheduled contests", "err", err)
	} else {
		for contestID, startTime := range scheduled {
			if startTime > now {
				continue
			}
			if rpcErr := ctl.manager.StartContest(contestID, now); rpcErr != nil {
				ctl.logger.Error("start scheduled contest", "contest", contestID, "err", rpcErr.Message)
			}
		}
	}

	for _, c := range ctl.manager.All() {
		if c.Status != contest.StatusRunning {
			continue
		}
		ctl.manager.CheckFreeze(c.ID, now)

		if c.StartTime == nil {
			continue
		}
		end := *c.StartTime + int64(c.Config.DurationMinutes)*60
		if now < end {
			continue
		}
		if err := ctl.store.PersistContestSnapshot(c.ID, c.Participants); err != nil {
			ctl.logger.Error("persist snapshot before close", "contest", c.ID, "err", err)
		}
		if rpcErr := ctl.manager.Close(c.ID); rpcErr != nil {
			ctl.logger.Error("close expired contest", "contest", c.ID, "err", rpcErr.Message)
		}
	}
}
