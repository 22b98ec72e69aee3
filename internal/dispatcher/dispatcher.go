// Package dispatcher drains the submission queue into a fixed-size worker
// pool, each worker invoking the Sandbox Runner under a rate limit and
// reporting the result back into Contest State, the Store, and the
// Broadcast Layer (spec §4.2 "Dispatcher"). Grounded on
// internal/server/server.go's semaphore-gated concurrent dispatch loop.
package dispatcher

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/time/rate"

	"github.com/localjudge/engine/internal/contest"
	"github.com/localjudge/engine/internal/metrics"
	"github.com/localjudge/engine/internal/sandbox"
	"github.com/localjudge/engine/pkg/types"
)

// Store is the subset of internal/store.Store the Dispatcher depends on.
type Store interface {
	GetTask(taskID int64) (*contest.Task, error)
	LoadTests(taskID int64) ([]contest.Test, error)
	SaveSubmissionCode(contestID, participantID string, taskID int64, code string) error
	AppendHistory(rec contest.HistoryRecord) (int64, error)
}

// Manager is the subset of internal/contest.Manager the Dispatcher depends
// on, declared consumer-side to avoid importing the concrete type directly.
type Manager interface {
	ApplyResult(contestID, participantID string, taskID int64, verdict string, passed, total int, fatal bool, now int64) (*contest.TaskScore, error)
	PersistParticipant(contestID, participantID string) error
}

// Config controls worker-pool sizing and the sandbox submission rate limit.
type Config struct {
	Workers            int
	SandboxSlots       int // defaults to Workers if <= 0
	SubmissionsPerSecond float64
	Burst              int
	Now                func() int64
}

// Dispatcher owns the unbounded FIFO queue and the fixed worker pool that
// drains it (spec §4.2).
type Dispatcher struct {
	queue   *queue
	slots   chan struct{}
	limiter *rate.Limiter

	runner  sandbox.Runner
	store   Store
	manager Manager
	logger  *slog.Logger
	now     func() int64
	workers int

	wg sync.WaitGroup
}

// New creates a Dispatcher. Call Start to spin up the worker pool and
// Enqueue to submit jobs; call Stop to drain and shut down.
func New(cfg Config, runner sandbox.Runner, store Store, manager Manager, logger *slog.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	slots := cfg.SandboxSlots
	if slots < 1 {
		slots = workers
	}
	rps := cfg.SubmissionsPerSecond
	if rps <= 0 {
		rps = float64(workers) * 2
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = workers
	}
	now := cfg.Now
	if now == nil {
		now = func() int64 { return 0 }
	}

	return &Dispatcher{
		queue:   newQueue(),
		slots:   make(chan struct{}, slots),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		runner:  runner,
		store:   store,
		manager: manager,
		logger:  logger,
		now:     now,
		workers: workers,
	}
}

// Enqueue submits a job for asynchronous processing (spec §4.2 "Dispatcher
// enqueues").
func (d *Dispatcher) Enqueue(j Job) {
	d.queue.Push(j)
	metrics.QueueDepth.Set(float64(d.queue.Depth()))
}

// QueueDepth reports how many jobs are waiting for a worker, for metrics
// (spec "METRICS" judge_queue_depth).
func (d *Dispatcher) QueueDepth() int {
	depth := d.queue.Depth()
	metrics.QueueDepth.Set(float64(depth))
	return depth
}

// Start launches the worker pool. Workers run until ctx is canceled or Stop
// is called.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx)
	}
}

// Stop closes the queue and waits for in-flight workers to drain.
func (d *Dispatcher) Stop() {
	d.queue.Close()
	d.wg.Wait()
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		job, ok := d.queue.Pop()
		if !ok {
			return
		}
		metrics.QueueDepth.Set(float64(d.queue.Depth()))
		if err := d.limiter.Wait(ctx); err != nil {
			return // context canceled during shutdown
		}
		d.process(ctx, job)
	}
}

// process runs one job to completion: load tests, acquire a sandbox slot,
// run it, score the result, persist history, and let Manager.ApplyResult
// broadcast the outcome (spec §2 "Flow").
func (d *Dispatcher) process(ctx context.Context, job Job) {
	task, err := d.store.GetTask(job.TaskID)
	if err != nil {
		d.finishWithError(job, types.ErrorEngineError(err.Error()))
		return
	}
	tests, err := d.store.LoadTests(job.TaskID)
	if err != nil {
		d.finishWithError(job, types.ErrorEngineError(err.Error()))
		return
	}
	if len(tests) == 0 {
		d.finishWithError(job, types.ErrorNoTestsDefined(strconv.FormatInt(job.TaskID, 10)))
		return
	}

	d.slots <- struct{}{}
	metrics.SandboxSlotsInUse.Inc()
	result, err := d.runner.Run(ctx, job.Language, job.Code, tests, task.Checker)
	metrics.SandboxSlotsInUse.Dec()
	<-d.slots

	if err != nil {
		d.logger.Error("sandbox run failed", "contest", job.ContestID, "participant", job.ParticipantID, "task", job.TaskID, "err", err)
		d.finishWithError(job, types.ErrorSandboxSystemError(err.Error()))
		return
	}

	fatal := result.FatalError != ""
	verdict := string(result.OverallVerdict())
	passed := result.Passed()
	total := len(tests)
	now := d.now()

	metrics.VerdictsTotal.WithLabelValues(verdict).Inc()

	if _, err := d.manager.ApplyResult(job.ContestID, job.ParticipantID, job.TaskID, verdict, passed, total, fatal, now); err != nil {
		d.logger.Error("apply result failed", "contest", job.ContestID, "participant", job.ParticipantID, "err", err)
	}
	if err := d.manager.PersistParticipant(job.ContestID, job.ParticipantID); err != nil {
		d.logger.Error("persist participant progress failed", "contest", job.ContestID, "participant", job.ParticipantID, "err", err)
	}

	if _, err := d.store.AppendHistory(contest.HistoryRecord{
		ContestID:     job.ContestID,
		ParticipantID: job.ParticipantID,
		TaskID:        job.TaskID,
		Language:      string(job.Language),
		Verdict:       verdict,
		TestsPassed:   passed,
		TotalTests:    total,
		Timestamp:     now,
	}); err != nil {
		d.logger.Error("append history failed", "contest", job.ContestID, "participant", job.ParticipantID, "err", err)
	}
}

// finishWithError reports a terminal, non-sandbox outcome (no tests defined,
// store error) as a zero-score verdict so pending_submissions still gets
// decremented and the participant gets a result.
func (d *Dispatcher) finishWithError(job Job, rpcErr *types.RPCError) {
	now := d.now()
	verdict := rpcErr.Data.ErrorType
	if _, err := d.manager.ApplyResult(job.ContestID, job.ParticipantID, job.TaskID, verdict, 0, 1, true, now); err != nil {
		d.logger.Error("apply result (error path) failed", "contest", job.ContestID, "err", err)
	}
	if err := d.manager.PersistParticipant(job.ContestID, job.ParticipantID); err != nil {
		d.logger.Error("persist participant progress (error path) failed", "contest", job.ContestID, "err", err)
	}
}
