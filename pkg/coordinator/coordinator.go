// Package coordinator is the façade managers and workers use to drive a
// session: it composes the state, trigger and lock stores with the ordering
// the worker lifecycle requires.
//
// Worker lifecycle:
//
//	ready --Assign--> working --SignalDone--> complete | error
//	any   --Reset---> ready
//
// Every operation is a single attempt. Errors carry a protocol kind (see
// protocol.KindOf); the coordinator never retries.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hive/pkg/catalog"
	"hive/pkg/eventlog"
	"hive/pkg/fsroot"
	"hive/pkg/lock"
	"hive/pkg/protocol"
	"hive/pkg/session"
	"hive/pkg/state"
	"hive/pkg/trigger"
)

// Coordinator operates on one session.
type Coordinator struct {
	sess     *session.Session
	root     *fsroot.Root
	states   *state.Store
	triggers *trigger.Store
	locks    *lock.Store
	catalog  *catalog.Catalog
	journal  Journal
	logger   *zap.Logger
	poll     time.Duration
}

// New builds a Coordinator over sess.
func New(sess *session.Session, opts ...Option) (*Coordinator, error) {
	if sess == nil || sess.Dir == "" {
		return nil, errors.New("coordinator: session is required")
	}
	if sess.Workers < 1 {
		return nil, fmt.Errorf("coordinator: session %s has %d workers", sess.Name, sess.Workers)
	}
	root := sess.Root()
	c := &Coordinator{
		sess:     sess,
		root:     root,
		states:   state.New(root),
		triggers: trigger.New(root, sess.Workers),
		locks:    lock.New(root),
		logger:   zap.NewNop(),
		poll:     trigger.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("session", sess.Name))
	return c, nil
}

// Session returns the session the coordinator operates on.
func (c *Coordinator) Session() *session.Session {
	return c.sess
}

// Outcome is what a worker reports when it finishes a task.
type Outcome struct {
	Failed bool
	Branch string
	Files  []string
	Result string
	Error  string
	// Cycle is the generation the task was assigned in. Zero skips the
	// staleness check.
	Cycle int64
}

// DoneReport is the result of SignalDone.
type DoneReport struct {
	AllDone bool
	Cycle   int64
}

func (c *Coordinator) checkWorker(id int) error {
	if id < 0 || id >= c.sess.Workers {
		return &protocol.NotFoundError{Kind: "worker", Name: strconv.Itoa(id)}
	}
	return nil
}

// exclusive runs fn holding the session lock. Operations that read and then
// write the cycle counter go through here.
func (c *Coordinator) exclusive(fn func() error) error {
	h, err := c.root.AcquireExclusive(protocol.SessionLockFile, fsroot.Block)
	if err != nil {
		return fmt.Errorf("acquire session lock: %w", err)
	}
	defer func() { _ = h.Release() }()
	return fn()
}

// Assign hands task to worker id: its state is replaced with status working,
// the task text and the current cycle, which is never 0. Assigning to a worker that is already
// working overwrites its previous assignment.
func (c *Coordinator) Assign(ctx context.Context, id int, task string) error {
	if err := c.checkWorker(id); err != nil {
		return err
	}
	var cycle int64
	err := c.exclusive(func() error {
		var err error
		if cycle, err = c.states.Cycle(); err != nil {
			return err
		}
		if cycle == 0 {
			// The first assignment of a session opens cycle 1, so its
			// workers are told apart from those of later cycles.
			if cycle, err = c.states.NextCycle(); err != nil {
				return err
			}
		}
		return c.states.Replace(id,
			state.WithStatus(protocol.StatusWorking),
			state.WithAssignment(task),
			state.WithCycle(cycle),
		)
	})
	if err != nil {
		return fmt.Errorf("assign worker %d: %w", id, err)
	}

	c.logger.Debug("assigned task", zap.Int("worker", id), zap.Int64("cycle", cycle))
	c.record(ctx, protocol.EventAssign, "manager", &id, "", map[string]any{"task": task, "cycle": cycle})
	return nil
}

// Broadcast assigns task to every worker in index order. It is not atomic: a
// failure for one worker does not stop the others, and all failures are
// returned joined.
func (c *Coordinator) Broadcast(ctx context.Context, task string) error {
	var errs []error
	for id := 0; id < c.sess.Workers; id++ {
		if err := c.Assign(ctx, id, task); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignalDone records the end of worker id's task and fires its done
// trigger, then all-done if every worker has finished. A failed task still
// counts as done. A non-zero Outcome.Cycle that does not match the current
// cycle is rejected with a StaleCycleError and nothing is written.
func (c *Coordinator) SignalDone(ctx context.Context, id int, o Outcome) (DoneReport, error) {
	if err := c.checkWorker(id); err != nil {
		return DoneReport{}, err
	}

	status := protocol.StatusComplete
	fields := []state.Field{}
	if o.Failed {
		status = protocol.StatusError
		fields = append(fields, state.WithError(o.Error))
	}
	fields = append(fields, state.WithStatus(status))
	if o.Branch != "" {
		fields = append(fields, state.WithBranch(o.Branch))
	}
	if o.Files != nil {
		fields = append(fields, state.WithFiles(o.Files))
	}
	if o.Result != "" {
		fields = append(fields, state.WithResult(o.Result))
	}

	var report DoneReport
	err := c.exclusive(func() error {
		current, err := c.states.Cycle()
		if err != nil {
			return err
		}
		if o.Cycle != 0 && o.Cycle != current {
			return &protocol.StaleCycleError{WorkerID: id, Cycle: o.Cycle, Current: current}
		}
		report.Cycle = current

		if err := c.states.Merge(id, fields...); err != nil {
			var corrupt *protocol.CorruptStateError
			if !errors.As(err, &corrupt) {
				return err
			}
			// The worker is done regardless of what the old document said.
			c.logger.Warn("replacing corrupt worker state", zap.Int("worker", id), zap.Error(err))
			if err := c.states.Replace(id, append(fields, state.WithCycle(current))...); err != nil {
				return err
			}
		}
		if o.Result != "" {
			if err := c.states.WriteResult(id, o.Result); err != nil {
				return err
			}
		}
		report.AllDone, err = c.triggers.FireWorkerDone(id)
		return err
	})
	if err != nil {
		return DoneReport{}, fmt.Errorf("signal done for worker %d: %w", id, err)
	}

	c.logger.Debug("worker done",
		zap.Int("worker", id),
		zap.String("status", string(status)),
		zap.Bool("all_done", report.AllDone),
	)
	c.record(ctx, protocol.EventDone, workerSource(id), &id, string(status), map[string]any{
		"branch":   o.Branch,
		"files":    o.Files,
		"error":    o.Error,
		"all_done": report.AllDone,
	})
	if report.AllDone {
		c.record(ctx, protocol.EventFire, workerSource(id), nil, protocol.AllDoneTrigger, nil)
	}
	return report, nil
}

// Await blocks until the named trigger fires, timeout elapses (a
// TimeoutError) or ctx is done. Use trigger.NoTimeout to wait without bound.
func (c *Coordinator) Await(ctx context.Context, name string, timeout time.Duration) error {
	c.logger.Debug("awaiting trigger", zap.String("trigger", name), zap.Duration("timeout", timeout))
	return c.triggers.Await(ctx, name, timeout, c.poll)
}

// AwaitAll waits for the all-done trigger.
func (c *Coordinator) AwaitAll(ctx context.Context, timeout time.Duration) error {
	return c.Await(ctx, protocol.AllDoneTrigger, timeout)
}

// Fire fires a named trigger. Firing twice is a no-op.
func (c *Coordinator) Fire(ctx context.Context, name string) error {
	if err := c.triggers.Fire(name); err != nil {
		return fmt.Errorf("fire %s: %w", name, err)
	}
	c.logger.Debug("fired trigger", zap.String("trigger", name))
	c.record(ctx, protocol.EventFire, "manager", nil, name, nil)
	return nil
}

// Check reports whether a trigger has fired.
func (c *Coordinator) Check(name string) (bool, error) {
	return c.triggers.Check(name)
}

// ClearTrigger removes a single trigger.
func (c *Coordinator) ClearTrigger(name string) (bool, error) {
	return c.triggers.Clear(name)
}

// Triggers lists every fired trigger.
func (c *Coordinator) Triggers() ([]string, error) {
	return c.triggers.List()
}

// State returns worker id's current state.
func (c *Coordinator) State(id int) (protocol.WorkerState, error) {
	if err := c.checkWorker(id); err != nil {
		return protocol.WorkerState{}, err
	}
	return c.states.Worker(id)
}

// States returns a snapshot of every worker. A corrupt document only
// affects its own entry.
func (c *Coordinator) States() []state.Snapshot {
	return c.states.Workers(c.sess.Workers)
}

// Result returns the result text worker id last reported.
func (c *Coordinator) Result(id int) (string, bool, error) {
	if err := c.checkWorker(id); err != nil {
		return "", false, err
	}
	return c.states.Result(id)
}

// AcquireLocks claims resources for worker id, all or nothing. On conflict
// the returned error is a *protocol.ConflictError naming the holder.
func (c *Coordinator) AcquireLocks(ctx context.Context, id int, resources []string) error {
	if err := c.checkWorker(id); err != nil {
		return err
	}
	err := c.locks.Acquire(id, resources)
	var conflict *protocol.ConflictError
	switch {
	case errors.As(err, &conflict):
		c.logger.Debug("lock conflict",
			zap.Int("worker", id),
			zap.Int("holder", conflict.Holder),
			zap.String("resource", conflict.Resource),
		)
		c.record(ctx, protocol.EventConflict, workerSource(id), &id, conflict.Resource, map[string]any{
			"holder":    conflict.Holder,
			"requested": resources,
		})
		return err
	case err != nil:
		return fmt.Errorf("acquire locks for worker %d: %w", id, err)
	}

	c.logger.Debug("locks acquired", zap.Int("worker", id), zap.Strings("resources", resources))
	c.record(ctx, protocol.EventLock, workerSource(id), &id, "", map[string]any{"resources": resources})
	return nil
}

// ReleaseLocks drops every claim of worker id.
func (c *Coordinator) ReleaseLocks(ctx context.Context, id int) (bool, error) {
	if err := c.checkWorker(id); err != nil {
		return false, err
	}
	released, err := c.locks.Release(id)
	if err != nil {
		return false, fmt.Errorf("release locks for worker %d: %w", id, err)
	}
	if released {
		c.logger.Debug("locks released", zap.Int("worker", id))
		c.record(ctx, protocol.EventUnlock, workerSource(id), &id, "", nil)
	}
	return released, nil
}

// Locks returns every worker's claims.
func (c *Coordinator) Locks() (map[int][]string, error) {
	return c.locks.All()
}

// SetProtocol points the session at a protocol document. With a catalog
// configured the name must exist in it.
func (c *Coordinator) SetProtocol(ctx context.Context, name string) error {
	if c.catalog != nil {
		ok, err := c.catalog.Exists(name)
		if err != nil {
			return err
		}
		if !ok {
			return &protocol.NotFoundError{Kind: "protocol", Name: name}
		}
	}
	if err := protocol.ValidateName("protocol", name); err != nil {
		return err
	}
	if err := c.states.SetScalar(protocol.ScalarProtocol, name); err != nil {
		return fmt.Errorf("set protocol: %w", err)
	}
	c.logger.Debug("protocol set", zap.String("protocol", name))
	c.record(ctx, protocol.EventProtocol, "manager", nil, name, nil)
	return nil
}

// Protocol returns the active protocol name, if set.
func (c *Coordinator) Protocol() (string, bool, error) {
	return c.states.Scalar(protocol.ScalarProtocol)
}

// SetPhase records a free-form phase label.
func (c *Coordinator) SetPhase(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "\n\r") {
		return &protocol.InvalidNameError{Kind: "phase", Name: name, Reason: "must be a non-empty single line"}
	}
	if err := c.states.SetScalar(protocol.ScalarPhase, name); err != nil {
		return fmt.Errorf("set phase: %w", err)
	}
	c.logger.Debug("phase set", zap.String("phase", name))
	c.record(ctx, protocol.EventPhase, "manager", nil, name, nil)
	return nil
}

// Phase returns the current phase, if set.
func (c *Coordinator) Phase() (string, bool, error) {
	return c.states.Scalar(protocol.ScalarPhase)
}

// Reset starts a new cycle: the cycle counter is bumped first, so a worker
// still holding the old cycle is recognised as stale, then all worker
// states, the protocol and phase pointers, triggers and locks are cleared.
// Result blobs are kept until overwritten.
func (c *Coordinator) Reset(ctx context.Context) (int64, error) {
	var cycle int64
	err := c.exclusive(func() error {
		var err error
		if cycle, err = c.states.NextCycle(); err != nil {
			return err
		}
		return errors.Join(
			c.states.ClearAll(),
			c.triggers.ClearAll(),
			c.locks.ClearAll(),
		)
	})
	if err != nil {
		return 0, fmt.Errorf("reset session %s: %w", c.sess.Name, err)
	}

	c.logger.Debug("session reset", zap.Int64("cycle", cycle))
	c.record(ctx, protocol.EventReset, "manager", nil, "", map[string]any{"cycle": cycle})
	return cycle, nil
}

// Cycle returns the current generation number.
func (c *Coordinator) Cycle() (int64, error) {
	return c.states.Cycle()
}

func workerSource(id int) string {
	return "worker-" + strconv.Itoa(id)
}

// record appends an event to the journal. Journal failures are logged and
// never fail the coordination operation.
func (c *Coordinator) record(ctx context.Context, typ protocol.EventType, source string, workerID *int, subject string, payload map[string]any) {
	if c.journal == nil {
		return
	}
	var body string
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.logger.Warn("encode journal payload", zap.String("type", string(typ)), zap.Error(err))
		}
		body = string(data)
	}
	e := eventlog.Event{Type: typ, Source: source, WorkerID: workerID, Subject: subject, Payload: body}
	if err := c.journal.Record(ctx, e); err != nil {
		c.logger.Warn("journal record failed", zap.String("type", string(typ)), zap.Error(err))
	}
}
