package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dictate/log"
	"dictate/metrics"
)

type Config struct {
	// LaunchWait bounds how long to wait for a launched target to run.
	LaunchWait   time.Duration
	PollInterval time.Duration
	// FocusSettle is the pause after activation before inserting.
	FocusSettle time.Duration
	Attempts    int
	Backoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		LaunchWait:   5 * time.Second,
		PollInterval: 100 * time.Millisecond,
		FocusSettle:  150 * time.Millisecond,
		Attempts:     3,
		Backoff:      100 * time.Millisecond,
	}
}

// Coordinator delivers one request at a time. Deliver and Undo serialize
// on an internal lock; the focused application captured at the start of a
// call is the only focus state it keeps.
type Coordinator struct {
	ins     Inserter
	cfg     Config
	metrics *metrics.Metrics
	logger  zerolog.Logger
	mu      sync.Mutex
}

func NewCoordinator(ins Inserter, cfg Config, m *metrics.Metrics) *Coordinator {
	d := DefaultConfig()
	if cfg.LaunchWait <= 0 {
		cfg.LaunchWait = d.LaunchWait
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = d.PollInterval
	}
	if cfg.FocusSettle < 0 {
		cfg.FocusSettle = 0
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = d.Attempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = d.Backoff
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Coordinator{ins: ins, cfg: cfg, metrics: m, logger: log.Component("delivery")}
}

func (c *Coordinator) Deliver(ctx context.Context, req Request) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	rep := c.deliver(ctx, req)
	rep.Duration = time.Since(start)
	c.record(req.Target, "deliver", rep)
	return rep
}

func (c *Coordinator) deliver(ctx context.Context, req Request) Report {
	payload := req.Payload()
	if payload == "" {
		return Report{Outcome: Success}
	}
	// Inserts that may have sent keystrokes fail with ErrPartial, which
	// retry does not repeat.
	insert := func() error { return c.ins.Insert(ctx, payload) }

	if req.Target == "" {
		n, err := retry(ctx, c.cfg.Attempts, c.cfg.Backoff, insert)
		if err != nil {
			return Report{Outcome: InsertFailed, Err: err, Attempts: n}
		}
		return Report{Outcome: Success, Attempts: n}
	}

	prev := c.focused(ctx)
	if rep, ok := c.focusTarget(ctx, req.Target); !ok {
		return rep
	}

	n, err := retry(ctx, c.cfg.Attempts, c.cfg.Backoff, insert)
	if err != nil {
		return Report{Outcome: InsertFailed, Err: fmt.Errorf("insert: %w", err), Attempts: n}
	}
	return c.restore(ctx, prev, req.Target, Report{Outcome: Success, Attempts: n})
}

// Undo focuses target (the focused application when empty), sends n undo
// keystrokes and restores focus.
func (c *Coordinator) Undo(ctx context.Context, target string, n int) Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	rep := c.undo(ctx, target, n)
	rep.Duration = time.Since(start)
	c.record(target, "undo", rep)
	return rep
}

func (c *Coordinator) undo(ctx context.Context, target string, n int) Report {
	if n <= 0 {
		return Report{Outcome: Success}
	}
	if target == "" {
		if err := c.ins.Undo(ctx, n); err != nil {
			return Report{Outcome: InsertFailed, Err: err, Attempts: 1}
		}
		return Report{Outcome: Success, Attempts: 1}
	}

	prev := c.focused(ctx)
	running, err := c.ins.IsRunning(ctx, target)
	if err != nil || !running {
		if err == nil {
			err = fmt.Errorf("%s: %w", target, ErrNotFound)
		}
		return Report{Outcome: TargetNotFound, Err: err}
	}
	if rep, ok := c.activate(ctx, target); !ok {
		return rep
	}
	// Undo is not retried: a partial failure would undo twice.
	if err := c.ins.Undo(ctx, n); err != nil {
		return Report{Outcome: InsertFailed, Err: fmt.Errorf("undo: %w", err), Attempts: 1}
	}
	return c.restore(ctx, prev, target, Report{Outcome: Success, Attempts: 1})
}

func (c *Coordinator) focused(ctx context.Context) string {
	prev, err := c.ins.Focused(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("focused app unknown; focus will not be restored")
		return ""
	}
	return prev
}

// focusTarget launches target if needed and brings it to the foreground.
func (c *Coordinator) focusTarget(ctx context.Context, target string) (Report, bool) {
	running, err := c.ins.IsRunning(ctx, target)
	if err != nil {
		c.logger.Debug().Err(err).Str("target", target).Msg("running check failed; launching")
	}
	if !running {
		if rep, ok := c.launch(ctx, target); !ok {
			return rep, false
		}
	}
	return c.activate(ctx, target)
}

func (c *Coordinator) launch(ctx context.Context, target string) (Report, bool) {
	if err := c.ins.Launch(ctx, target); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Report{Outcome: TargetNotFound, Err: err}, false
		}
		return Report{Outcome: LaunchFailed, Err: err}, false
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.LaunchWait)
	defer cancel()
	for {
		if ok, err := c.ins.IsRunning(waitCtx, target); err == nil && ok {
			return Report{}, true
		}
		if err := sleep(waitCtx, c.cfg.PollInterval); err != nil {
			return Report{
				Outcome: LaunchFailed,
				Err:     fmt.Errorf("%s did not start within %s", target, c.cfg.LaunchWait),
			}, false
		}
	}
}

func (c *Coordinator) activate(ctx context.Context, target string) (Report, bool) {
	n, err := retry(ctx, c.cfg.Attempts, c.cfg.Backoff, func() error {
		return c.ins.Activate(ctx, target)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Report{Outcome: TargetNotFound, Err: err, Attempts: n}, false
		}
		return Report{Outcome: InsertFailed, Err: fmt.Errorf("activate %s: %w", target, err), Attempts: n}, false
	}
	if err := sleep(ctx, c.cfg.FocusSettle); err != nil {
		return Report{Outcome: InsertFailed, Err: err, Attempts: n}, false
	}
	return Report{}, true
}

func (c *Coordinator) restore(ctx context.Context, prev, target string, rep Report) Report {
	if prev == "" || prev == target {
		return rep
	}
	if _, err := retry(ctx, 2, c.cfg.Backoff, func() error { return c.ins.Restore(ctx, prev) }); err != nil {
		rep.Outcome = FocusRestoreFailed
		rep.Err = fmt.Errorf("restore focus to %s: %w", prev, err)
	}
	return rep
}

func (c *Coordinator) record(target, op string, rep Report) {
	c.metrics.Deliveries.WithLabelValues(rep.Outcome.String()).Inc()
	c.metrics.DeliveryDuration.Observe(rep.Duration.Seconds())
	log.Delivery(target, rep.Outcome.String(), rep.Attempts, rep.Duration)
	if rep.Err != nil {
		c.logger.Warn().Err(rep.Err).Str("op", op).Str("target", target).Str("outcome", rep.Outcome.String()).Msg("delivery problem")
	}
}
