package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"trainflow/internal/logger"
	"trainflow/internal/metrics"
)

// Schedule holds the cron expressions of the three sweeps.
type Schedule struct {
	PreWork    string
	Attendance string
	Feedback   string
	Timeout    time.Duration
}

// Start registers the sweeps on a cron scheduler and starts it. Overlapping
// runs of the same sweep are skipped. Stop the returned scheduler on shutdown.
func (r *Runner) Start(s Schedule) (*cron.Cron, error) {
	if s.Timeout <= 0 {
		s.Timeout = 10 * time.Minute
	}
	cl := cronLogger{log: r.log}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))

	sweeps := []struct {
		name, expr string
		run        func(context.Context) (int, error)
	}{
		{SweepPreWork, s.PreWork, r.PreWorkReminders},
		{SweepAttendance, s.Attendance, r.AttendanceReminders},
		{SweepFeedback, s.Feedback, r.FeedbackReminders},
	}
	for _, sw := range sweeps {
		if sw.expr == "" {
			continue
		}
		if _, err := c.AddFunc(sw.expr, func() { r.RunOnce(sw.name, sw.run, s.Timeout) }); err != nil {
			return nil, fmt.Errorf("schedule %s sweep %q: %w", sw.name, sw.expr, err)
		}
		r.log.Info("sweep scheduled", "sweep", sw.name, "expr", sw.expr)
	}
	c.Start()
	return c, nil
}

// RunOnce executes one sweep with a timeout and records its outcome.
func (r *Runner) RunOnce(name string, run func(context.Context) (int, error), timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	n, err := run(ctx)
	if err != nil {
		metrics.SweepRuns.WithLabelValues(name, "error").Inc()
		r.log.Error("sweep failed", "sweep", name, "error", err)
		return
	}
	metrics.SweepRuns.WithLabelValues(name, "ok").Inc()
	r.log.Info("sweep finished", "sweep", name, "reminders", n, "took", time.Since(started).String())
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kv, "error", err)...)
}
