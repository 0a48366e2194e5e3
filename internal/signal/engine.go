// Package signal runs the scheduled task signals: open tasks past their
// deadline are marked overdue, and tasks due soon raise proximity alerts.
package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"instituteos.app/internal/obs"
	"instituteos.app/internal/task"
)

// Job names, also used as metric labels.
const (
	JobOverdue   = "overdue"
	JobProximity = "proximity"
)

// Store runs the cross-institute task queries behind the signals.
type Store interface {
	// MarkOverdueTasks moves open tasks whose deadline is before now to OVERDUE.
	MarkOverdueTasks(ctx context.Context, now time.Time) (int, error)
	// TasksDueBetween returns open tasks with a deadline in [from, to].
	TasksDueBetween(ctx context.Context, from, to time.Time) ([]task.Task, error)
}

// Alert is raised for a task whose deadline is near.
type Alert struct {
	InstituteID  string    `json:"instituteId"`
	TaskID       string    `json:"taskId"`
	Title        string    `json:"title"`
	AssignedToID string    `json:"assignedToId"`
	Deadline     time.Time `json:"deadline"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, a Alert) error

func (f NotifierFunc) Notify(ctx context.Context, a Alert) error { return f(ctx, a) }

// Scheduler runs registered jobs on cron specs. *cron.Cron satisfies it.
type Scheduler interface {
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
	Start()
	Stop() context.Context
}

// NewScheduler returns the cron scheduler used in production, in UTC.
func NewScheduler() *cron.Cron {
	return cron.New(cron.WithLocation(time.UTC))
}

// Engine evaluates signals over a Store.
type Engine struct {
	store    Store
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time

	window        time.Duration
	timeout       time.Duration
	overdueSpec   string
	proximitySpec string
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier replaces the default log notifier.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWindow sets how far ahead proximity alerts look.
func WithWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithJobTimeout bounds each scheduled run.
func WithJobTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSchedules sets the cron specs of the overdue and proximity jobs.
func WithSchedules(overdue, proximity string) Option {
	return func(e *Engine) {
		if overdue != "" {
			e.overdueSpec = overdue
		}
		if proximity != "" {
			e.proximitySpec = proximity
		}
	}
}

// NewEngine builds an engine; both jobs default to hourly with a 24h window.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		log:           obs.Logger(),
		now:           time.Now,
		window:        24 * time.Hour,
		timeout:       time.Minute,
		overdueSpec:   "@hourly",
		proximitySpec: "@hourly",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.notifier == nil {
		e.notifier = logNotifier{log: e.log}
	}
	return e
}

// MarkOverdue marks open tasks past their deadline as overdue.
func (e *Engine) MarkOverdue(ctx context.Context) (int, error) {
	n, err := e.store.MarkOverdueTasks(ctx, e.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("signal: mark overdue: %w", err)
	}
	e.log.Info("overdue detection complete", zap.Int("marked", n))
	return n, nil
}

// ProximityAlerts notifies about open tasks due within the window. Delivery
// failures are logged and do not stop the remaining alerts.
func (e *Engine) ProximityAlerts(ctx context.Context) ([]Alert, error) {
	now := e.now().UTC()
	due, err := e.store.TasksDueBetween(ctx, now, now.Add(e.window))
	if err != nil {
		return nil, fmt.Errorf("signal: due tasks: %w", err)
	}
	alerts := make([]Alert, 0, len(due))
	for _, t := range due {
		if t.Deadline == nil {
			continue
		}
		a := Alert{
			InstituteID:  t.InstituteID,
			TaskID:       t.ID,
			Title:        t.Title,
			AssignedToID: t.AssignedToID,
			Deadline:     *t.Deadline,
		}
		if err := e.notifier.Notify(ctx, a); err != nil {
			e.log.Warn("proximity alert not delivered", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		obs.SignalAlerts.Inc()
		alerts = append(alerts, a)
	}
	e.log.Info("proximity check complete", zap.Int("alerts", len(alerts)))
	return alerts, nil
}

// Schedule registers both jobs on s.
func (e *Engine) Schedule(s Scheduler) error {
	if _, err := s.AddFunc(e.overdueSpec, e.job(JobOverdue, func(ctx context.Context) error {
		_, err := e.MarkOverdue(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("signal: schedule %s: %w", JobOverdue, err)
	}
	if _, err := s.AddFunc(e.proximitySpec, e.job(JobProximity, func(ctx context.Context) error {
		_, err := e.ProximityAlerts(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("signal: schedule %s: %w", JobProximity, err)
	}
	return nil
}

// Run schedules the jobs on s and blocks until ctx is done, then waits for
// running jobs to finish.
func (e *Engine) Run(ctx context.Context, s Scheduler) error {
	if err := e.Schedule(s); err != nil {
		return err
	}
	s.Start()
	e.log.Info("signal engine started", zap.String("overdue", e.overdueSpec), zap.String("proximity", e.proximitySpec))
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

func (e *Engine) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := run(ctx); err != nil {
			obs.SignalRuns.WithLabelValues(name, "error").Inc()
			e.log.Error("signal job failed", zap.String("job", name), zap.Error(err))
			return
		}
		obs.SignalRuns.WithLabelValues(name, "ok").Inc()
	}
}

type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Notify(_ context.Context, a Alert) error {
	n.log.Warn("task due soon",
		zap.String("institute_id", a.InstituteID),
		zap.String("task_id", a.TaskID),
		zap.String("title", a.Title),
		zap.String("assigned_to", a.AssignedToID),
		zap.Time("deadline", a.Deadline))
	return nil
}
