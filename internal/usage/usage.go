// Package usage records best-effort feature usage telemetry per institute.
package usage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"instituteos.app/internal/ids"
	"instituteos.app/internal/obs"
)

// Default label values when the path is too short.
const (
	UnknownModule  = "UNKNOWN"
	DefaultFeature = "LIST"
)

// Record is one usage row. UserID is empty for anonymous calls.
type Record struct {
	ID          string
	InstituteID string
	ModuleKey   string
	FeatureKey  string
	UserID      string
	CreatedAt   time.Time
}

// Store appends usage rows.
type Store interface {
	AppendUsage(ctx context.Context, rec Record) error
}

// ExtractKeys derives module and feature labels from /api/v1/<module>/<feature>.
func ExtractKeys(path string) (module, feature string) {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	module, feature = UnknownModule, DefaultFeature
	if len(segments) > 2 {
		module = strings.ToUpper(segments[2])
	}
	if len(segments) > 3 {
		feature = strings.ToUpper(segments[3])
	}
	return module, feature
}

// Recorder writes usage asynchronously with bounded concurrency. Writes never
// block the caller; when the limit is reached records are dropped.
type Recorder struct {
	store   Store
	sem     *semaphore.Weighted
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithMaxInFlight bounds concurrent writes.
func WithMaxInFlight(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout bounds each write.
func WithTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder builds a recorder over store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		sem:     semaphore.NewWeighted(64),
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     obs.Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record schedules a usage write for a completed request. It returns
// immediately; the write outlives ctx cancellation but not the timeout.
func (r *Recorder) Record(ctx context.Context, instituteID, userID, path string) {
	if r == nil || r.store == nil || instituteID == "" {
		return
	}
	module, feature := ExtractKeys(path)
	now := r.now().UTC()
	rec := Record{
		ID:          ids.NewAt(now),
		InstituteID: instituteID,
		ModuleKey:   module,
		FeatureKey:  feature,
		UserID:      userID,
		CreatedAt:   now,
	}
	r.mu.Lock()
	if r.closed || !r.sem.TryAcquire(1) {
		r.mu.Unlock()
		obs.UsageRecords.WithLabelValues("dropped").Inc()
		r.log.Debug("usage record dropped", zap.String("institute_id", instituteID), zap.String("module", module))
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		if err := r.write(wctx, rec); err != nil {
			obs.UsageRecords.WithLabelValues("error").Inc()
			r.log.Debug("usage record failed",
				zap.String("institute_id", rec.InstituteID),
				zap.String("module", rec.ModuleKey),
				zap.String("feature", rec.FeatureKey),
				zap.Error(err))
			return
		}
		obs.UsageRecords.WithLabelValues("ok").Inc()
	}()
}

func (r *Recorder) write(ctx context.Context, rec Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.store.AppendUsage(ctx, rec)
}

// Close stops accepting records and waits for in-flight writes or until ctx
// is done.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
