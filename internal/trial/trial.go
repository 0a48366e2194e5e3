// Package trial gates write operations of institutes whose free trial has run out.
package trial

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"instituteos.app/internal/obs"
	"instituteos.app/internal/tenancy"
)

// DefaultWindow is the length of the free trial.
const DefaultWindow = 60 * 24 * time.Hour

// Wire values of the expiry rejection.
const (
	ErrorCode     = "TRIAL_EXPIRED"
	ActionUpgrade = "UPGRADE_REQUIRED"
)

// ErrNotFound is returned by loaders when the institute does not exist.
var ErrNotFound = errors.New("trial: institute not found")

// State is the trial-relevant view of an institute.
type State struct {
	TrialStart      time.Time
	HasSubscription bool
	Paid            bool
}

// Loader reads trial state for an institute.
type Loader interface {
	TrialState(ctx context.Context, instituteID string) (State, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, instituteID string) (State, error)

func (f LoaderFunc) TrialState(ctx context.Context, instituteID string) (State, error) {
	return f(ctx, instituteID)
}

// ExpiredError rejects a write from an unpaid institute past its trial.
type ExpiredError struct {
	Days       int // whole days since the trial started
	WindowDays int
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("trial expired after %d days", e.Days)
}

// Message is the user-facing explanation.
func (e *ExpiredError) Message() string {
	return fmt.Sprintf("Your %d-day trial has expired. Please upgrade to continue using write operations.", e.WindowDays)
}

// Response is the JSON body sent with a 403 rejection.
type Response struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	TrialDays int    `json:"trialDays"`
	Action    string `json:"action"`
}

// Response renders the rejection body.
func (e *ExpiredError) Response() Response {
	return Response{Error: ErrorCode, Message: e.Message(), TrialDays: e.Days, Action: ActionUpgrade}
}

// IsMutating reports whether method is subject to the gate.
func IsMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Gate decides whether a write may proceed.
type Gate struct {
	loader Loader
	window time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithWindow overrides the trial length.
func WithWindow(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGate builds a gate reading state through loader.
func NewGate(loader Loader, opts ...Option) *Gate {
	g := &Gate{loader: loader, window: DefaultWindow, now: time.Now, log: obs.Logger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check returns nil when the request may proceed, *ExpiredError when the trial is
// over, or a wrapped storage error. Reads, requests without a tenant and unknown
// institutes always pass.
func (g *Gate) Check(ctx context.Context, instituteID, method string) error {
	if !IsMutating(method) {
		return nil
	}
	if instituteID == "" || instituteID == tenancy.PlatformSentinel {
		return nil
	}
	state, err := g.loader.TrialState(ctx, instituteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load trial state: %w", err)
	}
	if !state.HasSubscription || state.Paid {
		return nil
	}
	elapsed := g.now().Sub(state.TrialStart)
	if elapsed <= g.window {
		return nil
	}
	days := int(elapsed / (24 * time.Hour))
	obs.TrialRejections.Inc()
	g.log.Info("trial expired write rejected",
		zap.String("institute_id", instituteID),
		zap.Int("trial_days", days))
	return &ExpiredError{Days: days, WindowDays: int(g.window / (24 * time.Hour))}
}
