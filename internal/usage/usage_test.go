package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFunc func(ctx context.Context, rec Record) error

func (f storeFunc) AppendUsage(ctx context.Context, rec Record) error { return f(ctx, rec) }

func TestExtractKeys(t *testing.T) {
	cases := []struct {
		path, module, feature string
	}{
		{"/api/v1/tasks/create", "TASKS", "CREATE"},
		{"/api/v1/students", "STUDENTS", "LIST"},
		{"/api/v1/students?page=2", "STUDENTS", "LIST"},
		{"/api/v1/students/:id", "STUDENTS", ":ID"},
		{"/api/v1", "UNKNOWN", "LIST"},
		{"/", "UNKNOWN", "LIST"},
		{"", "UNKNOWN", "LIST"},
		{"//api//v1//pricing//simulate", "PRICING", "SIMULATE"},
	}
	for _, tc := range cases {
		m, f := ExtractKeys(tc.path)
		assert.Equal(t, tc.module, m, tc.path)
		assert.Equal(t, tc.feature, f, tc.path)
	}
}

func TestRecorderWritesAsync(t *testing.T) {
	var (
		mu   sync.Mutex
		recs []Record
	)
	r := NewRecorder(storeFunc(func(_ context.Context, rec Record) error {
		mu.Lock()
		defer mu.Unlock()
		recs = append(recs, rec)
		return nil
	}), WithLogger(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	r.Record(ctx, "inst-1", "", "/api/v1/students")
	cancel()
	require.NoError(t, r.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, recs, 1)
	assert.Equal(t, "inst-1", recs[0].InstituteID)
	assert.Equal(t, "STUDENTS", recs[0].ModuleKey)
	assert.Equal(t, "LIST", recs[0].FeatureKey)
	assert.Empty(t, recs[0].UserID)
	assert.NotEmpty(t, recs[0].ID)
}

func TestRecorderWriteSurvivesRequestCancel(t *testing.T) {
	var gotErr error
	r := NewRecorder(storeFunc(func(ctx context.Context, _ Record) error {
		gotErr = ctx.Err()
		return nil
	}), WithLogger(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, "inst-1", "u1", "/api/v1/students")
	require.NoError(t, r.Close(context.Background()))
	assert.NoError(t, gotErr)
}

func TestRecorderSwallowsErrorsAndPanics(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	store := storeFunc(func(context.Context, Record) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return errors.New("insert failed")
		}
		panic("driver bug")
	})

	first := NewRecorder(store, WithLogger(zap.NewNop()))
	first.Record(context.Background(), "inst-1", "u1", "/api/v1/a")
	require.NoError(t, first.Close(context.Background()))

	second := NewRecorder(store, WithLogger(zap.NewNop()))
	second.Record(context.Background(), "inst-1", "u1", "/api/v1/b")
	require.NoError(t, second.Close(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestRecorderDropsAfterClose(t *testing.T) {
	called := false
	r := NewRecorder(storeFunc(func(context.Context, Record) error {
		called = true
		return nil
	}), WithLogger(zap.NewNop()))
	require.NoError(t, r.Close(context.Background()))

	r.Record(context.Background(), "inst-1", "u1", "/api/v1/students")
	require.NoError(t, r.Close(context.Background()))
	assert.False(t, called)
}

func TestRecorderDropsWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	count := 0
	r := NewRecorder(storeFunc(func(context.Context, Record) error {
		mu.Lock()
		count++
		mu.Unlock()
		started <- struct{}{}
		<-release
		return nil
	}), WithLogger(zap.NewNop()), WithMaxInFlight(1))

	r.Record(context.Background(), "inst-1", "", "/api/v1/a")
	<-started
	r.Record(context.Background(), "inst-1", "", "/api/v1/b")
	close(release)
	require.NoError(t, r.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestRecorderIgnoresMissingTenant(t *testing.T) {
	called := false
	r := NewRecorder(storeFunc(func(context.Context, Record) error {
		called = true
		return nil
	}), WithLogger(zap.NewNop()))
	r.Record(context.Background(), "", "u1", "/api/v1/students")
	require.NoError(t, r.Close(context.Background()))
	assert.False(t, called)
}

func TestRecorderCloseHonoursDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewRecorder(storeFunc(func(context.Context, Record) error {
		<-block
		return nil
	}), WithLogger(zap.NewNop()), WithTimeout(time.Minute))
	r.Record(context.Background(), "inst-1", "", "/api/v1/a")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Close(ctx), context.DeadlineExceeded)
}
