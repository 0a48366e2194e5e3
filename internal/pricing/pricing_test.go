package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instituteos.app/internal/institute"
)

func TestCalculate(t *testing.T) {
	cases := []struct {
		name     string
		modules  []string
		students int
		raw      float64
		annual   float64
	}{
		{"empty clamps to minimum", nil, 0, 1000, 2000},
		{"modules and students", []string{"ACADEMIC", "FINANCE"}, 150, 3400, 3400},
		{"case insensitive", []string{"academic", " tasks "}, 100, 2700, 2700},
		{"unknown module is free", []string{"ROBOTICS"}, 200, 3000, 3000},
		{"clamps to maximum", []string{"HR"}, 5000, 51350, 20000},
		{"negative students", nil, -10, 1000, 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Calculate(tc.modules, tc.students)
			assert.Equal(t, float64(BaseFee), c.BaseFee)
			assert.Equal(t, tc.raw, c.RawTotal)
			assert.Equal(t, tc.annual, c.AnnualFee)
		})
	}
}

func TestCalculateLargeStudentCountClampsToMaximum(t *testing.T) {
	c := Calculate(nil, 1<<62)
	assert.Greater(t, c.StudentFee, 0.0)
	assert.Equal(t, float64(MaxAnnualFee), c.AnnualFee)
}

type fakeStore struct {
	sub     *institute.Subscription
	err     error
	updated float64
}

func (f *fakeStore) FindSubscription(context.Context, string) (*institute.Subscription, error) {
	return f.sub, f.err
}

func (f *fakeStore) UpdateSubscriptionFee(_ context.Context, _ string, fee float64) error {
	f.updated = fee
	return nil
}

func TestServiceForInstitute(t *testing.T) {
	s := NewService(&fakeStore{err: institute.ErrNotFound})
	c, err := s.ForInstitute(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, float64(MinAnnualFee), c.AnnualFee)

	s = NewService(&fakeStore{err: errors.New("db down")})
	_, err = s.ForInstitute(context.Background(), "inst-1")
	assert.Error(t, err)
}

func TestServiceRefresh(t *testing.T) {
	store := &fakeStore{sub: &institute.Subscription{ActiveModules: []string{"ACADEMIC"}, StudentCount: 300}}
	c, err := NewService(store).Refresh(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, float64(4500), c.AnnualFee)
	assert.Equal(t, float64(4500), store.updated)
}
