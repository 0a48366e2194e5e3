// Package pricing computes annual subscription fees.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"instituteos.app/internal/institute"
)

// Fee schedule.
const (
	BaseFee       = 1000
	PerStudentFee = 10
	MinAnnualFee  = 2000
	MaxAnnualFee  = 20000
)

// ModuleFees lists the yearly price of each module. Unknown modules are free.
var ModuleFees = map[string]float64{
	"ACADEMIC":      500,
	"FINANCE":       400,
	"TASKS":         200,
	"ATTENDANCE":    300,
	"COMMUNICATION": 250,
	"HR":            350,
}

// Calculation is an itemised fee.
type Calculation struct {
	BaseFee    float64 `json:"baseFee"`
	ModuleFees float64 `json:"moduleFees"`
	StudentFee float64 `json:"studentFee"`
	RawTotal   float64 `json:"rawTotal"`
	AnnualFee  float64 `json:"annualFee"`
}

// Calculate applies annual = clamp(base + modules + students*10, min, max).
func Calculate(activeModules []string, studentCount int) Calculation {
	if studentCount < 0 {
		studentCount = 0
	}
	var modules float64
	for _, m := range activeModules {
		modules += ModuleFees[strings.ToUpper(strings.TrimSpace(m))]
	}
	c := Calculation{
		BaseFee:    BaseFee,
		ModuleFees: modules,
		StudentFee: float64(studentCount) * PerStudentFee,
	}
	c.RawTotal = c.BaseFee + c.ModuleFees + c.StudentFee
	c.AnnualFee = max(MinAnnualFee, min(MaxAnnualFee, c.RawTotal))
	return c
}

// Store reads and updates subscriptions.
type Store interface {
	FindSubscription(ctx context.Context, instituteID string) (*institute.Subscription, error)
	UpdateSubscriptionFee(ctx context.Context, instituteID string, annualFee float64) error
}

// Service prices institutes from their subscription.
type Service struct {
	store Store
}

// NewService constructs Service.
func NewService(store Store) *Service { return &Service{store: store} }

// ForInstitute prices the institute's subscription; without one it prices an
// empty subscription.
func (s *Service) ForInstitute(ctx context.Context, instituteID string) (Calculation, error) {
	sub, err := s.store.FindSubscription(ctx, instituteID)
	if errors.Is(err, institute.ErrNotFound) {
		return Calculate(nil, 0), nil
	}
	if err != nil {
		return Calculation{}, fmt.Errorf("load subscription: %w", err)
	}
	return Calculate(sub.ActiveModules, sub.StudentCount), nil
}

// Refresh recomputes and stores the subscription's annual fee.
func (s *Service) Refresh(ctx context.Context, instituteID string) (Calculation, error) {
	c, err := s.ForInstitute(ctx, instituteID)
	if err != nil {
		return Calculation{}, err
	}
	if err := s.store.UpdateSubscriptionFee(ctx, instituteID, c.AnnualFee); err != nil {
		return Calculation{}, fmt.Errorf("update subscription fee: %w", err)
	}
	return c, nil
}
