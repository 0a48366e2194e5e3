package institute

import (
	"errors"
	"time"

	"instituteos.app/internal/auth"
)

var (
	ErrNotFound     = errors.New("institute: not found")
	ErrDomainTaken  = errors.New("institute: domain already in use")
	ErrInvalidInput = errors.New("institute: invalid input")
)

// Tiers.
const (
	TierTrial   = "TRIAL"
	TierBasic   = "BASIC"
	TierPremium = "PREMIUM"
)

// Institute is a tenant.
type Institute struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	Tier           string    `json:"tier"`
	TrialStartDate time.Time `json:"trialStartDate"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Subscription holds commercial state. At most one per institute.
type Subscription struct {
	ID            string    `json:"id"`
	InstituteID   string    `json:"instituteId"`
	ActiveModules []string  `json:"activeModules"`
	StudentCount  int       `json:"studentCount"`
	AnnualFee     float64   `json:"annualFee"`
	IsPaid        bool      `json:"isPaid"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RoiStats tracks the value delivered to an institute.
type RoiStats struct {
	InstituteID           string    `json:"instituteId"`
	TotalTimeSavedMinutes int       `json:"totalTimeSavedMinutes"`
	MoneySaved            float64   `json:"moneySaved"`
	LastCalculatedAt      time.Time `json:"lastCalculatedAt"`
}

// Summary is a listing row with aggregate counts.
type Summary struct {
	Institute
	UserCount    int `json:"userCount"`
	StudentCount int `json:"studentCount"`
}

// Provisioning is everything written when an institute is created.
// Stores persist it in a single transaction.
type Provisioning struct {
	Institute    Institute
	Roles        []auth.Role
	Admin        auth.User
	AdminRoleID  string
	Subscription Subscription
	RoiStats     RoiStats
}
