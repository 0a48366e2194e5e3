// Package student keeps the tenant-scoped student roster.
package student

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"instituteos.app/internal/ids"
)

var (
	ErrInvalidInput = errors.New("student: invalid input")
	ErrConflict     = errors.New("student: admission number already in use")
)

// Student is enrolled in exactly one institute.
type Student struct {
	ID              string    `json:"id"`
	InstituteID     string    `json:"instituteId"`
	Name            string    `json:"studentName"`
	AdmissionNumber string    `json:"admissionNumber"`
	ClassName       string    `json:"className,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Store persists students. CreateStudent returns ErrConflict for a duplicate
// admission number within the institute.
type Store interface {
	CreateStudent(ctx context.Context, s *Student) error
	ListStudents(ctx context.Context, instituteID string) ([]Student, error)
}

// Service lists and enrolls students of one institute at a time.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs Service.
func NewService(store Store) *Service { return &Service{store: store, now: time.Now} }

// List returns the institute's students ordered by name.
func (s *Service) List(ctx context.Context, instituteID string) ([]Student, error) {
	return s.store.ListStudents(ctx, instituteID)
}

// CreateInput is a new enrollment.
type CreateInput struct {
	Name            string `json:"studentName"`
	AdmissionNumber string `json:"admissionNumber"`
	ClassName       string `json:"className"`
}

// Create enrolls a student in instituteID, which must come from the request's
// tenancy context.
func (s *Service) Create(ctx context.Context, instituteID string, in CreateInput) (*Student, error) {
	name := strings.TrimSpace(in.Name)
	adm := strings.TrimSpace(in.AdmissionNumber)
	if name == "" || adm == "" {
		return nil, fmt.Errorf("%w: studentName and admissionNumber are required", ErrInvalidInput)
	}
	now := s.now().UTC()
	st := &Student{
		ID:              ids.NewAt(now),
		InstituteID:     instituteID,
		Name:            name,
		AdmissionNumber: adm,
		ClassName:       strings.TrimSpace(in.ClassName),
		CreatedAt:       now,
	}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
