// Package task keeps the tenant-scoped task board: staff assign work to each
// other, optionally as subtasks of an existing task.
package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/ids"
)

var (
	ErrInvalidInput = errors.New("task: invalid input")
	ErrNotFound     = errors.New("task: not found")
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
	StatusOverdue    Status = "OVERDUE"
)

// Open reports whether the task still awaits completion and can become overdue.
func (s Status) Open() bool { return s == StatusPending || s == StatusInProgress }

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone, StatusOverdue:
		return true
	}
	return false
}

// Priority orders the board; higher ranks sort first.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Rank returns the sort weight of p, zero for unknown values.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// Task belongs to exactly one institute. Path holds the ancestry as
// dot-separated segments, so descendants share their ancestor's path prefix.
type Task struct {
	ID           string     `json:"id"`
	InstituteID  string     `json:"instituteId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Path         string     `json:"path"`
	ParentID     string     `json:"parentTaskId,omitempty"`
	AssignedByID string     `json:"assignedById"`
	AssignedToID string     `json:"assignedToId"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Filter narrows a listing. Page is 1-based.
type Filter struct {
	Status       Status
	AssignedToID string
	Page         int
	PageSize     int
}

// Offset returns the number of rows skipped before Page.
func (f Filter) Offset() int { return (f.Page - 1) * f.PageSize }

// Page is one page of a listing ordered by priority then deadline.
type Page struct {
	Data       []Task `json:"data"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"pageSize"`
	TotalPages int    `json:"totalPages"`
}

// Store persists tasks. Lookups are always scoped to an institute and return
// ErrNotFound for ids of other institutes.
type Store interface {
	CreateTask(ctx context.Context, t *Task) error
	FindTask(ctx context.Context, instituteID, id string) (*Task, error)
	ListTasks(ctx context.Context, instituteID string, f Filter) ([]Task, int, error)
	Descendants(ctx context.Context, instituteID, path string) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, instituteID, id string, status Status, completedAt *time.Time) error
}

// Directory resolves staff accounts so assignments stay inside the institute.
type Directory interface {
	FindUser(ctx context.Context, id string) (*auth.User, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service manages one institute's tasks at a time.
type Service struct {
	store Store
	users Directory
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs Service.
func NewService(store Store, users Directory, opts ...Option) *Service {
	s := &Service{store: store, users: users, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput is a new assignment.
type CreateInput struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AssignedToID string     `json:"assignedToId"`
	Deadline     *time.Time `json:"deadline"`
	Priority     Priority   `json:"priority"`
	ParentTaskID string     `json:"parentTaskId"`
}

// Create assigns a task inside instituteID on behalf of assignedByID.
func (s *Service) Create(ctx context.Context, instituteID, assignedByID string, in CreateInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	assignee := strings.TrimSpace(in.AssignedToID)
	if title == "" || assignee == "" {
		return nil, fmt.Errorf("%w: title and assignedToId are required", ErrInvalidInput)
	}
	priority := Priority(strings.ToUpper(strings.TrimSpace(string(in.Priority))))
	if priority == "" {
		priority = PriorityMedium
	}
	if priority.Rank() == 0 {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	if err := s.checkMember(ctx, instituteID, assignee); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	t := &Task{
		ID:           ids.NewAt(now),
		InstituteID:  instituteID,
		Title:        title,
		Description:  strings.TrimSpace(in.Description),
		AssignedByID: assignedByID,
		AssignedToID: assignee,
		Status:       StatusPending,
		Priority:     priority,
		CreatedAt:    now,
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		t.Deadline = &d
	}
	t.Path = pathSegment(t.ID)
	if parentID := strings.TrimSpace(in.ParentTaskID); parentID != "" {
		parent, err := s.find(ctx, instituteID, parentID)
		if err != nil {
			return nil, err
		}
		t.ParentID = parent.ID
		t.Path = parent.Path + "." + t.Path
	}
	if err := s.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) checkMember(ctx context.Context, instituteID, userID string) error {
	if s.users == nil {
		return nil
	}
	u, err := s.users.FindUser(ctx, userID)
	if errors.Is(err, auth.ErrNotFound) || (err == nil && u.InstituteID != instituteID) {
		return fmt.Errorf("%w: assignedToId is not a member of this institute", ErrInvalidInput)
	}
	return err
}

// List returns one page of the institute's tasks.
func (s *Service) List(ctx context.Context, instituteID string, f Filter) (*Page, error) {
	if f.Status != "" {
		f.Status = Status(strings.ToUpper(string(f.Status)))
		if !f.Status.valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
		}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	f.PageSize = min(f.PageSize, maxPageSize)

	data, total, err := s.store.ListTasks(ctx, instituteID, f)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []Task{}
	}
	return &Page{
		Data:       data,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(f.PageSize))),
	}, nil
}

// SubTasks returns every descendant of id ordered by path.
func (s *Service) SubTasks(ctx context.Context, instituteID, id string) ([]Task, error) {
	parent, err := s.find(ctx, instituteID, id)
	if err != nil {
		return nil, err
	}
	return s.store.Descendants(ctx, instituteID, parent.Path)
}

// UpdateStatus moves a task to status, stamping completion for DONE.
func (s *Service) UpdateStatus(ctx context.Context, instituteID, id string, status Status) (*Task, error) {
	status = Status(strings.ToUpper(strings.TrimSpace(string(status))))
	if !status.valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	t, err := s.find(ctx, instituteID, id)
	if err != nil {
		return nil, err
	}
	var completedAt *time.Time
	if status == StatusDone {
		now := s.now().UTC()
		completedAt = &now
	}
	if err := s.store.UpdateTaskStatus(ctx, instituteID, t.ID, status, completedAt); err != nil {
		return nil, err
	}
	t.Status = status
	t.CompletedAt = completedAt
	return t, nil
}

func (s *Service) find(ctx context.Context, instituteID, id string) (*Task, error) {
	if !ids.Valid(id) {
		return nil, ErrNotFound
	}
	return s.store.FindTask(ctx, instituteID, id)
}

// pathSegment turns an id into a path label of [a-z0-9_] characters.
func pathSegment(id string) string {
	return "t_" + strings.ToLower(id)
}
