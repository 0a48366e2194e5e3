// Package memory is an in-process store used for local development and tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/institute"
	"instituteos.app/internal/signal"
	"instituteos.app/internal/student"
	"instituteos.app/internal/task"
	"instituteos.app/internal/usage"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu            sync.RWMutex
	institutes    map[string]institute.Institute
	subscriptions map[string]institute.Subscription // by institute id
	roi           map[string]institute.RoiStats
	users         map[string]auth.User
	platformUsers map[string]auth.PlatformUser
	roles         map[string]auth.Role
	assignments   []auth.Assignment
	students      map[string]student.Student
	tasks         map[string]task.Task
	usage         []usage.Record
}

var (
	_ auth.Store      = (*Store)(nil)
	_ institute.Store = (*Store)(nil)
	_ student.Store   = (*Store)(nil)
	_ task.Store      = (*Store)(nil)
	_ signal.Store    = (*Store)(nil)
	_ usage.Store     = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		institutes:    map[string]institute.Institute{},
		subscriptions: map[string]institute.Subscription{},
		roi:           map[string]institute.RoiStats{},
		users:         map[string]auth.User{},
		platformUsers: map[string]auth.PlatformUser{},
		roles:         map[string]auth.Role{},
		students:      map[string]student.Student{},
		tasks:         map[string]task.Task{},
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// --- institutes ---

func (s *Store) FindInstitute(_ context.Context, id string) (*institute.Institute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.institutes[id]
	if !ok {
		return nil, institute.ErrNotFound
	}
	return &inst, nil
}

func (s *Store) FindInstituteByDomain(_ context.Context, domain string) (*institute.Institute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domain = strings.ToLower(strings.TrimSpace(domain))
	for _, inst := range s.institutes {
		if strings.EqualFold(inst.Domain, domain) {
			return &inst, nil
		}
	}
	return nil, institute.ErrNotFound
}

func (s *Store) ListInstitutes(context.Context) ([]institute.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]institute.Summary, 0, len(s.institutes))
	for _, inst := range s.institutes {
		sum := institute.Summary{Institute: inst}
		for _, u := range s.users {
			if u.InstituteID == inst.ID {
				sum.UserCount++
			}
		}
		for _, st := range s.students {
			if st.InstituteID == inst.ID {
				sum.StudentCount++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) domainTakenLocked(domain, exceptID string) bool {
	for id, inst := range s.institutes {
		if id != exceptID && strings.EqualFold(inst.Domain, domain) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateInstitute(_ context.Context, inst *institute.Institute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.institutes[inst.ID]; !ok {
		return institute.ErrNotFound
	}
	if s.domainTakenLocked(inst.Domain, inst.ID) {
		return institute.ErrDomainTaken
	}
	s.institutes[inst.ID] = *inst
	return nil
}

func (s *Store) Provision(_ context.Context, p *institute.Provisioning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.domainTakenLocked(p.Institute.Domain, "") {
		return institute.ErrDomainTaken
	}
	s.institutes[p.Institute.ID] = p.Institute
	for _, r := range p.Roles {
		r.Permissions = slices.Clone(r.Permissions)
		s.roles[r.ID] = r
	}
	s.users[p.Admin.ID] = p.Admin
	if p.AdminRoleID != "" {
		s.assignments = append(s.assignments, auth.Assignment{UserID: p.Admin.ID, RoleID: p.AdminRoleID, CreatedAt: p.Admin.CreatedAt})
	}
	sub := p.Subscription
	sub.ActiveModules = slices.Clone(sub.ActiveModules)
	s.subscriptions[p.Institute.ID] = sub
	s.roi[p.Institute.ID] = p.RoiStats
	return nil
}

func (s *Store) FindSubscription(_ context.Context, instituteID string) (*institute.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subscriptions[instituteID]
	if !ok {
		return nil, institute.ErrNotFound
	}
	sub.ActiveModules = slices.Clone(sub.ActiveModules)
	return &sub, nil
}

func (s *Store) UpdateSubscriptionFee(_ context.Context, instituteID string, annualFee float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[instituteID]
	if !ok {
		return institute.ErrNotFound
	}
	sub.AnnualFee = annualFee
	s.subscriptions[instituteID] = sub
	return nil
}

// PutInstitute inserts or replaces an institute (seeding and tests).
func (s *Store) PutInstitute(inst institute.Institute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.institutes[inst.ID] = inst
}

// PutSubscription inserts or replaces a subscription (seeding and tests).
func (s *Store) PutSubscription(sub institute.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.InstituteID] = sub
}

// DeleteSubscription removes an institute's subscription (tests).
func (s *Store) DeleteSubscription(instituteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, instituteID)
}

// --- users ---

func (s *Store) FindUser(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByEmail(_ context.Context, email, instituteID string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *auth.User
	for _, u := range s.users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if instituteID != "" && u.InstituteID != instituteID {
			continue
		}
		if found == nil || u.CreatedAt.Before(found.CreatedAt) {
			u := u
			found = &u
		}
	}
	if found == nil {
		return nil, auth.ErrNotFound
	}
	return found, nil
}

func (s *Store) UserRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for _, a := range s.assignments {
		if a.UserID != userID {
			continue
		}
		if r, ok := s.roles[a.RoleID]; ok {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func (s *Store) CreateUserWithRole(_ context.Context, u *auth.User, roleName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.InstituteID == u.InstituteID && strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	var role *auth.Role
	for _, r := range s.roles {
		if r.InstituteID == u.InstituteID && r.Name == roleName {
			r := r
			role = &r
			break
		}
	}
	if role == nil {
		return auth.ErrNotFound
	}
	s.users[u.ID] = *u
	s.assignments = append(s.assignments, auth.Assignment{UserID: u.ID, RoleID: role.ID, CreatedAt: u.CreatedAt})
	return nil
}

// PutUser inserts a user and assigns the named roles, creating them if needed.
func (s *Store) PutUser(u auth.User, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	for _, name := range roles {
		var roleID string
		for id, r := range s.roles {
			if r.InstituteID == u.InstituteID && r.Name == name {
				roleID = id
				break
			}
		}
		if roleID == "" {
			roleID = u.InstituteID + ":" + name
			s.roles[roleID] = auth.Role{ID: roleID, InstituteID: u.InstituteID, Name: name}
		}
		s.assignments = append(s.assignments, auth.Assignment{UserID: u.ID, RoleID: roleID})
	}
}

// Roles returns the roles of an institute (tests).
func (s *Store) Roles(instituteID string) []auth.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Role
	for _, r := range s.roles {
		if r.InstituteID == instituteID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) FindPlatformUser(_ context.Context, id string) (*auth.PlatformUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.platformUsers[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (s *Store) FindPlatformUserByEmail(_ context.Context, email string) (*auth.PlatformUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.platformUsers {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) CreatePlatformUser(_ context.Context, u *auth.PlatformUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.platformUsers {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.ErrConflict
		}
	}
	s.platformUsers[u.ID] = *u
	return nil
}

// --- students ---

func (s *Store) CreateStudent(_ context.Context, st *student.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.students {
		if existing.InstituteID == st.InstituteID && existing.AdmissionNumber == st.AdmissionNumber {
			return student.ErrConflict
		}
	}
	s.students[st.ID] = *st
	return nil
}

func (s *Store) ListStudents(_ context.Context, instituteID string) ([]student.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []student.Student{}
	for _, st := range s.students {
		if st.InstituteID == instituteID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// --- tasks ---

func (s *Store) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = *t
	return nil
}

func (s *Store) FindTask(_ context.Context, instituteID, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok || t.InstituteID != instituteID {
		return nil, task.ErrNotFound
	}
	return &t, nil
}

func (s *Store) ListTasks(_ context.Context, instituteID string, f task.Filter) ([]task.Task, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []task.Task
	for _, t := range s.tasks {
		if t.InstituteID != instituteID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AssignedToID != "" && t.AssignedToID != f.AssignedToID {
			continue
		}
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		switch {
		case a.Deadline != nil && b.Deadline == nil:
			return true
		case a.Deadline == nil && b.Deadline != nil:
			return false
		case a.Deadline != nil && !a.Deadline.Equal(*b.Deadline):
			return a.Deadline.Before(*b.Deadline)
		}
		return a.ID < b.ID
	})
	total := len(all)
	start := min(f.Offset(), total)
	end := min(start+f.PageSize, total)
	return all[start:end], total, nil
}

func (s *Store) Descendants(_ context.Context, instituteID, path string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []task.Task{}
	for _, t := range s.tasks {
		if t.InstituteID == instituteID && strings.HasPrefix(t.Path, path+".") {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, instituteID, id string, status task.Status, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.InstituteID != instituteID {
		return task.ErrNotFound
	}
	t.Status = status
	t.CompletedAt = completedAt
	s.tasks[id] = t
	return nil
}

func (s *Store) MarkOverdueTasks(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, t := range s.tasks {
		if t.Status.Open() && t.Deadline != nil && t.Deadline.Before(now) {
			t.Status = task.StatusOverdue
			s.tasks[id] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) TasksDueBetween(_ context.Context, from, to time.Time) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if !t.Status.Open() || t.Deadline == nil {
			continue
		}
		if t.Deadline.Before(from) || t.Deadline.After(to) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(*out[j].Deadline) })
	return out, nil
}

// --- usage ---

func (s *Store) AppendUsage(_ context.Context, rec usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, rec)
	return nil
}

// Usage returns a copy of all usage records.
func (s *Store) Usage() []usage.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.usage)
}
