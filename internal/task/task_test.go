package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/store/memory"
	"instituteos.app/internal/task"
)

var now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*task.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutUser(auth.User{ID: "user-1", InstituteID: "inst-1", Email: "head@greenwood.edu", Active: true}, auth.RoleInstituteAdmin)
	store.PutUser(auth.User{ID: "user-2", InstituteID: "inst-1", Email: "teacher@greenwood.edu", Active: true}, auth.RoleTeacher)
	store.PutUser(auth.User{ID: "user-x", InstituteID: "inst-2", Email: "other@oakridge.edu", Active: true}, auth.RoleTeacher)
	return task.NewService(store, store, task.WithClock(func() time.Time { return now })), store
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: " Grade essays ", AssignedToID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, "Grade essays", tk.Title)
	assert.Equal(t, task.StatusPending, tk.Status)
	assert.Equal(t, task.PriorityMedium, tk.Priority)
	assert.Equal(t, "user-1", tk.AssignedByID)
	assert.Equal(t, "t_"+tk.ID, tk.Path)
	assert.Equal(t, now, tk.CreatedAt)

	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "", AssignedToID: "user-2"})
	assert.ErrorIs(t, err, task.ErrInvalidInput)
	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "x", AssignedToID: "user-2", Priority: "CRITICAL"})
	assert.ErrorIs(t, err, task.ErrInvalidInput)
	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "x", AssignedToID: "user-x"})
	assert.ErrorIs(t, err, task.ErrInvalidInput, "assignee from another institute")
	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "x", AssignedToID: "nobody"})
	assert.ErrorIs(t, err, task.ErrInvalidInput)
}

func TestSubTasksFollowPath(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "Annual day", AssignedToID: "user-2"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "Stage", AssignedToID: "user-2", ParentTaskID: root.ID})
	require.NoError(t, err)
	grandchild, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "Lights", AssignedToID: "user-2", ParentTaskID: child.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "Unrelated", AssignedToID: "user-2"})
	require.NoError(t, err)

	assert.Equal(t, root.ID, child.ParentID)
	assert.Equal(t, root.Path+"."+"t_"+child.ID, child.Path)

	subs, err := svc.SubTasks(ctx, "inst-1", root.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, child.ID, subs[0].ID)
	assert.Equal(t, grandchild.ID, subs[1].ID)

	_, err = svc.SubTasks(ctx, "inst-2", root.ID)
	assert.ErrorIs(t, err, task.ErrNotFound, "other institutes cannot see the task")
	_, err = svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "x", AssignedToID: "user-2", ParentTaskID: "not-an-id"})
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestListOrdersByPriorityThenDeadline(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	soon, later := now.Add(2*time.Hour), now.Add(48*time.Hour)

	mk := func(title string, p task.Priority, deadline *time.Time) {
		_, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: title, AssignedToID: "user-2", Priority: p, Deadline: deadline})
		require.NoError(t, err)
	}
	mk("low", task.PriorityLow, &soon)
	mk("high-later", task.PriorityHigh, &later)
	mk("high-soon", task.PriorityHigh, &soon)
	mk("urgent", task.PriorityUrgent, nil)

	page, err := svc.List(ctx, "inst-1", task.Filter{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 3)
	assert.Equal(t, []string{"urgent", "high-soon", "high-later"}, []string{page.Data[0].Title, page.Data[1].Title, page.Data[2].Title})

	page, err = svc.List(ctx, "inst-1", task.Filter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "low", page.Data[0].Title)

	_, err = svc.List(ctx, "inst-1", task.Filter{Status: "LOST"})
	assert.ErrorIs(t, err, task.ErrInvalidInput)

	page, err = svc.List(ctx, "inst-2", task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.NotNil(t, page.Data)
}

func TestUpdateStatusStampsCompletion(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	tk, err := svc.Create(ctx, "inst-1", "user-1", task.CreateInput{Title: "Report", AssignedToID: "user-2"})
	require.NoError(t, err)

	done, err := svc.UpdateStatus(ctx, "inst-1", tk.ID, "done")
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, done.Status)
	require.NotNil(t, done.CompletedAt)

	stored, err := store.FindTask(ctx, "inst-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, stored.Status)

	reopened, err := svc.UpdateStatus(ctx, "inst-1", tk.ID, task.StatusInProgress)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	_, err = svc.UpdateStatus(ctx, "inst-1", tk.ID, "ARCHIVED")
	assert.ErrorIs(t, err, task.ErrInvalidInput)
	_, err = svc.UpdateStatus(ctx, "inst-2", tk.ID, task.StatusDone)
	assert.ErrorIs(t, err, task.ErrNotFound)
}
