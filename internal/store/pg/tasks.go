package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"instituteos.app/internal/signal"
	"instituteos.app/internal/task"
)

var (
	_ task.Store   = (*Store)(nil)
	_ signal.Store = (*Store)(nil)
)

const taskColumns = `id, institute_id, title, description, path, parent_id, assigned_by_id,
	assigned_to_id, status, priority, deadline, completed_at, created_at`

// priorityRank mirrors task.Priority.Rank for ordering in SQL.
const priorityRank = `case priority when 'URGENT' then 4 when 'HIGH' then 3 when 'MEDIUM' then 2 when 'LOW' then 1 else 0 end`

func scanTask(row scanner) (task.Task, error) {
	var (
		t           task.Task
		parentID    sql.NullString
		deadline    sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.InstituteID, &t.Title, &t.Description, &t.Path, &parentID, &t.AssignedByID,
		&t.AssignedToID, &t.Status, &t.Priority, &deadline, &completedAt, &t.CreatedAt); err != nil {
		return task.Task{}, err
	}
	t.ParentID = parentID.String
	if deadline.Valid {
		d := deadline.Time.UTC()
		t.Deadline = &d
	}
	if completedAt.Valid {
		c := completedAt.Time.UTC()
		t.CompletedAt = &c
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	defer rows.Close()
	out := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tasks (`+taskColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.InstituteID, t.Title, t.Description, t.Path, nullIfEmpty(t.ParentID), t.AssignedByID,
		t.AssignedToID, t.Status, t.Priority, nullTime(t.Deadline), nullTime(t.CompletedAt), t.CreatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%w: assignee or parent task does not exist", task.ErrInvalidInput)
	}
	return err
}

func (s *Store) FindTask(ctx context.Context, instituteID, id string) (*task.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `
		select `+taskColumns+`
		from tasks
		where institute_id = $1 and id = $2
	`, instituteID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, instituteID string, f task.Filter) ([]task.Task, int, error) {
	where := []string{"institute_id = $1"}
	args := []any{instituteID}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.AssignedToID != "" {
		args = append(args, f.AssignedToID)
		where = append(where, fmt.Sprintf("assigned_to_id = $%d", len(args)))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from tasks where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PageSize, f.Offset())
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select `+taskColumns+`
		from tasks
		where %s
		order by `+priorityRank+` desc, deadline asc nulls last, id asc
		limit $%d offset $%d
	`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	list, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Store) Descendants(ctx context.Context, instituteID, path string) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+`
		from tasks
		where institute_id = $1 and path like $2
		order by path asc
	`, instituteID, path+".%")
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}

func (s *Store) UpdateTaskStatus(ctx context.Context, instituteID, id string, status task.Status, completedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update tasks set status = $3, completed_at = $4
		where institute_id = $1 and id = $2
	`, instituteID, id, status, nullTime(completedAt))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return task.ErrNotFound
	}
	return nil
}

// MarkOverdueTasks flips open tasks past their deadline across all institutes.
func (s *Store) MarkOverdueTasks(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update tasks set status = 'OVERDUE'
		where status in ('PENDING', 'IN_PROGRESS') and deadline < $1
	`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) TasksDueBetween(ctx context.Context, from, to time.Time) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+`
		from tasks
		where status in ('PENDING', 'IN_PROGRESS') and deadline between $1 and $2
		order by deadline asc
	`, from, to)
	if err != nil {
		return nil, err
	}
	return scanTasks(rows)
}
