package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"instituteos.app/internal/institute"
)

var _ institute.Store = (*Store)(nil)

const instituteColumns = `id, name, domain, tier, trial_start_date, created_at, updated_at`

func scanInstitute(row scanner, extra ...any) (*institute.Institute, error) {
	var inst institute.Institute
	dest := append([]any{&inst.ID, &inst.Name, &inst.Domain, &inst.Tier, &inst.TrialStartDate, &inst.CreatedAt, &inst.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *Store) FindInstitute(ctx context.Context, id string) (*institute.Institute, error) {
	inst, err := scanInstitute(s.db.QueryRowContext(ctx, `
		select `+instituteColumns+`
		from institutes
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institute.ErrNotFound
	}
	return inst, err
}

func (s *Store) FindInstituteByDomain(ctx context.Context, domain string) (*institute.Institute, error) {
	inst, err := scanInstitute(s.db.QueryRowContext(ctx, `
		select `+instituteColumns+`
		from institutes
		where lower(domain) = lower($1)
	`, domain))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institute.ErrNotFound
	}
	return inst, err
}

func (s *Store) ListInstitutes(ctx context.Context) ([]institute.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		select i.id, i.name, i.domain, i.tier, i.trial_start_date, i.created_at, i.updated_at,
			(select count(*) from users u where u.institute_id = i.id),
			(select count(*) from students st where st.institute_id = i.id)
		from institutes i
		order by i.created_at asc, i.id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []institute.Summary
	for rows.Next() {
		var users, students int
		inst, err := scanInstitute(rows, &users, &students)
		if err != nil {
			return nil, err
		}
		result = append(result, institute.Summary{Institute: *inst, UserCount: users, StudentCount: students})
	}
	return result, rows.Err()
}

func (s *Store) UpdateInstitute(ctx context.Context, inst *institute.Institute) error {
	res, err := s.db.ExecContext(ctx, `
		update institutes
		set name = $2, domain = $3, updated_at = $4
		where id = $1
	`, inst.ID, inst.Name, inst.Domain, inst.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return institute.ErrDomainTaken
		}
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return institute.ErrNotFound
	}
	return nil
}

// Provision writes the institute and everything hanging off it in one
// transaction.
func (s *Store) Provision(ctx context.Context, p *institute.Provisioning) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	inst := p.Institute
	if _, err := tx.ExecContext(ctx, `
		insert into institutes (id, name, domain, tier, trial_start_date, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, inst.ID, inst.Name, inst.Domain, inst.Tier, inst.TrialStartDate, inst.CreatedAt, inst.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return institute.ErrDomainTaken
		}
		return fmt.Errorf("insert institute: %w", err)
	}

	for _, role := range p.Roles {
		perms, err := json.Marshal(role.Permissions)
		if err != nil {
			return fmt.Errorf("marshal permissions: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			insert into roles (id, institute_id, name, permissions, created_at)
			values ($1, $2, $3, $4, $5)
		`, role.ID, inst.ID, role.Name, perms, role.CreatedAt); err != nil {
			return fmt.Errorf("insert role %s: %w", role.Name, err)
		}
	}

	admin := p.Admin
	if _, err := tx.ExecContext(ctx, `
		insert into users (id, institute_id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, admin.ID, inst.ID, admin.Email, admin.PasswordHash, admin.FirstName, admin.LastName, admin.Active, admin.CreatedAt, admin.UpdatedAt); err != nil {
		return fmt.Errorf("insert admin: %w", err)
	}
	if p.AdminRoleID != "" {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles (user_id, role_id, created_at)
			values ($1, $2, $3)
		`, admin.ID, p.AdminRoleID, admin.CreatedAt); err != nil {
			return fmt.Errorf("assign admin role: %w", err)
		}
	}

	sub := p.Subscription
	modules, err := json.Marshal(nonNil(sub.ActiveModules))
	if err != nil {
		return fmt.Errorf("marshal modules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into subscriptions (id, institute_id, active_modules, student_count, annual_fee, is_paid, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, sub.ID, inst.ID, modules, sub.StudentCount, sub.AnnualFee, sub.IsPaid, sub.UpdatedAt); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}

	roi := p.RoiStats
	if _, err := tx.ExecContext(ctx, `
		insert into roi_stats (institute_id, total_time_saved_minutes, money_saved, last_calculated_at)
		values ($1, $2, $3, $4)
	`, inst.ID, roi.TotalTimeSavedMinutes, roi.MoneySaved, roi.LastCalculatedAt); err != nil {
		return fmt.Errorf("insert roi stats: %w", err)
	}

	return tx.Commit()
}

func (s *Store) FindSubscription(ctx context.Context, instituteID string) (*institute.Subscription, error) {
	var (
		sub     institute.Subscription
		modules []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, institute_id, active_modules, student_count, annual_fee, is_paid, updated_at
		from subscriptions
		where institute_id = $1
	`, instituteID).Scan(&sub.ID, &sub.InstituteID, &modules, &sub.StudentCount, &sub.AnnualFee, &sub.IsPaid, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institute.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(modules) > 0 {
		if err := json.Unmarshal(modules, &sub.ActiveModules); err != nil {
			return nil, fmt.Errorf("decode active modules: %w", err)
		}
	}
	return &sub, nil
}

func (s *Store) UpdateSubscriptionFee(ctx context.Context, instituteID string, annualFee float64) error {
	res, err := s.db.ExecContext(ctx, `
		update subscriptions
		set annual_fee = $2, updated_at = $3
		where institute_id = $1
	`, instituteID, annualFee, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return institute.ErrNotFound
	}
	return nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
