package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"instituteos.app/internal/auth"
)

var _ auth.Store = (*Store)(nil)

const userColumns = `id, institute_id, email, password_hash, first_name, last_name, is_active, created_at, updated_at`

func scanUser(row scanner) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.InstituteID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email, instituteID string) (*auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where lower(email) = lower($1) and ($2 = '' or institute_id = $2)
		order by created_at asc, id asc
		limit 1
	`, email, instituteID))
}

func (s *Store) UserRoles(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Store) CreateUserWithRole(ctx context.Context, u *auth.User, roleName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var roleID string
	err = tx.QueryRowContext(ctx, `
		select id from roles where institute_id = $1 and name = $2
	`, u.InstituteID, roleName).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: role %s", auth.ErrNotFound, roleName)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, institute_id, email, password_hash, first_name, last_name, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.InstituteID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Active, u.CreatedAt, u.UpdatedAt); err != nil {
		switch {
		case isUniqueViolation(err):
			return auth.ErrConflict
		case isForeignKeyViolation(err):
			return auth.ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into user_roles (user_id, role_id, created_at)
		values ($1, $2, $3)
	`, u.ID, roleID, u.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

const platformUserColumns = `id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at`

func scanPlatformUser(row scanner) (*auth.PlatformUser, error) {
	var u auth.PlatformUser
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindPlatformUser(ctx context.Context, id string) (*auth.PlatformUser, error) {
	return scanPlatformUser(s.db.QueryRowContext(ctx, `
		select `+platformUserColumns+`
		from platform_users
		where id = $1
	`, id))
}

func (s *Store) FindPlatformUserByEmail(ctx context.Context, email string) (*auth.PlatformUser, error) {
	return scanPlatformUser(s.db.QueryRowContext(ctx, `
		select `+platformUserColumns+`
		from platform_users
		where lower(email) = lower($1)
	`, email))
}

func (s *Store) CreatePlatformUser(ctx context.Context, u *auth.PlatformUser) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into platform_users (id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.Active, u.CreatedAt, u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}
