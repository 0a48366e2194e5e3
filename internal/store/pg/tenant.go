package pg

import (
	"context"

	"instituteos.app/internal/student"
	"instituteos.app/internal/usage"
)

var (
	_ student.Store = (*Store)(nil)
	_ usage.Store   = (*Store)(nil)
)

func (s *Store) CreateStudent(ctx context.Context, st *student.Student) error {
	if _, err := s.db.ExecContext(ctx, `
		insert into students (id, institute_id, student_name, admission_number, class_name, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, st.ID, st.InstituteID, st.Name, st.AdmissionNumber, st.ClassName, st.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return student.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListStudents(ctx context.Context, instituteID string) ([]student.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, institute_id, student_name, admission_number, class_name, created_at
		from students
		where institute_id = $1
		order by student_name asc, id asc
	`, instituteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []student.Student{}
	for rows.Next() {
		var st student.Student
		if err := rows.Scan(&st.ID, &st.InstituteID, &st.Name, &st.AdmissionNumber, &st.ClassName, &st.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, st)
	}
	return result, rows.Err()
}

// AppendUsage inserts one feature usage row; anonymous calls store a null user.
func (s *Store) AppendUsage(ctx context.Context, rec usage.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into feature_usage_logs (id, institute_id, module_key, feature_key, user_id, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, rec.ID, rec.InstituteID, rec.ModuleKey, rec.FeatureKey, nullIfEmpty(rec.UserID), rec.CreatedAt)
	return err
}
