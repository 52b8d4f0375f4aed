package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

// LoadEnrollments returns all enrollments in insertion order.
func (r *Repository) LoadEnrollments(ctx context.Context) ([]database.EnrollmentRecord, error) {
	query := `
		SELECT identity_id, display_name, group_name, image_ref, embedding, created_at
		FROM enrollments
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, database.Unavailable("query enrollments", err)
	}
	defer rows.Close()

	records, err := scanEnrollments(rows)
	if err != nil {
		return nil, database.Unavailable("load enrollments", err)
	}
	return records, nil
}

// AppendEnrollment stores a new enrollment.
func (r *Repository) AppendEnrollment(ctx context.Context, rec database.EnrollmentRecord) error {
	query := `
		INSERT INTO enrollments (identity_id, display_name, group_name, image_ref, embedding, dim, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	vec := pgvector.NewVector(rec.Embedding)
	_, err := r.pool.Exec(ctx, query,
		rec.IdentityID, rec.DisplayName, rec.Group, rec.ImageRef, vec, len(rec.Embedding), rec.CreatedAt,
	)
	if isUniqueViolation(err) {
		return database.ErrDuplicateIdentity
	}
	if err != nil {
		return database.Unavailable("save enrollment", err)
	}
	return nil
}

// scanEnrollments scans enrollment rows.
func scanEnrollments(rows *sql.Rows) ([]database.EnrollmentRecord, error) {
	var records []database.EnrollmentRecord
	for rows.Next() {
		var rec database.EnrollmentRecord
		var vec pgvector.Vector

		if err := rows.Scan(
			&rec.IdentityID,
			&rec.DisplayName,
			&rec.Group,
			&rec.ImageRef,
			&vec,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}

		rec.Embedding = vec.Slice()
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}

	return records, nil
}
