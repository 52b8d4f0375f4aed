package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// LoadEnrollments returns all enrollments in insertion order.
func (s *Store) LoadEnrollments(ctx context.Context) ([]database.EnrollmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity_id, display_name, group_name, image_ref, embedding, created_at
		FROM enrollments
		ORDER BY seq
	`)
	if err != nil {
		return nil, database.Unavailable("query enrollments", err)
	}
	defer rows.Close()

	var records []database.EnrollmentRecord
	for rows.Next() {
		var rec database.EnrollmentRecord
		var embeddingJSON, createdAt string
		if err := rows.Scan(&rec.IdentityID, &rec.DisplayName, &rec.Group, &rec.ImageRef, &embeddingJSON, &createdAt); err != nil {
			return nil, database.Unavailable("load enrollments", fmt.Errorf("scan enrollment: %w", err))
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &rec.Embedding); err != nil {
			return nil, database.Unavailable("load enrollments", fmt.Errorf("decode embedding for %s: %w", rec.IdentityID, err))
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("load enrollments", fmt.Errorf("iterate enrollments: %w", err))
	}

	return records, nil
}

// AppendEnrollment stores a new enrollment.
func (s *Store) AppendEnrollment(ctx context.Context, rec database.EnrollmentRecord) error {
	data, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("%w: marshal embedding: %w", database.ErrInvalidInput, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrollments (identity_id, display_name, group_name, image_ref, embedding, dim, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.IdentityID, rec.DisplayName, rec.Group, rec.ImageRef, string(data), len(rec.Embedding),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if s.dialect.isDuplicate(err) {
		return database.ErrDuplicateIdentity
	}
	if err != nil {
		return database.Unavailable("save enrollment", err)
	}
	return nil
}
