package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Create records the enrollment. Duplicates are ignored so that
// re-running a fulfillment stays idempotent.
func Create(ctx context.Context, db sqlx.ExtContext, enr Enrollment) error {
	const q = `
	INSERT INTO enrollments
		(user_id, course_id, progress, created_at, updated_at)
	VALUES
		(:user_id, :course_id, :progress, :created_at, :updated_at)
	ON CONFLICT (user_id, course_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, db, q, enr); err != nil {
		return fmt.Errorf("inserting enrollment: %w", err)
	}

	return nil
}

func IsEnrolled(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1
		FROM enrollments
		WHERE user_id = $1 AND course_id = $2
	)`

	var enrolled bool
	if err := sqlx.GetContext(ctx, db, &enrolled, q, userID, courseID); err != nil {
		return false, fmt.Errorf("checking enrollment: %w", err)
	}

	return enrolled, nil
}

func UpdateProgress(ctx context.Context, db sqlx.ExtContext, userID, courseID string, progress int, now time.Time) error {
	const q = `
	UPDATE enrollments
	SET progress = $3, updated_at = $4
	WHERE user_id = $1 AND course_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, courseID, progress, now); err != nil {
		return fmt.Errorf("updating progress of enrollment[%s,%s]: %w", userID, courseID, err)
	}

	return nil
}
