package content

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, ct Content) error {
	const q = `
	INSERT INTO contents
		(content_id, course_id, title, kind, path, size, display_order, created_at, updated_at)
	VALUES
		(:content_id, :course_id, :title, :kind, :path, :size, :display_order, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, ct); err != nil {
		return fmt.Errorf("inserting content: %w", err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, contentID string) (Content, error) {
	const q = `
	SELECT *
	FROM contents
	WHERE content_id = $1`

	var ct Content
	if err := sqlx.GetContext(ctx, db, &ct, q, contentID); err != nil {
		return Content{}, fmt.Errorf("selecting content[%s]: %w", contentID, err)
	}

	return ct, nil
}

func FetchByCourse(ctx context.Context, db sqlx.ExtContext, courseID string) ([]Content, error) {
	const q = `
	SELECT *
	FROM contents
	WHERE course_id = $1
	ORDER BY display_order, created_at`

	cts := []Content{}
	if err := sqlx.SelectContext(ctx, db, &cts, q, courseID); err != nil {
		return nil, fmt.Errorf("selecting contents of course[%s]: %w", courseID, err)
	}

	return cts, nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, contentID string) error {
	const q = `
	DELETE FROM contents
	WHERE content_id = $1`

	if _, err := db.ExecContext(ctx, q, contentID); err != nil {
		return fmt.Errorf("deleting content[%s]: %w", contentID, err)
	}

	return nil
}

func courseExists(ctx context.Context, db sqlx.ExtContext, courseID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1
		FROM courses
		WHERE course_id = $1
	)`

	var found bool
	if err := sqlx.GetContext(ctx, db, &found, q, courseID); err != nil {
		return false, fmt.Errorf("checking course[%s]: %w", courseID, err)
	}

	return found, nil
}
