package course

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	INSERT INTO courses
		(course_id, title, description, price, category, thumbnail_url, instructor_id, created_at, updated_at)
	VALUES
		(:course_id, :title, :description, :price, :category, :thumbnail_url, :instructor_id, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("inserting course: %w", err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, c Course) error {
	const q = `
	UPDATE courses
	SET
		title = :title,
		description = :description,
		price = :price,
		category = :category,
		thumbnail_url = :thumbnail_url,
		updated_at = :updated_at,
		version = version + 1
	WHERE course_id = :course_id`

	if _, err := sqlx.NamedExecContext(ctx, db, q, c); err != nil {
		return fmt.Errorf("updating course[%s]: %w", c.ID, err)
	}

	return nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, courseID string) error {
	const q = `
	DELETE FROM courses
	WHERE course_id = $1`

	if _, err := db.ExecContext(ctx, q, courseID); err != nil {
		return fmt.Errorf("deleting course[%s]: %w", courseID, err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, courseID string) (Course, error) {
	const q = `
	SELECT *
	FROM courses
	WHERE course_id = $1`

	var c Course
	if err := sqlx.GetContext(ctx, db, &c, q, courseID); err != nil {
		return Course{}, fmt.Errorf("selecting course[%s]: %w", courseID, err)
	}

	return c, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]Course, error) {
	const q = `
	SELECT *
	FROM courses
	ORDER BY created_at DESC`

	cs := []Course{}
	if err := sqlx.SelectContext(ctx, db, &cs, q); err != nil {
		return nil, fmt.Errorf("selecting courses: %w", err)
	}

	return cs, nil
}

// Search matches the query against titles and descriptions, newest first.
func Search(ctx context.Context, db sqlx.ExtContext, query string) ([]Course, error) {
	const q = `
	SELECT *
	FROM courses
	WHERE title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
	ORDER BY created_at DESC`

	cs := []Course{}
	if err := sqlx.SelectContext(ctx, db, &cs, q, query); err != nil {
		return nil, fmt.Errorf("searching courses: %w", err)
	}

	return cs, nil
}

func FetchByCategory(ctx context.Context, db sqlx.ExtContext, category string) ([]Course, error) {
	const q = `
	SELECT *
	FROM courses
	WHERE category = $1
	ORDER BY created_at DESC`

	cs := []Course{}
	if err := sqlx.SelectContext(ctx, db, &cs, q, category); err != nil {
		return nil, fmt.Errorf("selecting courses of category[%s]: %w", category, err)
	}

	return cs, nil
}

// FetchOwned returns the courses the user is enrolled in, most recent
// enrollment first.
func FetchOwned(ctx context.Context, db sqlx.ExtContext, userID string) ([]CourseOwned, error) {
	const q = `
	SELECT c.*, e.progress
	FROM courses AS c
	JOIN enrollments AS e ON c.course_id = e.course_id
	WHERE e.user_id = $1
	ORDER BY e.created_at DESC`

	cs := []CourseOwned{}
	if err := sqlx.SelectContext(ctx, db, &cs, q, userID); err != nil {
		return nil, fmt.Errorf("selecting courses of user[%s]: %w", userID, err)
	}

	return cs, nil
}

func isInCart(ctx context.Context, db sqlx.ExtContext, userID, courseID string) (bool, error) {
	const q = `
	SELECT EXISTS (
		SELECT 1
		FROM cart_items
		WHERE user_id = $1 AND course_id = $2
	)`

	var in bool
	if err := sqlx.GetContext(ctx, db, &in, q, userID, courseID); err != nil {
		return false, fmt.Errorf("checking cart item: %w", err)
	}

	return in, nil
}
