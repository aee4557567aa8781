package admin

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func fetchTotals(ctx context.Context, db sqlx.ExtContext) (Totals, error) {
	const q = `
	SELECT
		(SELECT COUNT(*) FROM users WHERE role <> 'ADMIN') AS students,
		(SELECT COUNT(*) FROM courses) AS courses,
		(SELECT COUNT(*) FROM enrollments) AS enrollments,
		(SELECT COALESCE(SUM(amount), 0) FROM payments WHERE status = 'success') AS revenue`

	var tot Totals
	if err := sqlx.GetContext(ctx, db, &tot, q); err != nil {
		return Totals{}, fmt.Errorf("selecting totals: %w", err)
	}

	return tot, nil
}

func fetchRecentEnrollments(ctx context.Context, db sqlx.ExtContext, limit int) ([]RecentEnrollment, error) {
	const q = `
	SELECT u.username, e.course_id, c.title, e.created_at
	FROM enrollments AS e
	JOIN users AS u ON e.user_id = u.user_id
	JOIN courses AS c ON e.course_id = c.course_id
	ORDER BY e.created_at DESC
	LIMIT $1`

	enrs := []RecentEnrollment{}
	if err := sqlx.SelectContext(ctx, db, &enrs, q, limit); err != nil {
		return nil, fmt.Errorf("selecting recent enrollments: %w", err)
	}

	return enrs, nil
}

func fetchTopCourses(ctx context.Context, db sqlx.ExtContext, limit int) ([]TopCourse, error) {
	const q = `
	SELECT c.course_id, c.title, COUNT(e.user_id) AS enrollments
	FROM courses AS c
	JOIN enrollments AS e ON c.course_id = e.course_id
	GROUP BY c.course_id, c.title
	ORDER BY enrollments DESC, c.title
	LIMIT $1`

	top := []TopCourse{}
	if err := sqlx.SelectContext(ctx, db, &top, q, limit); err != nil {
		return nil, fmt.Errorf("selecting top courses: %w", err)
	}

	return top, nil
}

func fetchCourseStats(ctx context.Context, db sqlx.ExtContext) ([]CourseStats, error) {
	const q = `
	SELECT
		c.course_id, c.title, c.category, c.price,
		(SELECT COUNT(*) FROM enrollments AS e WHERE e.course_id = c.course_id) AS enrollments,
		(SELECT COALESCE(SUM(p.amount), 0) FROM payments AS p
			WHERE p.course_id = c.course_id AND p.status = 'success') AS revenue
	FROM courses AS c
	ORDER BY enrollments DESC, c.title`

	stats := []CourseStats{}
	if err := sqlx.SelectContext(ctx, db, &stats, q); err != nil {
		return nil, fmt.Errorf("selecting course stats: %w", err)
	}

	return stats, nil
}

func fetchCategoryStats(ctx context.Context, db sqlx.ExtContext) ([]CategoryStats, error) {
	const q = `
	SELECT c.category, COUNT(DISTINCT c.course_id) AS courses, COUNT(e.user_id) AS enrollments
	FROM courses AS c
	LEFT JOIN enrollments AS e ON c.course_id = e.course_id
	GROUP BY c.category
	ORDER BY c.category`

	stats := []CategoryStats{}
	if err := sqlx.SelectContext(ctx, db, &stats, q); err != nil {
		return nil, fmt.Errorf("selecting category stats: %w", err)
	}

	return stats, nil
}

func fetchRecentPayments(ctx context.Context, db sqlx.ExtContext, limit int) ([]RecentPayment, error) {
	const q = `
	SELECT u.username, c.title, p.amount, p.provider, p.status, p.created_at
	FROM payments AS p
	JOIN users AS u ON p.user_id = u.user_id
	JOIN courses AS c ON p.course_id = c.course_id
	ORDER BY p.created_at DESC
	LIMIT $1`

	pays := []RecentPayment{}
	if err := sqlx.SelectContext(ctx, db, &pays, q, limit); err != nil {
		return nil, fmt.Errorf("selecting recent payments: %w", err)
	}

	return pays, nil
}

func fetchStudents(ctx context.Context, db sqlx.ExtContext) ([]Student, error) {
	const q = `
	SELECT
		u.user_id, u.username, u.email, u.active, u.created_at,
		(SELECT COUNT(*) FROM enrollments AS e WHERE e.user_id = u.user_id) AS enrollments
	FROM users AS u
	WHERE u.role <> 'ADMIN'
	ORDER BY u.created_at DESC`

	students := []Student{}
	if err := sqlx.SelectContext(ctx, db, &students, q); err != nil {
		return nil, fmt.Errorf("selecting students: %w", err)
	}

	return students, nil
}
