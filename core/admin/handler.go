package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/payment"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/validate"
)

// HandleDashboard returns the headline numbers and the latest activity.
func HandleDashboard(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		tot, err := fetchTotals(ctx, db)
		if err != nil {
			return err
		}

		recent, err := fetchRecentEnrollments(ctx, db, 5)
		if err != nil {
			return err
		}

		top, err := fetchTopCourses(ctx, db, 5)
		if err != nil {
			return err
		}

		dash := Dashboard{
			Totals:            tot,
			RecentEnrollments: recent,
			TopCourses:        top,
		}

		return web.Respond(ctx, w, dash, http.StatusOK)
	}
}

// HandleAnalytics returns per-course and per-category breakdowns.
func HandleAnalytics(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courses, err := fetchCourseStats(ctx, db)
		if err != nil {
			return err
		}

		categories, err := fetchCategoryStats(ctx, db)
		if err != nil {
			return err
		}

		pays, err := fetchRecentPayments(ctx, db, 10)
		if err != nil {
			return err
		}

		an := Analytics{
			Courses:    courses,
			Categories: categories,
			Payments:   pays,
		}

		return web.Respond(ctx, w, an, http.StatusOK)
	}
}

// HandleListStudents returns every non-admin account.
func HandleListStudents(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		students, err := fetchStudents(ctx, db)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, students, http.StatusOK)
	}
}

// HandleShowStudent returns one student with their courses and payments.
func HandleShowStudent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		studentID := web.Param(r, "id")
		if err := validate.CheckID(studentID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		usr, err := user.Fetch(ctx, db, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return err
		}

		// Staff accounts are not students.
		if usr.Role == claims.RoleAdmin {
			return weberr.NotFound(errors.New("no such student"))
		}

		courses, err := course.FetchOwned(ctx, db, studentID)
		if err != nil {
			return err
		}

		pays, err := payment.FetchByUser(ctx, db, studentID)
		if err != nil {
			return err
		}

		det := StudentDetail{
			User:     usr,
			Courses:  courses,
			Payments: pays,
		}

		return web.Respond(ctx, w, det, http.StatusOK)
	}
}
