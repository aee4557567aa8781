package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/database"
	"github.com/swasthik/sarathi/validate"
)

// studentClaims rejects admins: the cart belongs to the storefront.
func studentClaims(ctx context.Context) (claims.Claims, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return claims.Claims{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}

	if clm.Role == claims.RoleAdmin {
		return claims.Claims{}, weberr.Forbidden(errors.New("administrators do not shop"))
	}

	return clm, nil
}

// HandleShow returns the cart with its items and the running total.
func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		crt, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}

			// A user without a cart row simply has an empty cart.
			crt = Cart{UserID: clm.UserID}
		}

		items, err := FetchItemsWithCourse(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		crt.Items = items
		for _, it := range items {
			crt.Total += it.Price
		}

		return web.Respond(ctx, w, crt, http.StatusOK)
	}
}

// HandleCreateItem puts a course in the cart.
func HandleCreateItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		var in ItemNew
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if err := validate.CheckID(in.CourseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if _, err := course.Fetch(ctx, db, in.CourseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return err
		}

		enrolled, err := enrollment.IsEnrolled(ctx, db, clm.UserID, in.CourseID)
		if err != nil {
			return err
		}

		if enrolled {
			err := errors.New("the course is already owned")
			return weberr.NewError(err, err.Error(), http.StatusConflict)
		}

		now := time.Now().UTC()
		it := Item{
			UserID:    clm.UserID,
			CourseID:  in.CourseID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		txn := func(tx sqlx.ExtContext) error {
			if err := Upsert(ctx, tx, clm.UserID, now); err != nil {
				return err
			}
			return CreateItem(ctx, tx, it)
		}

		if err := database.Transaction(db, txn); err != nil {
			return err
		}

		return web.Respond(ctx, w, it, http.StatusCreated)
	}
}

// HandleDeleteItem removes one course from the cart.
func HandleDeleteItem(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		if err := DeleteItem(ctx, db, clm.UserID, courseID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleDelete empties the cart.
func HandleDelete(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		if err := Delete(ctx, db, clm.UserID); err != nil {
			return err
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
