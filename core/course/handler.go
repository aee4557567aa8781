package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/content"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/storage"
	"github.com/swasthik/sarathi/validate"
)

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var (
			courses []Course
			err     error
		)

		// A search query beats a category filter, like the storefront expects.
		switch {
		case web.Query(r, "query") != "":
			courses, err = Search(ctx, db, web.Query(r, "query"))
		case web.Query(r, "category") != "":
			courses, err = FetchByCategory(ctx, db, web.Query(r, "category"))
		default:
			courses, err = FetchAll(ctx, db)
		}
		if err != nil {
			return fmt.Errorf("fetching courses: %w", err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", courseID, err)
		}

		det := CourseDetail{Course: c}

		det.Contents, err = content.FetchByCourse(ctx, db, courseID)
		if err != nil {
			return fmt.Errorf("fetching contents of course[%s]: %w", courseID, err)
		}

		if clm, err := claims.Get(ctx); err == nil {
			det.Enrolled, err = enrollment.IsEnrolled(ctx, db, clm.UserID, courseID)
			if err != nil {
				return fmt.Errorf("checking enrollment: %w", err)
			}

			det.InCart, err = isInCart(ctx, db, clm.UserID, courseID)
			if err != nil {
				return fmt.Errorf("checking cart: %w", err)
			}
		}

		return web.Respond(ctx, w, det, http.StatusOK)
	}
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courses, err := FetchOwned(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching courses of user[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

func HandleCreate(db *sqlx.DB, store *storage.Store, maxImageSize int64) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		cn, err := decodeCourseForm(w, r, maxImageSize)
		if err != nil {
			return err
		}

		thumbURL, err := saveThumbnail(store, r)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		c := Course{
			ID:           validate.GenerateID(),
			Title:        cn.Title,
			Description:  cn.Description,
			Price:        cn.Price,
			Category:     cn.Category,
			ThumbnailURL: thumbURL,
			InstructorID: clm.UserID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := Create(ctx, db, c); err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, c, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB, store *storage.Store, maxImageSize int64) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", courseID, err)
		}

		cn, err := decodeCourseForm(w, r, maxImageSize)
		if err != nil {
			return err
		}

		thumbURL, err := saveThumbnail(store, r)
		if err != nil {
			return err
		}

		c.Title = cn.Title
		c.Description = cn.Description
		c.Price = cn.Price
		c.Category = cn.Category
		if thumbURL != "" {
			c.ThumbnailURL = thumbURL
		}
		c.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, c); err != nil {
			return fmt.Errorf("updating course[%s]: %w", courseID, err)
		}

		return web.Respond(ctx, w, c, http.StatusOK)
	}
}

func HandleDelete(db *sqlx.DB, store *storage.Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		c, err := Fetch(ctx, db, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", courseID, err)
		}

		contents, err := content.FetchByCourse(ctx, db, courseID)
		if err != nil {
			return fmt.Errorf("fetching contents of course[%s]: %w", courseID, err)
		}

		for _, ct := range contents {
			if err := store.Remove(ct.Path); err != nil {
				return fmt.Errorf("removing file of content[%s]: %w", ct.ID, err)
			}
		}

		if rel := strings.TrimPrefix(c.ThumbnailURL, "/uploads/"); rel != c.ThumbnailURL && rel != "" {
			if err := store.Remove(rel); err != nil {
				return fmt.Errorf("removing thumbnail of course[%s]: %w", courseID, err)
			}
		}

		// Content rows, enrollments, cart items and payments cascade.
		if err := Delete(ctx, db, courseID); err != nil {
			return fmt.Errorf("deleting course[%s]: %w", courseID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func decodeCourseForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (CourseNew, error) {
	if err := web.DecodeForm(w, r, maxBytes); err != nil {
		return CourseNew{}, weberr.BadRequest(err)
	}

	price, err := strconv.Atoi(r.FormValue("price"))
	if err != nil {
		return CourseNew{}, weberr.NewError(err, "price must be a whole number", http.StatusUnprocessableEntity)
	}

	cn := CourseNew{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Price:       price,
		Category:    r.FormValue("category"),
	}

	if err := validate.Check(cn); err != nil {
		return CourseNew{}, weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
	}

	return cn, nil
}

func saveThumbnail(store *storage.Store, r *http.Request) (string, error) {
	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", weberr.BadRequest(fmt.Errorf("reading thumbnail: %w", err))
	}
	defer file.Close()

	path, _, err := store.Save(storage.KindImage, header.Filename, file)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupported) {
			return "", weberr.NewError(err, "the thumbnail must be an image", http.StatusUnprocessableEntity)
		}
		return "", fmt.Errorf("saving thumbnail: %w", err)
	}

	return "/uploads/" + filepath.ToSlash(path), nil
}
