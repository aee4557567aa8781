package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/storage"
	"github.com/swasthik/sarathi/validate"
)

func HandleCreate(db *sqlx.DB, store *storage.Store, maxUpload int64) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := web.DecodeForm(w, r, maxUpload); err != nil {
			return weberr.BadRequest(err)
		}

		displayOrder := 0
		if v := r.FormValue("display_order"); v != "" {
			var err error
			if displayOrder, err = strconv.Atoi(v); err != nil {
				return weberr.NewError(err, "display_order must be a whole number", http.StatusUnprocessableEntity)
			}
		}

		cn := ContentNew{
			CourseID:     r.FormValue("course_id"),
			Title:        strings.TrimSpace(r.FormValue("title")),
			Kind:         r.FormValue("kind"),
			DisplayOrder: displayOrder,
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if err := validate.CheckID(cn.CourseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		found, err := courseExists(ctx, db, cn.CourseID)
		if err != nil {
			return fmt.Errorf("checking course[%s]: %w", cn.CourseID, err)
		}
		if !found {
			return weberr.NotFound(fmt.Errorf("course[%s] does not exist", cn.CourseID))
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return weberr.NewError(err, "a file is required", http.StatusUnprocessableEntity)
			}
			return weberr.BadRequest(fmt.Errorf("reading file: %w", err))
		}
		defer file.Close()

		path, size, err := store.Save(Kinds[cn.Kind], header.Filename, file)
		if err != nil {
			if errors.Is(err, storage.ErrUnsupported) {
				return weberr.NewError(err, "the file type is not allowed for this kind", http.StatusUnprocessableEntity)
			}
			return fmt.Errorf("saving file: %w", err)
		}

		now := time.Now().UTC()
		ct := Content{
			ID:           validate.GenerateID(),
			CourseID:     cn.CourseID,
			Title:        cn.Title,
			Kind:         cn.Kind,
			Path:         path,
			Size:         size,
			DisplayOrder: cn.DisplayOrder,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := Create(ctx, db, ct); err != nil {
			store.Remove(path)
			return fmt.Errorf("creating content: %w", err)
		}

		return web.Respond(ctx, w, ct, http.StatusCreated)
	}
}

func HandleListByCourse(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courseID := web.Param(r, "course_id")
		if err := validate.CheckID(courseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if clm.Role != claims.RoleAdmin {
			enrolled, err := enrollment.IsEnrolled(ctx, db, clm.UserID, courseID)
			if err != nil {
				return fmt.Errorf("checking enrollment: %w", err)
			}
			if !enrolled {
				return weberr.Forbidden(errors.New("user is not enrolled in the course"))
			}
		}

		contents, err := FetchByCourse(ctx, db, courseID)
		if err != nil {
			return fmt.Errorf("fetching contents of course[%s]: %w", courseID, err)
		}

		return web.Respond(ctx, w, contents, http.StatusOK)
	}
}

// HandleShowFile streams a content file to an enrolled student. Videos
// play inline with range support, documents download as attachments.
func HandleShowFile(db *sqlx.DB, store *storage.Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		contentID := web.Param(r, "id")
		if err := validate.CheckID(contentID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		// Admins manage files from the dashboard, not the student player.
		if clm.Role == claims.RoleAdmin {
			return web.Redirect(ctx, w, r, "/admin/dashboard")
		}

		ct, err := Fetch(ctx, db, contentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching content[%s]: %w", contentID, err)
		}

		enrolled, err := enrollment.IsEnrolled(ctx, db, clm.UserID, ct.CourseID)
		if err != nil {
			return fmt.Errorf("checking enrollment: %w", err)
		}
		if !enrolled {
			return weberr.Forbidden(errors.New("user is not enrolled in the course"))
		}

		f, err := store.Open(ct.Path)
		if err != nil {
			return fmt.Errorf("opening file of content[%s]: %w", contentID, err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("reading file info of content[%s]: %w", contentID, err)
		}

		if ct.Kind != "video" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", info.Name()))
		}

		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return nil
	}
}

func HandleDelete(db *sqlx.DB, store *storage.Store) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		contentID := web.Param(r, "id")
		if err := validate.CheckID(contentID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		ct, err := Fetch(ctx, db, contentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching content[%s]: %w", contentID, err)
		}

		if err := store.Remove(ct.Path); err != nil {
			return fmt.Errorf("removing file of content[%s]: %w", contentID, err)
		}

		if err := Delete(ctx, db, contentID); err != nil {
			return fmt.Errorf("deleting content[%s]: %w", contentID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}
