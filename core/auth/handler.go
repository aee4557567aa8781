package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/background"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/token"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/validate"
	"golang.org/x/crypto/bcrypt"
)

// Mailer sends account lifecycle emails.
type Mailer interface {
	SendActivationToken(email, uid, token string) error
	SendRecoveryToken(email, uid, token string) error
}

const invalidLinkMsg = "the link is invalid or has expired"

type UserLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenRequest struct {
	Email string `json:"email" validate:"required,email"`
	Scope string `json:"scope" validate:"required,oneof=activate recover"`
}

type Activation struct {
	UID   string `json:"uid" validate:"required"`
	Token string `json:"token" validate:"required"`
}

type Recovery struct {
	UID             string `json:"uid" validate:"required"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

func HandleSignup(db *sqlx.DB, session *scs.SessionManager, mailer Mailer, secret string, bg *background.Background, activationRequired bool) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var su user.UserSignup
		if err := web.Decode(w, r, &su); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(su); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}

		now := time.Now().UTC()
		usr := user.User{
			ID:           validate.GenerateID(),
			Username:     su.Username,
			Email:        su.Email,
			Role:         claims.RoleUser,
			Active:       !activationRequired,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := user.Create(ctx, db, usr); err != nil {
			if errors.Is(err, user.ErrUniqueViolation) {
				return weberr.NewError(err, err.Error(), http.StatusConflict)
			}
			return fmt.Errorf("creating user: %w", err)
		}

		if activationRequired {
			bg.Add(func() error {
				tok, err := token.Make(usr, token.ScopeActivate, secret)
				if err != nil {
					return fmt.Errorf("making activation token for user[%s]: %w", usr.ID, err)
				}
				return mailer.SendActivationToken(usr.Email, token.EncodeUID(usr.ID), tok)
			})

			return web.Respond(ctx, w, usr, http.StatusCreated)
		}

		if err := login(ctx, db, session, usr); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusCreated)
	}
}

func HandleLogin(db *sqlx.DB, session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var lg UserLogin
		if err := web.Decode(w, r, &lg); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(lg); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		usr, err := user.FetchByEmail(ctx, db, lg.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NewError(err, "invalid email or password", http.StatusUnauthorized)
			}
			return fmt.Errorf("fetching user by email: %w", err)
		}

		if err := bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte(lg.Password)); err != nil {
			return weberr.NewError(err, "invalid email or password", http.StatusUnauthorized)
		}

		if !usr.Active {
			err := errors.New("account is not active")
			return weberr.NewError(err, "account has not been activated yet", http.StatusForbidden)
		}

		if err := login(ctx, db, session, usr); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

func HandleLogout(session *scs.SessionManager) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		if err := session.Destroy(ctx); err != nil {
			return fmt.Errorf("destroying session: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleTokenRequest emails an activation or recovery token. It always
// answers 202 so the endpoint cannot be used to probe which emails exist.
func HandleTokenRequest(db *sqlx.DB, mailer Mailer, secret string, bg *background.Background) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var tr TokenRequest
		if err := web.Decode(w, r, &tr); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(tr); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		usr, err := user.FetchByEmail(ctx, db, tr.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return web.Respond(ctx, w, nil, http.StatusAccepted)
			}
			return fmt.Errorf("fetching user by email: %w", err)
		}

		if tr.Scope == token.ScopeActivate && usr.Active {
			return web.Respond(ctx, w, nil, http.StatusAccepted)
		}

		scope := tr.Scope
		bg.Add(func() error {
			tok, err := token.Make(usr, scope, secret)
			if err != nil {
				return fmt.Errorf("making %s token for user[%s]: %w", scope, usr.ID, err)
			}

			uid := token.EncodeUID(usr.ID)
			if scope == token.ScopeActivate {
				return mailer.SendActivationToken(usr.Email, uid, tok)
			}
			return mailer.SendRecoveryToken(usr.Email, uid, tok)
		})

		return web.Respond(ctx, w, nil, http.StatusAccepted)
	}
}

// HandleActivation turns an emailed activation link into an active,
// logged-in account.
func HandleActivation(db *sqlx.DB, session *scs.SessionManager, secret string, timeout time.Duration) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var act Activation
		if err := web.Decode(w, r, &act); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(act); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		userID, err := token.DecodeUID(act.UID)
		if err != nil {
			return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
		}

		usr, err := user.Fetch(ctx, db, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
			}
			return fmt.Errorf("fetching user[%s]: %w", userID, err)
		}

		if err := token.Verify(usr, token.ScopeActivate, secret, act.Token, timeout); err != nil {
			return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
		}

		if err := user.Activate(ctx, db, usr.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("activating user[%s]: %w", usr.ID, err)
		}
		usr.Active = true

		if err := login(ctx, db, session, usr); err != nil {
			return err
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

// HandleRecovery lets the holder of a recovery link set a new password.
func HandleRecovery(db *sqlx.DB, secret string, timeout time.Duration) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var rec Recovery
		if err := web.Decode(w, r, &rec); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(rec); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		userID, err := token.DecodeUID(rec.UID)
		if err != nil {
			return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
		}

		usr, err := user.Fetch(ctx, db, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
			}
			return fmt.Errorf("fetching user[%s]: %w", userID, err)
		}

		if err := token.Verify(usr, token.ScopeRecover, secret, rec.Token, timeout); err != nil {
			return weberr.NewError(err, invalidLinkMsg, http.StatusBadRequest)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(rec.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing new password: %w", err)
		}

		if err := user.UpdatePasswordHash(ctx, db, usr.ID, hash, time.Now().UTC()); err != nil {
			return fmt.Errorf("updating password of user[%s]: %w", usr.ID, err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func login(ctx context.Context, db *sqlx.DB, session *scs.SessionManager, usr user.User) error {
	if err := session.RenewToken(ctx); err != nil {
		return fmt.Errorf("renewing session token: %w", err)
	}

	session.Put(ctx, userKey, usr.ID)
	session.Put(ctx, roleKey, usr.Role)

	if err := user.UpdateLastLogin(ctx, db, usr.ID, time.Now().UTC()); err != nil {
		return err
	}

	return nil
}
