package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jmoiron/sqlx"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/random"
	"github.com/swasthik/sarathi/validate"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

const stateKey = "oauthState"

type ProviderConfig struct {
	Name        string
	Client      string
	Secret      string
	URL         string
	RedirectURL string
}

type Provider struct {
	Config   oauth2.Config
	Verifier *oidc.IDTokenVerifier
}

// MakeProviders discovers the endpoints of the configured OpenID Connect
// issuers and builds a verifier for each of them.
func MakeProviders(ctx context.Context, cfgs []ProviderConfig) (map[string]Provider, error) {
	provs := make(map[string]Provider, len(cfgs))

	for _, cfg := range cfgs {
		p, err := oidc.NewProvider(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("discovering provider %s: %w", cfg.Name, err)
		}

		provs[cfg.Name] = Provider{
			Config: oauth2.Config{
				ClientID:     cfg.Client,
				ClientSecret: cfg.Secret,
				Endpoint:     p.Endpoint(),
				RedirectURL:  cfg.RedirectURL,
				Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
			},
			Verifier: p.Verifier(&oidc.Config{ClientID: cfg.Client}),
		}
	}

	return provs, nil
}

func HandleOauthLogin(session *scs.SessionManager, providers map[string]Provider) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := providers[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("unknown oauth provider %q", name))
		}

		state, err := random.StringSecure(32)
		if err != nil {
			return fmt.Errorf("generating oauth state: %w", err)
		}

		session.Put(ctx, stateKey, state)

		return web.Redirect(ctx, w, r, prov.Config.AuthCodeURL(state))
	}
}

// HandleOauthCallback completes the code exchange, checks the identity
// the provider vouches for and logs the matching account in, creating
// it on first sight.
func HandleOauthCallback(db *sqlx.DB, session *scs.SessionManager, providers map[string]Provider, redirectURL string) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		name := web.Param(r, "provider")
		prov, ok := providers[name]
		if !ok {
			return weberr.NotFound(fmt.Errorf("unknown oauth provider %q", name))
		}

		state := session.PopString(ctx, stateKey)
		if state == "" || state != web.Query(r, "state") {
			return weberr.BadRequest(errors.New("oauth state mismatch"))
		}

		code := web.Query(r, "code")
		if code == "" {
			return weberr.BadRequest(errors.New("missing authorization code"))
		}

		tok, err := prov.Config.Exchange(ctx, code)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("exchanging authorization code: %w", err))
		}

		rawID, ok := tok.Extra("id_token").(string)
		if !ok {
			return weberr.BadRequest(errors.New("token response is missing the id_token"))
		}

		idTok, err := prov.Verifier.Verify(ctx, rawID)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("verifying id token: %w", err))
		}

		var profile struct {
			Email    string `json:"email"`
			Verified bool   `json:"email_verified"`
		}
		if err := idTok.Claims(&profile); err != nil {
			return weberr.BadRequest(fmt.Errorf("parsing id token claims: %w", err))
		}

		if !profile.Verified {
			return weberr.Forbidden(errors.New("the provider has not verified the email"))
		}

		usr, err := findOrCreate(ctx, db, profile.Email)
		if err != nil {
			return err
		}

		// The issuer vouched for the email, which is all activation asks.
		if !usr.Active {
			if err := user.Activate(ctx, db, usr.ID, time.Now().UTC()); err != nil {
				return fmt.Errorf("activating user[%s]: %w", usr.ID, err)
			}
			usr.Active = true
		}

		if err := login(ctx, db, session, usr); err != nil {
			return err
		}

		return web.Redirect(ctx, w, r, redirectURL)
	}
}

func findOrCreate(ctx context.Context, db *sqlx.DB, email string) (user.User, error) {
	usr, err := user.FetchByEmail(ctx, db, email)
	if err == nil {
		return usr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return user.User{}, fmt.Errorf("fetching user by email: %w", err)
	}

	// The account authenticates through the provider: store an unusable
	// random password that recovery can later replace.
	pw, err := random.StringSecure(24)
	if err != nil {
		return user.User{}, fmt.Errorf("generating placeholder password: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return user.User{}, fmt.Errorf("hashing placeholder password: %w", err)
	}

	base := usernameFromEmail(email)
	username := base

	for try := 0; ; try++ {
		now := time.Now().UTC()
		usr = user.User{
			ID:           validate.GenerateID(),
			Username:     username,
			Email:        email,
			Role:         claims.RoleUser,
			Active:       true,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err := user.Create(ctx, db, usr)
		if err == nil {
			return usr, nil
		}
		if !errors.Is(err, user.ErrUniqueViolation) || try == 4 {
			return user.User{}, fmt.Errorf("creating user: %w", err)
		}

		username = base + "_" + random.String(6)
	}
}

var invalidUserChars = regexp.MustCompile(`[^\w]`)

func usernameFromEmail(email string) string {
	local := email
	if i := strings.Index(email, "@"); i > 0 {
		local = email[:i]
	}

	name := invalidUserChars.ReplaceAllString(local, "_")
	if len(name) > 30 {
		name = name[:30]
	}
	for len(name) < 3 {
		name += "_"
	}

	return name
}
