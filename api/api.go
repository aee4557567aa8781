package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/swasthik/sarathi/api/background"
	"github.com/swasthik/sarathi/api/middleware"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/config"
	"github.com/swasthik/sarathi/core/admin"
	"github.com/swasthik/sarathi/core/auth"
	"github.com/swasthik/sarathi/core/cart"
	"github.com/swasthik/sarathi/core/content"
	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/core/payment"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/esewa"
	"github.com/swasthik/sarathi/rate"
	"github.com/swasthik/sarathi/storage"
)

type APIConfig struct {
	CorsOrigin         string
	Log                logrus.FieldLogger
	DB                 *sqlx.DB
	Session            *scs.SessionManager
	Mailer             auth.Mailer
	Receipts           payment.Mailer
	TokenSecret        string
	TokenTimeout       time.Duration
	Background         *background.Background
	Esewa              *esewa.Client
	EsewaCfg           config.Esewa
	Stripe             *stripecl.API
	StripeCfg          config.Stripe
	Providers          map[string]auth.Provider
	LoginRedirectURL   string
	ActivationRequired bool
	Store              *storage.Store
	MaxUpload          int64
	MaxImageSize       int64
	LoginLimiter       *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, auth.LoadAndSave(cfg.Session))
	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Session)
	adminOnly := auth.Admin(cfg.Session)
	withClaims := auth.WithClaims(cfg.Session)
	limited := middleware.RateLimit(cfg.LoginLimiter)

	a.Handle(http.MethodPost, "/auth/signup", auth.HandleSignup(cfg.DB, cfg.Session, cfg.Mailer, cfg.TokenSecret, cfg.Background, cfg.ActivationRequired), limited)
	a.Handle(http.MethodPost, "/auth/login", auth.HandleLogin(cfg.DB, cfg.Session), limited)
	a.Handle(http.MethodPost, "/auth/logout", auth.HandleLogout(cfg.Session))
	a.Handle(http.MethodGet, "/auth/oauth-login/{provider}", auth.HandleOauthLogin(cfg.Session, cfg.Providers))
	a.Handle(http.MethodGet, "/auth/oauth-callback/{provider}", auth.HandleOauthCallback(cfg.DB, cfg.Session, cfg.Providers, cfg.LoginRedirectURL))

	a.Handle(http.MethodPost, "/tokens", auth.HandleTokenRequest(cfg.DB, cfg.Mailer, cfg.TokenSecret, cfg.Background), limited)
	a.Handle(http.MethodPost, "/tokens/activate", auth.HandleActivation(cfg.DB, cfg.Session, cfg.TokenSecret, cfg.TokenTimeout), limited)
	a.Handle(http.MethodPost, "/tokens/recover", auth.HandleRecovery(cfg.DB, cfg.TokenSecret, cfg.TokenTimeout), limited)

	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)
	a.Handle(http.MethodPut, "/users/current/password", user.HandleUpdatePassword(cfg.DB), authen)
	a.Handle(http.MethodPut, "/users/current", user.HandleUpdateCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/courses/owned", course.HandleListOwned(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{course_id}/contents", content.HandleListByCourse(cfg.DB), authen)
	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB), withClaims)
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB))
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(cfg.DB, cfg.Store, cfg.MaxImageSize), adminOnly)
	a.Handle(http.MethodPut, "/courses/{id}", course.HandleUpdate(cfg.DB, cfg.Store, cfg.MaxImageSize), adminOnly)
	a.Handle(http.MethodDelete, "/courses/{id}", course.HandleDelete(cfg.DB, cfg.Store), adminOnly)

	a.Handle(http.MethodPost, "/contents", content.HandleCreate(cfg.DB, cfg.Store, cfg.MaxUpload), adminOnly)
	a.Handle(http.MethodGet, "/contents/{id}/file", content.HandleShowFile(cfg.DB, cfg.Store), authen)
	a.Handle(http.MethodDelete, "/contents/{id}", content.HandleDelete(cfg.DB, cfg.Store), adminOnly)

	a.Handle(http.MethodGet, "/cart", cart.HandleShow(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart", cart.HandleDelete(cfg.DB), authen)
	a.Handle(http.MethodPut, "/cart/items", cart.HandleCreateItem(cfg.DB), authen)
	a.Handle(http.MethodDelete, "/cart/items/{course_id}", cart.HandleDeleteItem(cfg.DB), authen)

	a.Handle(http.MethodPost, "/payments/esewa/checkout-cart", payment.HandleEsewaCheckoutCart(cfg.DB, cfg.Esewa), authen)
	a.Handle(http.MethodPost, "/payments/esewa/checkout", payment.HandleEsewaCheckout(cfg.DB, cfg.Esewa), authen)
	a.Handle(http.MethodGet, "/payments/esewa/success", payment.HandleEsewaSuccess(cfg.DB, cfg.Esewa, cfg.EsewaCfg, cfg.Background, cfg.Receipts))
	a.Handle(http.MethodGet, "/payments/esewa/failure", payment.HandleEsewaFailure(cfg.DB, cfg.EsewaCfg))
	a.Handle(http.MethodPost, "/payments/stripe/checkout", payment.HandleStripeCheckout(cfg.DB, cfg.Stripe, cfg.StripeCfg), authen)
	a.Handle(http.MethodPost, "/payments/stripe/capture", payment.HandleStripeCapture(cfg.DB, cfg.StripeCfg, cfg.Background, cfg.Receipts))
	a.Handle(http.MethodGet, "/payments", payment.HandleList(cfg.DB), authen)

	a.Handle(http.MethodPut, "/enrollments/{course_id}/progress", enrollment.HandleUpdateProgress(cfg.DB), authen)

	a.Handle(http.MethodGet, "/admin/dashboard", admin.HandleDashboard(cfg.DB), adminOnly)
	a.Handle(http.MethodGet, "/admin/analytics", admin.HandleAnalytics(cfg.DB), adminOnly)
	a.Handle(http.MethodGet, "/admin/students/{id}", admin.HandleShowStudent(cfg.DB), adminOnly)
	a.Handle(http.MethodGet, "/admin/students", admin.HandleListStudents(cfg.DB), adminOnly)

	// Thumbnails are public assets. Course content never goes through
	// here: its delivery handler checks enrollment first.
	images := http.FileServer(http.Dir(cfg.Store.Dir(storage.KindImage)))
	a.Router.PathPrefix("/uploads/images/").Handler(http.StripPrefix("/uploads/images/", images))

	return a.Router
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
