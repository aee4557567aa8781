package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexedwards/scs/v2"
	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/swasthik/sarathi/api"
	"github.com/swasthik/sarathi/api/background"
	"github.com/swasthik/sarathi/config"
	"github.com/swasthik/sarathi/core/auth"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/database"
	"github.com/swasthik/sarathi/email"
	"github.com/swasthik/sarathi/esewa"
	"github.com/swasthik/sarathi/rate"
	"github.com/swasthik/sarathi/storage"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	// The .env file is a development convenience.
	_ = godotenv.Load()

	if err := Run(log); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func Run(logger *logrus.Logger) error {
	logger.Infof("starting server")
	defer logger.Info("shutdown complete")

	const prefix = "SARATHI"
	var cfg config.Config
	if _, err := conf.Parse(prefix, &cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	lw := logger.Writer()
	defer lw.Close()
	errLog := log.New(lw, "", 0)

	db, err := database.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to open db connection: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}

	store := storage.New(cfg.Uploads.Dir)
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to prepare the upload dirs: %w", err)
	}

	if err := user.EnsureAdmin(context.Background(), db, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return fmt.Errorf("failed to seed the admin account: %w", err)
	}

	sessionManager := scs.New()
	sessionManager.Lifetime = cfg.Session.Lifetime

	links := email.Links{
		ActivationURL: cfg.Email.ActivationURL,
		RecoveryURL:   cfg.Email.RecoveryURL,
		Validity:      cfg.Auth.TokenTimeout,
	}
	mail := email.New(cfg.Email.SendgridKey, cfg.Email.FromName, cfg.Email.FromAddress, cfg.Email.AppName, links)

	bg := background.New(logger)

	gateway := esewa.NewClient(esewa.Config{
		MerchantCode: cfg.Esewa.MerchantCode,
		PayURL:       cfg.Esewa.PayURL,
		VerifyURL:    cfg.Esewa.VerifyURL,
		SuccessURL:   cfg.Esewa.SuccessURL,
		FailureURL:   cfg.Esewa.FailureURL,
		Timeout:      cfg.Esewa.Timeout,
	})

	strp := &stripecl.API{}
	strp.Init(cfg.Stripe.APISecret, nil)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Oauth.DiscoveryTimeout)
	defer cancel()
	google := cfg.Oauth.Google
	oauthProvs, err := auth.MakeProviders(ctx, []auth.ProviderConfig{
		{Name: "google", Client: google.Client, Secret: google.Secret, URL: google.URL, RedirectURL: google.RedirectURL},
	})
	if err != nil {
		return fmt.Errorf("failed to discover oauth providers: %w", err)
	}

	limiter := rate.New(cfg.Auth.LimitBurst, rate.Every(cfg.Auth.LimitInterval), cfg.Auth.LimitExpiry)
	defer limiter.Stop()

	mux := api.APIMux(api.APIConfig{
		CorsOrigin:         cfg.Cors.Origin,
		Log:                logger,
		DB:                 db,
		Session:            sessionManager,
		Mailer:             mail,
		Receipts:           mail,
		TokenSecret:        cfg.Auth.SecretKey,
		TokenTimeout:       cfg.Auth.TokenTimeout,
		Background:         bg,
		Esewa:              gateway,
		EsewaCfg:           cfg.Esewa,
		Stripe:             strp,
		StripeCfg:          cfg.Stripe,
		Providers:          oauthProvs,
		LoginRedirectURL:   cfg.Oauth.LoginRedirectURL,
		ActivationRequired: cfg.Auth.ActivationRequired,
		Store:              store,
		MaxUpload:          cfg.Uploads.MaxSize,
		MaxImageSize:       cfg.Uploads.MaxImageSize,
		LoginLimiter:       limiter,
	})

	api := http.Server{
		Handler:      mux,
		Addr:         cfg.Web.Address,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     errLog,
	}

	serverErrors := make(chan error, 1)

	go func() {
		logger.Infof("starting api router at %s", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Infof("shutting down: signal %s", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}

		if err := bg.Shutdown(ctx); err != nil {
			return fmt.Errorf("could not complete all background tasks: %w", err)
		}
	}
	return nil
}
