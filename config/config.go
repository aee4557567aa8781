package config

import "time"

type Config struct {
	Web     Web
	Cors    Cors
	DB      DB
	Session Session
	Auth    Auth
	Admin   Admin
	Uploads Uploads
	Esewa   Esewa
	Stripe  Stripe
	Oauth   Oauth
	Email   Email
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:3000"`
	ReadTimeout     time.Duration `conf:"default:5m"`
	WriteTimeout    time.Duration `conf:"default:10m"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type Cors struct {
	Origin string
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost"`
	Name       string `conf:"default:sarathi"`
	DisableTLS bool   `conf:"default:true"`
}

type Session struct {
	Lifetime time.Duration `conf:"default:24h"`
}

type Auth struct {
	// ActivationRequired gates login behind an emailed activation link.
	ActivationRequired bool          `conf:"default:false"`
	SecretKey          string        `conf:"default:dev-secret-key-change-in-production,mask"`
	TokenTimeout       time.Duration `conf:"default:72h"`
	LimitBurst         int           `conf:"default:10"`
	LimitExpiry        time.Duration `conf:"default:1h"`
	LimitInterval      time.Duration `conf:"default:1s"`
}

// Admin seeds the back-office account on startup when it is missing.
type Admin struct {
	Username string `conf:"default:admin"`
	Email    string `conf:"default:admin@swasthikloksewa.com"`
	Password string `conf:"default:changeme123,mask"`
}

type Uploads struct {
	Dir          string `conf:"default:uploads"`
	MaxSize      int64  `conf:"default:524288000"`
	MaxImageSize int64  `conf:"default:10485760"`
}

type Esewa struct {
	MerchantCode string `conf:"default:EPAYTEST"`
	PayURL       string `conf:"default:https://uat.esewa.com.np/epay/main"`
	VerifyURL    string `conf:"default:https://uat.esewa.com.np/epay/transrec"`

	// SuccessURL and FailureURL are this service's own callback routes,
	// handed to the gateway as the su/fu form fields.
	SuccessURL string `conf:"default:http://localhost:3000/payments/esewa/success"`
	FailureURL string `conf:"default:http://localhost:3000/payments/esewa/failure"`

	// SuccessRedirect and FailureRedirect are where the browser lands
	// after the callback has been processed.
	SuccessRedirect string        `conf:"default:http://localhost:8080/dashboard"`
	FailureRedirect string        `conf:"default:http://localhost:8080/cart"`
	Timeout         time.Duration `conf:"default:15s"`
}

type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string `conf:"default:http://localhost:8080/dashboard"`
	CancelURL     string `conf:"default:http://localhost:8080/cart"`
}

type Oauth struct {
	DiscoveryTimeout time.Duration `conf:"default:30s"`
	LoginRedirectURL string        `conf:"default:http://localhost:8080/dashboard"`
	Google           OauthProvider
}

type OauthProvider struct {
	Client      string
	Secret      string `conf:"mask"`
	URL         string `conf:"default:https://accounts.google.com"`
	RedirectURL string `conf:"default:http://localhost:3000/auth/oauth-callback/google"`
}

type Email struct {
	SendgridKey   string `conf:"mask"`
	FromName      string `conf:"default:Swasthik Loksewa Sarathi"`
	FromAddress   string `conf:"default:no-reply@swasthikloksewa.com"`
	AppName       string `conf:"default:Swasthik Loksewa Sarathi"`
	ActivationURL string `conf:"default:http://localhost:8080/activate"`
	RecoveryURL   string `conf:"default:http://localhost:8080/recover"`
}
