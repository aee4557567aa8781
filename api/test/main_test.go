package test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/swasthik/sarathi/api"
	"github.com/swasthik/sarathi/api/background"
	"github.com/swasthik/sarathi/config"
	"github.com/swasthik/sarathi/core/auth"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/database"
	"github.com/swasthik/sarathi/esewa"
	"github.com/swasthik/sarathi/rate"
	"github.com/swasthik/sarathi/storage"
	"github.com/swasthik/sarathi/validate"
	"golang.org/x/crypto/bcrypt"
)

var (
	dbHost string
	rootDB *sqlx.DB
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("connecting to docker: %v", err)
	}

	res, err := pool.Run("postgres", "15-alpine", []string{"POSTGRES_PASSWORD=postgres"})
	if err != nil {
		log.Fatalf("starting postgres container: %v", err)
	}

	dbHost = net.JoinHostPort("localhost", res.GetPort("5432/tcp"))

	if err := pool.Retry(func() error {
		db, err := database.Open(config.DB{
			User:       "postgres",
			Password:   "postgres",
			Host:       dbHost,
			Name:       "postgres",
			DisableTLS: true,
		})
		if err != nil {
			return err
		}

		rootDB = db
		return db.Ping()
	}); err != nil {
		log.Fatalf("connecting to postgres container: %v", err)
	}

	code := m.Run()

	if err := pool.Purge(res); err != nil {
		log.Printf("purging postgres container: %v", err)
	}

	os.Exit(code)
}

type TestEnv struct {
	DB              *sqlx.DB
	Server          *httptest.Server
	URL             string
	Store           *storage.Store
	AdminEmail      string
	AdminPass       string
	UserEmail       string
	UserPass        string
	UserID          string
	WebhookSecret   string
	SuccessRedirect string
	FailureRedirect string
	Esewa           *mockEsewa
	Stripe          *mockStripe
	Mail            *mailRecorder
}

// NewTestEnv spins up a full API stack against its own database, with
// the gateways and the mailer replaced by local doubles.
func NewTestEnv(t *testing.T, dbname string) (*TestEnv, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := rootDB.ExecContext(ctx, "CREATE DATABASE "+dbname); err != nil {
		return nil, fmt.Errorf("creating database %s: %w", dbname, err)
	}

	db, err := database.Open(config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       dbHost,
		Name:       dbname,
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", dbname, err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	env := &TestEnv{
		DB:            db,
		AdminEmail:    "admin@test.dev",
		AdminPass:     "adminpass1",
		UserEmail:     "student@test.dev",
		UserPass:      "studentpass1",
		WebhookSecret: "whsec_test",
		Esewa:         &mockEsewa{verifyOK: true},
		Stripe:        &mockStripe{},
		Mail:          &mailRecorder{},
	}

	if err := user.EnsureAdmin(ctx, db, "admin", env.AdminEmail, env.AdminPass); err != nil {
		return nil, fmt.Errorf("seeding admin: %w", err)
	}

	env.UserID, err = seedUser(ctx, db, "student", env.UserEmail, env.UserPass)
	if err != nil {
		return nil, fmt.Errorf("seeding user: %w", err)
	}

	store := storage.New(t.TempDir())
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("preparing upload dirs: %w", err)
	}
	env.Store = store

	esewaSrv := httptest.NewServer(env.Esewa.handle())
	t.Cleanup(esewaSrv.Close)

	stripeSrv := httptest.NewServer(env.Stripe.handle())
	t.Cleanup(stripeSrv.Close)

	strp := &stripecl.API{}
	strp.Init("sk_test_sarathi", &stripe.Backends{
		API: stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(stripeSrv.URL),
		}),
	})

	esewaCfg := config.Esewa{
		MerchantCode:    "EPAYTEST",
		PayURL:          esewaSrv.URL + "/epay/main",
		VerifyURL:       esewaSrv.URL + "/epay/transrec",
		SuccessURL:      "http://localhost:3000/payments/esewa/success",
		FailureURL:      "http://localhost:3000/payments/esewa/failure",
		SuccessRedirect: "http://localhost:8080/dashboard",
		FailureRedirect: "http://localhost:8080/cart",
		Timeout:         5 * time.Second,
	}
	env.SuccessRedirect = esewaCfg.SuccessRedirect
	env.FailureRedirect = esewaCfg.FailureRedirect

	gateway := esewa.NewClient(esewa.Config{
		MerchantCode: esewaCfg.MerchantCode,
		PayURL:       esewaCfg.PayURL,
		VerifyURL:    esewaCfg.VerifyURL,
		SuccessURL:   esewaCfg.SuccessURL,
		FailureURL:   esewaCfg.FailureURL,
		Timeout:      esewaCfg.Timeout,
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	session := scs.New()
	session.Lifetime = 24 * time.Hour

	bg := background.New(logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bg.Shutdown(ctx)
	})

	limiter := rate.New(1000, rate.Every(time.Millisecond), time.Minute)
	t.Cleanup(limiter.Stop)

	mux := api.APIMux(api.APIConfig{
		Log:                logger,
		DB:                 db,
		Session:            session,
		Mailer:             env.Mail,
		Receipts:           env.Mail,
		TokenSecret:        "test-secret",
		TokenTimeout:       time.Hour,
		Background:         bg,
		Esewa:              gateway,
		EsewaCfg:           esewaCfg,
		Stripe:             strp,
		StripeCfg:          config.Stripe{WebhookSecret: env.WebhookSecret},
		Providers:          map[string]auth.Provider{},
		LoginRedirectURL:   "http://localhost:8080/dashboard",
		ActivationRequired: false,
		Store:              store,
		MaxUpload:          32 << 20,
		MaxImageSize:       4 << 20,
		LoginLimiter:       limiter,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	srv.Client().Jar = jar

	env.Server = srv
	env.URL = srv.URL

	return env, nil
}

// Client returns the jar-backed client holding the active session.
func (te *TestEnv) Client() *http.Client {
	return te.Server.Client()
}

func (te *TestEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	r, err := http.NewRequest(method, te.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	w, err := te.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func (te *TestEnv) doJSON(t *testing.T, method, path, body string) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	return te.do(t, method, path, rd, "application/json")
}

// noRedirect shares the session jar but stops at the first 3xx, so
// tests can assert on redirect targets.
func (te *TestEnv) noRedirect() *http.Client {
	return &http.Client{
		Jar: te.Client().Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// enroll links a user to a course directly. Tests that exercise the
// purchase path itself go through the payment callbacks instead.
func enroll(t *testing.T, db *sqlx.DB, userID, courseID string) {
	t.Helper()

	now := time.Now().UTC()
	enr := enrollment.Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := enrollment.Create(context.Background(), db, enr); err != nil {
		t.Fatal(err)
	}
}

func Login(srv *httptest.Server, email, password string) error {
	in := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)

	w, err := srv.Client().Post(srv.URL+"/auth/login", "application/json", strings.NewReader(in))
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		return fmt.Errorf("login: status code %s", w.Status)
	}
	return nil
}

func Logout(srv *httptest.Server) error {
	w, err := srv.Client().Post(srv.URL+"/auth/logout", "application/json", nil)
	if err != nil {
		return err
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusNoContent {
		return fmt.Errorf("logout: status code %s", w.Status)
	}
	return nil
}

func seedUser(ctx context.Context, db *sqlx.DB, username, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	usr := user.User{
		ID:           validate.GenerateID(),
		Username:     username,
		Email:        email,
		Role:         claims.RoleUser,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := user.Create(ctx, db, usr); err != nil {
		return "", err
	}
	return usr.ID, nil
}

// mailRecorder captures outgoing mail so tests can fish tokens and
// receipts out of it instead of talking to sendgrid.
type mailRecorder struct {
	mu          sync.Mutex
	activations []tokenMail
	recoveries  []tokenMail
	receipts    []receiptMail
}

type tokenMail struct {
	Email string
	UID   string
	Token string
}

type receiptMail struct {
	Email   string
	Courses []string
	Amount  int
	Ref     string
}

func (m *mailRecorder) SendActivationToken(email, uid, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activations = append(m.activations, tokenMail{Email: email, UID: uid, Token: token})
	return nil
}

func (m *mailRecorder) SendRecoveryToken(email, uid, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries = append(m.recoveries, tokenMail{Email: email, UID: uid, Token: token})
	return nil
}

func (m *mailRecorder) SendReceipt(email string, courses []string, amount int, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, receiptMail{Email: email, Courses: courses, Amount: amount, Ref: ref})
	return nil
}

// waitActivation polls for the nth activation mail, since delivery runs
// on the background worker.
func (m *mailRecorder) waitActivation(t *testing.T, n int) tokenMail {
	t.Helper()
	return waitFor(t, func() (tokenMail, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.activations) < n {
			return tokenMail{}, false
		}
		return m.activations[n-1], true
	})
}

func (m *mailRecorder) waitRecovery(t *testing.T, n int) tokenMail {
	t.Helper()
	return waitFor(t, func() (tokenMail, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.recoveries) < n {
			return tokenMail{}, false
		}
		return m.recoveries[n-1], true
	})
}

func (m *mailRecorder) waitReceipt(t *testing.T, n int) receiptMail {
	t.Helper()
	return waitFor(t, func() (receiptMail, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.receipts) < n {
			return receiptMail{}, false
		}
		return m.receipts[n-1], true
	})
}

// waitReceiptRef polls for the receipt carrying the given gateway
// reference.
func (m *mailRecorder) waitReceiptRef(t *testing.T, ref string) receiptMail {
	t.Helper()
	return waitFor(t, func() (receiptMail, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, r := range m.receipts {
			if r.Ref == ref {
				return r, true
			}
		}
		return receiptMail{}, false
	})
}

func (m *mailRecorder) countActivations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activations)
}

func (m *mailRecorder) countRecoveries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recoveries)
}

func (m *mailRecorder) countReceipts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.receipts)
}

func waitFor[T any](t *testing.T, probe func() (T, bool)) T {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := probe(); ok {
			return v
		}
		time.Sleep(20 * time.Millisecond)
	}

	var zero T
	t.Fatal("timed out waiting for background delivery")
	return zero
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, file []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}

	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatal(err)
		}
	}

	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	return &buf, mw.FormDataContentType()
}
