package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/swasthik/sarathi/api/background"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/config"
	"github.com/swasthik/sarathi/core/cart"
	"github.com/swasthik/sarathi/core/claims"
	"github.com/swasthik/sarathi/core/course"
	"github.com/swasthik/sarathi/core/enrollment"
	"github.com/swasthik/sarathi/core/user"
	"github.com/swasthik/sarathi/database"
	"github.com/swasthik/sarathi/esewa"
	"github.com/swasthik/sarathi/validate"
)

func studentClaims(ctx context.Context) (claims.Claims, error) {
	clm, err := claims.Get(ctx)
	if err != nil {
		return claims.Claims{}, weberr.NotAuthorized(errors.New("user not authenticated"))
	}

	if clm.Role == claims.RoleAdmin {
		return claims.Claims{}, weberr.Forbidden(errors.New("administrators do not buy courses"))
	}

	return clm, nil
}

// checkout resolves the cart into the courses to pay for, skipping the
// ones the user already owns.
func checkout(ctx context.Context, db *sqlx.DB, userID string) ([]course.Course, error) {
	items, err := cart.FetchItems(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("fetching cart items: %w", err)
	}

	courses := make([]course.Course, 0, len(items))
	for _, it := range items {
		owned, err := enrollment.IsEnrolled(ctx, db, userID, it.CourseID)
		if err != nil {
			return nil, err
		}

		if owned {
			continue
		}

		c, err := course.Fetch(ctx, db, it.CourseID)
		if err != nil {
			return nil, fmt.Errorf("fetching course[%s]: %w", it.CourseID, err)
		}

		courses = append(courses, c)
	}

	return courses, nil
}

// prepare writes one pending payment per course under a single
// transaction id, the pid the gateway echoes back on its callbacks.
func prepare(ctx context.Context, db *sqlx.DB, userID, txnID, provider string, courses []course.Course) error {
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		now := time.Now().UTC()
		for _, c := range courses {
			pay := Payment{
				ID:            validate.GenerateID(),
				UserID:        userID,
				CourseID:      c.ID,
				Amount:        c.Price,
				TransactionID: txnID,
				Provider:      provider,
				Status:        StatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}

			if err := Create(ctx, tx, pay); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("preparing transaction[%s] for user[%s]: %w", txnID, userID, err)
	}
	return nil
}

// fulfill settles a verified transaction: pending payments are marked
// successful with the gateway reference, the buyer is enrolled and the
// bought items leave the cart, all in one transaction. It returns the
// fulfilled payments, or none if the transaction had no pending rows.
func fulfill(ctx context.Context, db *sqlx.DB, txnID, providerRef string) ([]Payment, error) {
	var fulfilled []Payment
	err := database.Transaction(db, func(tx sqlx.ExtContext) error {
		pays, err := fetchPendingLocked(ctx, tx, txnID)
		if err != nil {
			return err
		}

		if len(pays) == 0 {
			return nil
		}

		now := time.Now().UTC()
		if err := markSuccess(ctx, tx, txnID, providerRef, now); err != nil {
			return err
		}

		for _, p := range pays {
			enr := enrollment.Enrollment{
				UserID:    p.UserID,
				CourseID:  p.CourseID,
				CreatedAt: now,
				UpdatedAt: now,
			}

			if err := enrollment.Create(ctx, tx, enr); err != nil {
				return fmt.Errorf("enrolling user[%s] in course[%s]: %w", p.UserID, p.CourseID, err)
			}

			if err := cart.DeleteItem(ctx, tx, p.UserID, p.CourseID); err != nil {
				return fmt.Errorf("flushing cart item[%s]: %w", p.CourseID, err)
			}
		}

		fulfilled = pays
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("fulfilling transaction[%s]: %w", txnID, err)
	}
	return fulfilled, nil
}

// queueReceipt mails the buyer a receipt off the request path. The
// money has already moved, so failures are logged, never surfaced.
func queueReceipt(db *sqlx.DB, bg *background.Background, mailer Mailer, pays []Payment, ref string) {
	bg.Add(func() error {
		ctx := context.Background()

		usr, err := user.Fetch(ctx, db, pays[0].UserID)
		if err != nil {
			return fmt.Errorf("fetching receipt recipient: %w", err)
		}

		var total int
		titles := make([]string, 0, len(pays))
		for _, p := range pays {
			c, err := course.Fetch(ctx, db, p.CourseID)
			if err != nil {
				return fmt.Errorf("fetching receipt course[%s]: %w", p.CourseID, err)
			}

			titles = append(titles, c.Title)
			total += p.Amount
		}

		return mailer.SendReceipt(usr.Email, titles, total, ref)
	})
}

// esewaCheckout prepares the pending payments and hands the browser the
// auto-submitting gateway form.
func esewaCheckout(ctx context.Context, w http.ResponseWriter, db *sqlx.DB, gw *esewa.Client, userID string, courses []course.Course) error {
	txnID := validate.GenerateID()
	if err := prepare(ctx, db, userID, txnID, ProviderEsewa, courses); err != nil {
		return fmt.Errorf("creating the payments on the database: %w", err)
	}

	var total int
	for _, c := range courses {
		total += c.Price
	}

	page, err := gw.CheckoutForm(esewa.Order{TransactionID: txnID, Amount: total})
	if err != nil {
		return fmt.Errorf("rendering gateway form: %w", err)
	}

	return web.RespondHTML(ctx, w, page, http.StatusOK)
}

// HandleEsewaCheckout begins a buy-now eSewa payment for one course.
func HandleEsewaCheckout(db *sqlx.DB, gw *esewa.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		var in CheckoutSingle
		if err := web.Decode(w, r, &in); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(in); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		if err := validate.CheckID(in.CourseID); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusBadRequest)
		}

		crs, err := course.Fetch(ctx, db, in.CourseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return weberr.NotFound(err)
			}
			return err
		}

		enrolled, err := enrollment.IsEnrolled(ctx, db, clm.UserID, crs.ID)
		if err != nil {
			return err
		}

		if enrolled {
			err := errors.New("the course is already owned")
			return weberr.NewError(err, err.Error(), http.StatusConflict)
		}

		return esewaCheckout(ctx, w, db, gw, clm.UserID, []course.Course{crs})
	}
}

// HandleEsewaCheckoutCart begins an eSewa payment for the whole cart.
func HandleEsewaCheckoutCart(db *sqlx.DB, gw *esewa.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		courses, err := checkout(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching details of cart items: %w", err)
		}

		if len(courses) == 0 {
			err := errors.New("no items to checkout")
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		return esewaCheckout(ctx, w, db, gw, clm.UserID, courses)
	}
}

// HandleEsewaSuccess is the browser callback of a completed gateway
// payment. Its query parameters are attacker-controlled, so nothing is
// fulfilled until the gateway itself confirms the transaction.
func HandleEsewaSuccess(db *sqlx.DB, gw *esewa.Client, cfg config.Esewa, bg *background.Background, mailer Mailer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		txnID := web.Query(r, "oid")
		amt := web.Query(r, "amt")
		refID := web.Query(r, "refId")
		if txnID == "" || amt == "" || refID == "" {
			return weberr.BadRequest(errors.New("missing gateway callback parameters"))
		}

		pays, err := FetchByTransaction(ctx, db, txnID)
		if err != nil {
			return err
		}

		if len(pays) == 0 {
			return weberr.NotFound(fmt.Errorf("unknown transaction[%s]", txnID))
		}

		var total int
		var pending bool
		settled := true
		for _, p := range pays {
			if p.Status == StatusPending {
				pending = true
				total += p.Amount
			}
			if p.Status != StatusSuccess {
				settled = false
			}
		}

		// A reload of the callback page after the transaction closed.
		if !pending {
			if settled {
				return web.Redirect(ctx, w, r, cfg.SuccessRedirect)
			}
			return web.Redirect(ctx, w, r, cfg.FailureRedirect)
		}

		// The claimed amount must match what the payments were prepared
		// for. A mismatch marks nothing: the rows stay pending for
		// reconciliation.
		if claimed, err := strconv.ParseFloat(amt, 64); err != nil || claimed != float64(total) {
			return web.Redirect(ctx, w, r, cfg.FailureRedirect)
		}

		if err := gw.Verify(ctx, txnID, total, refID); err != nil {
			if errors.Is(err, esewa.ErrVerification) {
				return web.Redirect(ctx, w, r, cfg.FailureRedirect)
			}
			return fmt.Errorf("verifying transaction[%s]: %w", txnID, err)
		}

		fulfilled, err := fulfill(ctx, db, txnID, refID)
		if err != nil {
			return fmt.Errorf("the payment was verified but its fulfillment failed: %w", err)
		}

		if len(fulfilled) > 0 {
			queueReceipt(db, bg, mailer, fulfilled, refID)
		}

		return web.Redirect(ctx, w, r, cfg.SuccessRedirect)
	}
}

// HandleEsewaFailure is the browser callback of an abandoned or
// rejected gateway payment.
func HandleEsewaFailure(db *sqlx.DB, cfg config.Esewa) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		txnID := web.Query(r, "pid")
		if txnID == "" {
			return weberr.BadRequest(errors.New("missing gateway callback parameters"))
		}

		if err := MarkFailed(ctx, db, txnID, time.Now().UTC()); err != nil {
			return err
		}

		return web.Redirect(ctx, w, r, cfg.FailureRedirect)
	}
}

// HandleStripeCheckout begins a cart checkout through Stripe Checkout.
func HandleStripeCheckout(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := studentClaims(ctx)
		if err != nil {
			return err
		}

		courses, err := checkout(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("fetching details of cart items: %w", err)
		}

		if len(courses) == 0 {
			err := errors.New("no items to checkout")
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(courses))
		for _, c := range courses {
			li = append(li, &stripe.CheckoutSessionLineItemParams{
				Quantity: stripe.Int64(1),

				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String("npr"),
					TaxBehavior: stripe.String("inclusive"),
					UnitAmount:  stripe.Int64(int64(c.Price) * 100),

					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(c.Title),
						Description: stripe.String(c.Description),
					},
				},
			})
		}

		params := &stripe.CheckoutSessionParams{
			SuccessURL: stripe.String(cfg.SuccessURL),
			CancelURL:  stripe.String(cfg.CancelURL),
			Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
			LineItems:  li,
		}

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session: %w", err)
		}

		// The session id doubles as the transaction id: it is what the
		// webhook event carries back.
		if err := prepare(ctx, db, clm.UserID, s.ID, ProviderStripe, courses); err != nil {
			return fmt.Errorf("creating the payments on the database: %w", err)
		}

		return web.Respond(ctx, w, s.URL, http.StatusOK)
	}
}

// HandleStripeCapture fulfills payments on Stripe's signed
// checkout.session.completed event.
func HandleStripeCapture(db *sqlx.DB, cfg config.Stripe, bg *background.Background, mailer Mailer) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		if event.Type != "checkout.session.completed" {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		var session stripe.CheckoutSession
		if err = json.Unmarshal(event.Data.Raw, &session); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
		}

		if session.Mode != stripe.CheckoutSessionModePayment {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}

		ref := session.ID
		if session.PaymentIntent != nil {
			ref = session.PaymentIntent.ID
		}

		fulfilled, err := fulfill(ctx, db, session.ID, ref)
		if err != nil {
			return fmt.Errorf("the payment succeeded but its fulfillment failed: %w", err)
		}

		if len(fulfilled) > 0 {
			queueReceipt(db, bg, mailer, fulfilled, ref)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

// HandleList returns the caller's payment history. Admins get every
// payment with the buyer's username attached.
func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		if clm.Role == claims.RoleAdmin {
			pays, err := FetchAll(ctx, db)
			if err != nil {
				return err
			}

			return web.Respond(ctx, w, pays, http.StatusOK)
		}

		pays, err := FetchByUser(ctx, db, clm.UserID)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, pays, http.StatusOK)
	}
}
