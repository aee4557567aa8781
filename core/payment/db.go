package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

func Create(ctx context.Context, db sqlx.ExtContext, pay Payment) error {
	const q = `
	INSERT INTO payments
		(payment_id, user_id, course_id, amount, transaction_id, provider, provider_ref, status, created_at, updated_at)
	VALUES
		(:payment_id, :user_id, :course_id, :amount, :transaction_id, :provider, :provider_ref, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, pay); err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}

	return nil
}

func FetchByTransaction(ctx context.Context, db sqlx.ExtContext, txnID string) ([]Payment, error) {
	const q = `
	SELECT *
	FROM payments
	WHERE transaction_id = $1
	ORDER BY created_at`

	pays := []Payment{}
	if err := sqlx.SelectContext(ctx, db, &pays, q, txnID); err != nil {
		return nil, fmt.Errorf("selecting payments of transaction[%s]: %w", txnID, err)
	}

	return pays, nil
}

// fetchPendingLocked selects the pending rows of a transaction with a
// row lock, so concurrent callbacks fulfill a transaction only once.
func fetchPendingLocked(ctx context.Context, tx sqlx.ExtContext, txnID string) ([]Payment, error) {
	const q = `
	SELECT *
	FROM payments
	WHERE transaction_id = $1 AND status = 'pending'
	FOR UPDATE`

	pays := []Payment{}
	if err := sqlx.SelectContext(ctx, tx, &pays, q, txnID); err != nil {
		return nil, fmt.Errorf("locking payments of transaction[%s]: %w", txnID, err)
	}

	return pays, nil
}

func markSuccess(ctx context.Context, tx sqlx.ExtContext, txnID, providerRef string, now time.Time) error {
	const q = `
	UPDATE payments
	SET status = 'success', provider_ref = $2, updated_at = $3
	WHERE transaction_id = $1 AND status = 'pending'`

	if _, err := tx.ExecContext(ctx, q, txnID, providerRef, now); err != nil {
		return fmt.Errorf("marking payments of transaction[%s] successful: %w", txnID, err)
	}

	return nil
}

func MarkFailed(ctx context.Context, db sqlx.ExtContext, txnID string, now time.Time) error {
	const q = `
	UPDATE payments
	SET status = 'failed', updated_at = $2
	WHERE transaction_id = $1 AND status = 'pending'`

	if _, err := db.ExecContext(ctx, q, txnID, now); err != nil {
		return fmt.Errorf("marking payments of transaction[%s] failed: %w", txnID, err)
	}

	return nil
}

func FetchByUser(ctx context.Context, db sqlx.ExtContext, userID string) ([]PaymentDetail, error) {
	const q = `
	SELECT p.*, c.title
	FROM payments AS p
	JOIN courses AS c ON p.course_id = c.course_id
	WHERE p.user_id = $1
	ORDER BY p.created_at DESC`

	pays := []PaymentDetail{}
	if err := sqlx.SelectContext(ctx, db, &pays, q, userID); err != nil {
		return nil, fmt.Errorf("selecting payments of user[%s]: %w", userID, err)
	}

	return pays, nil
}

func FetchAll(ctx context.Context, db sqlx.ExtContext) ([]PaymentDetail, error) {
	const q = `
	SELECT p.*, c.title, u.username
	FROM payments AS p
	JOIN courses AS c ON p.course_id = c.course_id
	JOIN users AS u ON p.user_id = u.user_id
	ORDER BY p.created_at DESC`

	pays := []PaymentDetail{}
	if err := sqlx.SelectContext(ctx, db, &pays, q); err != nil {
		return nil, fmt.Errorf("selecting payments: %w", err)
	}

	return pays, nil
}
