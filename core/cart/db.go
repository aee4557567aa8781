package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Upsert keeps the cart row alive, bumping its version on re-use.
func Upsert(ctx context.Context, db sqlx.ExtContext, userID string, now time.Time) error {
	const q = `
	INSERT INTO carts
		(user_id, created_at, updated_at)
	VALUES
		($1, $2, $2)
	ON CONFLICT (user_id) DO UPDATE
	SET updated_at = $2, version = carts.version + 1`

	if _, err := db.ExecContext(ctx, q, userID, now); err != nil {
		return fmt.Errorf("upserting cart of user[%s]: %w", userID, err)
	}

	return nil
}

func Fetch(ctx context.Context, db sqlx.ExtContext, userID string) (Cart, error) {
	const q = `
	SELECT user_id, created_at, updated_at, version
	FROM carts
	WHERE user_id = $1`

	var crt Cart
	if err := sqlx.GetContext(ctx, db, &crt, q, userID); err != nil {
		return Cart{}, fmt.Errorf("selecting cart of user[%s]: %w", userID, err)
	}

	return crt, nil
}

// CreateItem adds a course to the cart. Adding it twice is a no-op.
func CreateItem(ctx context.Context, db sqlx.ExtContext, it Item) error {
	const q = `
	INSERT INTO cart_items
		(user_id, course_id, created_at, updated_at)
	VALUES
		(:user_id, :course_id, :created_at, :updated_at)
	ON CONFLICT (user_id, course_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, db, q, it); err != nil {
		return fmt.Errorf("inserting cart item: %w", err)
	}

	return nil
}

func FetchItems(ctx context.Context, db sqlx.ExtContext, userID string) ([]Item, error) {
	const q = `
	SELECT *
	FROM cart_items
	WHERE user_id = $1
	ORDER BY created_at`

	items := []Item{}
	if err := sqlx.SelectContext(ctx, db, &items, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart items of user[%s]: %w", userID, err)
	}

	return items, nil
}

func FetchItemsWithCourse(ctx context.Context, db sqlx.ExtContext, userID string) ([]ItemCourse, error) {
	const q = `
	SELECT i.*, c.title, c.price, c.category, c.thumbnail_url
	FROM cart_items AS i
	JOIN courses AS c ON i.course_id = c.course_id
	WHERE i.user_id = $1
	ORDER BY i.created_at`

	items := []ItemCourse{}
	if err := sqlx.SelectContext(ctx, db, &items, q, userID); err != nil {
		return nil, fmt.Errorf("selecting cart items of user[%s]: %w", userID, err)
	}

	return items, nil
}

func DeleteItem(ctx context.Context, db sqlx.ExtContext, userID, courseID string) error {
	const q = `
	DELETE FROM cart_items
	WHERE user_id = $1 AND course_id = $2`

	if _, err := db.ExecContext(ctx, q, userID, courseID); err != nil {
		return fmt.Errorf("deleting cart item[%s,%s]: %w", userID, courseID, err)
	}

	return nil
}

// Delete flushes every item in the user's cart.
func Delete(ctx context.Context, db sqlx.ExtContext, userID string) error {
	const q = `
	DELETE FROM cart_items
	WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("deleting cart items of user[%s]: %w", userID, err)
	}

	return nil
}
