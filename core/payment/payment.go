// Package payment tracks money moving through the gateways. A checkout
// prepares one pending row per course under a shared transaction id;
// only a gateway-confirmed transaction fulfills them into enrollments.
package payment

import "time"

const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

const (
	ProviderEsewa  = "esewa"
	ProviderStripe = "stripe"
)

type Payment struct {
	ID            string    `json:"id" db:"payment_id"`
	UserID        string    `json:"userId" db:"user_id"`
	CourseID      string    `json:"courseId" db:"course_id"`
	Amount        int       `json:"amount" db:"amount"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	Provider      string    `json:"provider" db:"provider"`
	ProviderRef   string    `json:"providerRef" db:"provider_ref"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// CheckoutSingle is the payload of a buy-now checkout.
type CheckoutSingle struct {
	CourseID string `json:"courseId" validate:"required"`
}

// PaymentDetail is a payment joined with its course title. Username is
// filled only on the admin listing.
type PaymentDetail struct {
	Payment
	Title    string `json:"title" db:"title"`
	Username string `json:"username,omitempty" db:"username"`
}

// Mailer sends the receipt of a fulfilled transaction.
type Mailer interface {
	SendReceipt(email string, courses []string, amount int, ref string) error
}
