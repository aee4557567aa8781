// Package esewa implements the legacy eSewa ePay merchant flow: an
// auto-submitting checkout form towards the pay endpoint and the
// server-to-server transaction verification call.
package esewa

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrVerification indicates the gateway did not confirm the transaction.
var ErrVerification = errors.New("transaction could not be verified")

var formTmpl = template.Must(template.New("esewa").Parse(`<!DOCTYPE html>
<html>
<head><title>Redirecting to eSewa</title></head>
<body onload="document.forms['esewa'].submit()">
<form name="esewa" action="{{.Action}}" method="POST">
<input type="hidden" name="amt" value="{{.Amount}}">
<input type="hidden" name="psc" value="{{.ServiceCharge}}">
<input type="hidden" name="pdc" value="{{.DeliveryCharge}}">
<input type="hidden" name="txAmt" value="{{.TaxAmount}}">
<input type="hidden" name="tAmt" value="{{.Total}}">
<input type="hidden" name="pid" value="{{.TransactionID}}">
<input type="hidden" name="scd" value="{{.Merchant}}">
<input type="hidden" name="su" value="{{.SuccessURL}}">
<input type="hidden" name="fu" value="{{.FailureURL}}">
<noscript><button type="submit">Continue to eSewa</button></noscript>
</form>
</body>
</html>
`))

type Config struct {
	MerchantCode string
	PayURL       string
	VerifyURL    string
	SuccessURL   string
	FailureURL   string
	Timeout      time.Duration
}

type Client struct {
	merchant   string
	payURL     string
	verifyURL  string
	successURL string
	failureURL string
	http       *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		merchant:   cfg.MerchantCode,
		payURL:     cfg.PayURL,
		verifyURL:  cfg.VerifyURL,
		successURL: cfg.SuccessURL,
		failureURL: cfg.FailureURL,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

// Order carries the amounts of a single checkout. All values are in
// whole rupees. The pid sent to the gateway is the TransactionID.
type Order struct {
	TransactionID  string
	Amount         int
	ServiceCharge  int
	DeliveryCharge int
	TaxAmount      int
}

// CheckoutForm renders the self-submitting HTML form that hands the
// browser over to the gateway's pay endpoint.
func (c *Client) CheckoutForm(ord Order) ([]byte, error) {
	data := struct {
		Action         string
		Merchant       string
		TransactionID  string
		Amount         int
		ServiceCharge  int
		DeliveryCharge int
		TaxAmount      int
		Total          int
		SuccessURL     string
		FailureURL     string
	}{
		Action:         c.payURL,
		Merchant:       c.merchant,
		TransactionID:  ord.TransactionID,
		Amount:         ord.Amount,
		ServiceCharge:  ord.ServiceCharge,
		DeliveryCharge: ord.DeliveryCharge,
		TaxAmount:      ord.TaxAmount,
		Total:          ord.Amount + ord.ServiceCharge + ord.DeliveryCharge + ord.TaxAmount,
		SuccessURL:     c.successURL,
		FailureURL:     c.failureURL,
	}

	var buf bytes.Buffer
	if err := formTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering checkout form: %w", err)
	}

	return buf.Bytes(), nil
}

type verifyResponse struct {
	ResponseCode string `xml:"response_code"`
}

// Verify asks the gateway whether it really processed the transaction
// with the given reference for the given amount. Success callbacks must
// not be trusted until this check passes.
func (c *Client) Verify(ctx context.Context, transactionID string, amount int, refID string) error {
	form := url.Values{}
	form.Set("amt", strconv.Itoa(amount))
	form.Set("scd", c.merchant)
	form.Set("rid", refID)
	form.Set("pid", transactionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building verification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("requesting verification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting verification: status %s", resp.Status)
	}

	var vr verifyResponse
	if err := xml.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return fmt.Errorf("decoding verification response: %w", err)
	}

	if !strings.EqualFold(strings.TrimSpace(vr.ResponseCode), "Success") {
		return ErrVerification
	}

	return nil
}
