// Package payhere implements the PayHere hosted-checkout protocol: building
// signed checkout parameter sets and verifying the MD5 signature carried by
// asynchronous payment notifications.
package payhere

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// Payment status codes reported by PayHere in the notify callback.
const (
	StatusSuccess     = 2
	StatusPending     = 0
	StatusCancelled   = -1
	StatusFailed      = -2
	StatusChargedBack = -3
)

// Config carries the merchant credentials and redirect URLs for one PayHere
// merchant account. It is injected at construction time, never read from the
// environment by this package.
type Config struct {
	MerchantID     string
	MerchantSecret string
	ReturnURL      string
	CancelURL      string
	NotifyURL      string
	Currency       string
	Sandbox        bool
}

// FormatAmount renders a monetary amount with exactly two decimal places.
// The same string must be used both in the checkout form and in the hash
// computation, otherwise PayHere rejects the request.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// SecretDigest returns HEX_UPPER(MD5(merchant_secret)), the inner digest of
// both the checkout hash and the notification signature.
func SecretDigest(merchantSecret string) string {
	return md5Upper(merchantSecret)
}

// CheckoutHash computes the integrity hash embedded in the hosted-checkout
// form: HEX_UPPER(MD5(merchant_id + order_id + amount + currency + SecretDigest(secret))).
// amount must already be formatted with FormatAmount.
func CheckoutHash(merchantID, orderID, amount, currency, merchantSecret string) string {
	return md5Upper(merchantID + orderID + amount + currency + SecretDigest(merchantSecret))
}

// Notification is the form-encoded payload PayHere POSTs to the notify URL.
// Fields absent from the form are left as empty strings; validation happens
// in Verify and in the billing service, not during parsing.
type Notification struct {
	MerchantID     string
	OrderID        string
	PaymentID      string
	Amount         string // payhere_amount, two-decimal string
	Currency       string // payhere_currency
	StatusCode     string
	MD5Sig         string
	Custom1        string // credits to grant, set by our own checkout form
	Custom2        string // AI credits to grant
	Method         string
	StatusMessage  string
	CardHolderName string
	CardNo         string
	CardExpiry     string
}

// ParseNotification extracts a Notification from a decoded form body.
func ParseNotification(form url.Values) Notification {
	return Notification{
		MerchantID:     form.Get("merchant_id"),
		OrderID:        form.Get("order_id"),
		PaymentID:      form.Get("payment_id"),
		Amount:         form.Get("payhere_amount"),
		Currency:       form.Get("payhere_currency"),
		StatusCode:     form.Get("status_code"),
		MD5Sig:         form.Get("md5sig"),
		Custom1:        form.Get("custom_1"),
		Custom2:        form.Get("custom_2"),
		Method:         form.Get("method"),
		StatusMessage:  form.Get("status_message"),
		CardHolderName: form.Get("card_holder_name"),
		CardNo:         form.Get("card_no"),
		CardExpiry:     form.Get("card_expiry"),
	}
}

// Sign computes the signature PayHere is expected to have attached to this
// notification: HEX_UPPER(MD5(merchant_id + order_id + amount + currency +
// status_code + SecretDigest(secret))).
func (n Notification) Sign(merchantSecret string) string {
	return md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + SecretDigest(merchantSecret))
}

// VerifySignature recomputes the local hash and compares it to the supplied
// md5sig. This is the sole authenticity gate on the notify endpoint.
func (n Notification) VerifySignature(merchantSecret string) bool {
	return n.MD5Sig != "" && n.Sign(merchantSecret) == n.MD5Sig
}

// Status parses the status_code field. ok is false for anything that is not
// an integer; callers treat that as an unknown code.
func (n Notification) Status() (code int, ok bool) {
	code, err := strconv.Atoi(n.StatusCode)
	return code, err == nil
}

// CheckoutParams is the full field set posted by the browser to the PayHere
// hosted checkout page. Field names and order follow the PayHere checkout API.
type CheckoutParams struct {
	Sandbox    bool   `json:"sandbox"`
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Hash       string `json:"hash"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Custom1    string `json:"custom_1"`
	Custom2    string `json:"custom_2"`
}
