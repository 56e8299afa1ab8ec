package billing

import (
	"time"

	"github.com/gofrs/uuid"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

func (os OrderStatus) String() string {
	return string(os)
}

type SubscriptionStatus string

const (
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionActive   SubscriptionStatus = "active"
)

func (ss SubscriptionStatus) String() string {
	return string(ss)
}

// Order is one purchase attempt linking a company to a subscription plan.
// Amount, currency and the granted credit counts are copied from the plan at
// creation time and never change afterward; only status, provider ids and
// timestamps mutate post-creation. Orders are never deleted.
type Order struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	CompanyID uuid.UUID   `json:"company_id" db:"company_id"`
	PlanID    uuid.UUID   `json:"plan_id" db:"plan_id"`
	Amount    float64     `json:"amount" db:"amount"`
	Currency  string      `json:"currency" db:"currency"`
	Status    OrderStatus `json:"status" db:"status"`
	PaymentID string      `json:"payment_id,omitempty" db:"payment_id"` // provider transaction id
	Method    string      `json:"method,omitempty" db:"method"`         // provider payment method
	Credits   int         `json:"credits" db:"credits"`
	AICredits int         `json:"ai_credits" db:"ai_credits"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Company is the billing-relevant subset of a company record: checkout
// contact details plus the subscription/credits state that settlement
// overwrites on a successful payment.
type Company struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	FirstName          string             `json:"first_name" db:"first_name"`
	LastName           string             `json:"last_name" db:"last_name"`
	Email              string             `json:"email" db:"email"`
	Phone              string             `json:"phone" db:"phone"`
	Address            string             `json:"address" db:"address"`
	City               string             `json:"city" db:"city"`
	Country            string             `json:"country" db:"country"`
	SubscriptionID     *uuid.UUID         `json:"subscription_id,omitempty" db:"subscription_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	Credits            int                `json:"credits" db:"credits"`
	AICredits          int                `json:"ai_credits" db:"ai_credits"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// Plan is read-only reference data; plans are maintained outside this service.
type Plan struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Price     float64   `json:"price" db:"price"`
	Currency  string    `json:"currency" db:"currency"`
	Credits   int       `json:"credits" db:"credits"`
	AICredits int       `json:"ai_credits" db:"ai_credits"`
}
