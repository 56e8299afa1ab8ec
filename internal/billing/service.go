package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hirelanka/billing-service/internal/payhere"
)

var (
	ErrInvalidRequest   = errors.New("subscription id and company id are required")
	ErrMerchantMismatch = errors.New("notification merchant id does not match configured merchant")
	ErrInvalidSignature = errors.New("notification signature verification failed")
)

// CheckoutRequest is the browser-initiated purchase request.
type CheckoutRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required,uuid"`
	CompanyID      string `json:"companyId" validate:"required,uuid"`
}

type Service interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*payhere.CheckoutParams, error)
	ProcessNotification(ctx context.Context, n payhere.Notification) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByCompanyID(ctx context.Context, companyID uuid.UUID) ([]Order, error)
	GetSettledOrderIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
}

type service struct {
	repo     Repository
	gateway  payhere.Config
	validate *validator.Validate
}

func NewService(repo Repository, gateway payhere.Config) Service {
	return &service{
		repo:     repo,
		gateway:  gateway,
		validate: validator.New(),
	}
}

// InitiateCheckout persists a pending order for the requested plan and builds
// the signed parameter set the browser posts to the PayHere checkout page.
// Amount, currency and credit counts are copied verbatim from the plan.
func (s *service) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*payhere.CheckoutParams, error) {
	if err := s.validate.Struct(req); err != nil {
		log.Warn().Err(err).Msg("service: invalid checkout request")
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	planID, err := uuid.FromString(req.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed subscription id", ErrInvalidRequest)
	}
	companyID, err := uuid.FromString(req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed company id", ErrInvalidRequest)
	}

	plan, err := s.repo.GetPlanByID(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			log.Warn().Stringer("plan_id", planID).Msg("service: checkout for unknown plan")
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch plan: %w", err)
	}

	company, err := s.repo.GetCompanyByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			log.Warn().Stringer("company_id", companyID).Msg("service: checkout for unknown company")
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("service: failed to fetch company: %w", err)
	}

	// Plans without an explicit currency bill in the merchant account's
	// configured currency.
	currency := plan.Currency
	if currency == "" {
		currency = s.gateway.Currency
	}

	order := &Order{
		CompanyID: company.ID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Currency:  currency,
		Status:    OrderPending,
		Credits:   plan.Credits,
		AICredits: plan.AICredits,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		log.Error().Err(err).Stringer("company_id", companyID).Msg("service: failed to create order")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	amount := payhere.FormatAmount(order.Amount)
	params := &payhere.CheckoutParams{
		Sandbox:    s.gateway.Sandbox,
		MerchantID: s.gateway.MerchantID,
		ReturnURL:  s.gateway.ReturnURL,
		CancelURL:  s.gateway.CancelURL,
		NotifyURL:  s.gateway.NotifyURL,
		OrderID:    order.ID.String(),
		Items:      fmt.Sprintf("%s plan subscription", plan.Name),
		Amount:     amount,
		Currency:   order.Currency,
		Hash:       payhere.CheckoutHash(s.gateway.MerchantID, order.ID.String(), amount, order.Currency, s.gateway.MerchantSecret),
		FirstName:  company.FirstName,
		LastName:   company.LastName,
		Email:      company.Email,
		Phone:      company.Phone,
		Address:    company.Address,
		City:       company.City,
		Country:    company.Country,
		Custom1:    strconv.Itoa(plan.Credits),
		Custom2:    strconv.Itoa(plan.AICredits),
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("company_id", company.ID).
		Str("plan", plan.Name).
		Str("amount", amount).
		Str("currency", order.Currency).
		Msg("service: checkout initiated")

	return params, nil
}

// ProcessNotification handles the asynchronous PayHere callback. The gates
// run strictly in order: merchant identity, signature, order lookup, status
// mapping. Nothing is read from or written to storage before the signature
// check passes.
func (s *service) ProcessNotification(ctx context.Context, n payhere.Notification) error {
	if n.MerchantID != s.gateway.MerchantID {
		log.Warn().Str("merchant_id", n.MerchantID).Str("order_id", n.OrderID).Msg("service: notification merchant id mismatch")
		return ErrMerchantMismatch
	}

	if !n.VerifySignature(s.gateway.MerchantSecret) {
		log.Warn().Str("order_id", n.OrderID).Str("status_code", n.StatusCode).Msg("service: notification signature mismatch")
		return ErrInvalidSignature
	}

	orderID, err := uuid.FromString(n.OrderID)
	if err != nil {
		// Order ids are always UUIDs, so a malformed id cannot reference an order.
		log.Warn().Str("order_id", n.OrderID).Msg("service: notification references malformed order id")
		return ErrOrderNotFound
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Msg("service: notification for unknown order")
			return ErrOrderNotFound
		}
		return fmt.Errorf("service: failed to fetch order for notification: %w", err)
	}

	code, ok := n.Status()
	if !ok {
		log.Warn().Stringer("order_id", orderID).Str("status_code", n.StatusCode).Msg("service: notification with unparsable status code, acknowledging without effect")
		return nil
	}

	switch code {
	case payhere.StatusSuccess:
		return s.settle(ctx, order, n)
	case payhere.StatusPending:
		// An order transitions out of pending exactly once; a redelivered
		// earlier notification must not regress a settled or failed order.
		if order.Status != OrderPending {
			log.Info().Stringer("order_id", order.ID).Str("status", order.Status.String()).Msg("service: stale pending notification for finalized order, acknowledging")
			return nil
		}
		// Payment still in flight on the provider side; record provider ids only.
		if err := s.repo.UpdateOrderStatus(ctx, order.ID, OrderPending, n.PaymentID, n.Method); err != nil {
			return fmt.Errorf("service: failed to record pending notification: %w", err)
		}
		log.Info().Stringer("order_id", order.ID).Str("payment_id", n.PaymentID).Msg("service: payment pending")
		return nil
	case payhere.StatusCancelled, payhere.StatusFailed, payhere.StatusChargedBack:
		if order.Status != OrderPending {
			log.Info().Stringer("order_id", order.ID).Str("status", order.Status.String()).Int("status_code", code).Msg("service: failure notification for finalized order, acknowledging")
			return nil
		}
		if err := s.repo.UpdateOrderStatus(ctx, order.ID, OrderFailed, n.PaymentID, n.Method); err != nil {
			return fmt.Errorf("service: failed to mark order failed: %w", err)
		}
		log.Info().Stringer("order_id", order.ID).Int("status_code", code).Str("status_message", n.StatusMessage).Msg("service: payment failed")
		return nil
	default:
		log.Warn().Stringer("order_id", order.ID).Int("status_code", code).Msg("service: unknown payment status code, acknowledging without effect")
		return nil
	}
}

// settle applies a verified success notification. Credits come from the
// notification's custom fields, which our own checkout form placed there;
// they default to 0 when absent or unparsable.
func (s *service) settle(ctx context.Context, order *Order, n payhere.Notification) error {
	if order.Status == OrderCompleted {
		log.Info().Stringer("order_id", order.ID).Msg("service: duplicate success notification for completed order, acknowledging")
		return nil
	}

	settlement := Settlement{
		CompanyID: order.CompanyID,
		PlanID:    order.PlanID,
		PaymentID: n.PaymentID,
		Method:    n.Method,
		Credits:   parseIntOrZero(n.Custom1),
		AICredits: parseIntOrZero(n.Custom2),
	}

	applied, err := s.repo.SettleOrder(ctx, order.ID, settlement)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", order.ID).Stringer("company_id", order.CompanyID).Str("payment_id", n.PaymentID).Msg("service: settlement failed")
		return fmt.Errorf("service: failed to settle order: %w", err)
	}
	if !applied {
		// Another delivery of the same notification won the race.
		log.Info().Stringer("order_id", order.ID).Msg("service: order already settled, acknowledging")
		return nil
	}

	log.Info().
		Stringer("order_id", order.ID).
		Stringer("company_id", order.CompanyID).
		Str("payment_id", n.PaymentID).
		Int("credits", settlement.Credits).
		Int("ai_credits", settlement.AICredits).
		Msg("service: order settled, subscription activated")

	return nil
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return order, nil
}

func (s *service) GetOrdersByCompanyID(ctx context.Context, companyID uuid.UUID) ([]Order, error) {
	orders, err := s.repo.GetOrdersByCompanyID(ctx, companyID)
	if err != nil {
		log.Error().Err(err).Stringer("company_id", companyID).Msg("service: failed to fetch company orders")
		return nil, fmt.Errorf("service: failed to fetch company orders: %w", err)
	}

	return orders, nil
}

// GetSettledOrderIDs returns the company's append-only settled-order history,
// oldest first. Only successful settlements appear here.
func (s *service) GetSettledOrderIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.GetCompanyOrderIDs(ctx, companyID)
	if err != nil {
		log.Error().Err(err).Stringer("company_id", companyID).Msg("service: failed to fetch settled order history")
		return nil, fmt.Errorf("service: failed to fetch settled order history: %w", err)
	}

	return ids, nil
}

func parseIntOrZero(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
