package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrPlanNotFound    = errors.New("subscription plan not found")
	ErrCompanyNotFound = errors.New("company not found")
)

// Settlement carries the company-side effects of a successful payment.
// Credits and AICredits are the values to overwrite on the company record;
// PaymentID and Method are provider metadata recorded on the order.
type Settlement struct {
	CompanyID uuid.UUID
	PlanID    uuid.UUID
	PaymentID string
	Method    string
	Credits   int
	AICredits int
}

type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByCompanyID(ctx context.Context, companyID uuid.UUID) ([]Order, error)
	GetPlanByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	GetCompanyByID(ctx context.Context, id uuid.UUID) (*Company, error)
	GetCompanyOrderIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, paymentID, method string) error
	SettleOrder(ctx context.Context, orderID uuid.UUID, settlement Settlement) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, order *Order) error {
	if order.ID == uuid.Nil {
		genID, err := uuid.NewV4()
		if err != nil {
			log.Error().Err(err).Msg("repository: failed to generate order ID")
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		order.ID = genID
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	query := `
		INSERT INTO billing.orders (id, company_id, plan_id, amount, currency, status, payment_id, method, credits, ai_credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query,
		order.ID,
		order.CompanyID,
		order.PlanID,
		order.Amount,
		order.Currency,
		string(order.Status),
		order.PaymentID,
		order.Method,
		order.Credits,
		order.AICredits,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	query := `
		SELECT id, company_id, plan_id, amount, currency, status, payment_id, method, credits, ai_credits, created_at, updated_at
		FROM billing.orders
		WHERE id = $1
	`

	var order Order
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&order.ID,
		&order.CompanyID,
		&order.PlanID,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.PaymentID,
		&order.Method,
		&order.Credits,
		&order.AICredits,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}

		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	return &order, nil
}

func (r *postgresRepository) GetOrdersByCompanyID(ctx context.Context, companyID uuid.UUID) ([]Order, error) {
	query := `
		SELECT id, company_id, plan_id, amount, currency, status, payment_id, method, credits, ai_credits, created_at, updated_at
		FROM billing.orders
		WHERE company_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for company id %s: %w", companyID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var order Order
		err := rows.Scan(
			&order.ID,
			&order.CompanyID,
			&order.PlanID,
			&order.Amount,
			&order.Currency,
			&order.Status,
			&order.PaymentID,
			&order.Method,
			&order.Credits,
			&order.AICredits,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order for company id %s: %w", companyID, err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders for company id %s: %w", companyID, err)
	}

	return orders, nil
}

func (r *postgresRepository) GetPlanByID(ctx context.Context, planID uuid.UUID) (*Plan, error) {
	query := `
		SELECT id, name, price, currency, credits, ai_credits
		FROM billing.plans
		WHERE id = $1
	`

	var plan Plan
	err := r.db.QueryRow(ctx, query, planID).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Price,
		&plan.Currency,
		&plan.Credits,
		&plan.AICredits,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}

		return nil, fmt.Errorf("repository: failed to select plan by id %s: %w", planID, err)
	}

	return &plan, nil
}

func (r *postgresRepository) GetCompanyByID(ctx context.Context, companyID uuid.UUID) (*Company, error) {
	query := `
		SELECT id, name, first_name, last_name, email, phone, address, city, country,
		       subscription_id, subscription_status, credits, ai_credits, created_at, updated_at
		FROM billing.companies
		WHERE id = $1
	`

	var company Company
	err := r.db.QueryRow(ctx, query, companyID).Scan(
		&company.ID,
		&company.Name,
		&company.FirstName,
		&company.LastName,
		&company.Email,
		&company.Phone,
		&company.Address,
		&company.City,
		&company.Country,
		&company.SubscriptionID,
		&company.SubscriptionStatus,
		&company.Credits,
		&company.AICredits,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompanyNotFound
		}

		return nil, fmt.Errorf("repository: failed to select company by id %s: %w", companyID, err)
	}

	return &company, nil
}

func (r *postgresRepository) GetCompanyOrderIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT order_id
		FROM billing.company_orders
		WHERE company_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query settled orders for company id %s: %w", companyID, err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository: failed to scan settled order id for company id %s: %w", companyID, err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating settled order ids for company id %s: %w", companyID, err)
	}

	return ids, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status OrderStatus, paymentID, method string) error {
	query := `
		UPDATE billing.orders
		SET status = $1,
		    payment_id = COALESCE(NULLIF($2, ''), payment_id),
		    method = COALESCE(NULLIF($3, ''), method),
		    updated_at = $4
		WHERE id = $5
	`

	cmdTag, err := r.db.Exec(ctx, query,
		string(status),
		paymentID,
		method,
		time.Now().UTC(),
		orderID,
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Str("new_status", string(status)).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %s: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("order_id", orderID).Str("new_status", string(status)).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}

	return nil
}

// SettleOrder applies a successful payment in a single transaction: the order
// transitions to completed, the company's subscription and credit balances are
// overwritten, and the order id is appended to the company's settled-order
// history. The order update is conditional on the order not already being
// completed, which makes redelivered success notifications harmless: applied
// reports false and no company write happens.
func (r *postgresRepository) SettleOrder(ctx context.Context, orderID uuid.UUID, settlement Settlement) (applied bool, err error) {
	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return false, fmt.Errorf("repository: failed to begin settlement transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("order_id", orderID).Msg("repository: panic during SettleOrder, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback settlement after panic")
			}
			panic(p)
		} else if err != nil {
			log.Warn().Err(err).Stringer("order_id", orderID).Msg("repository: settlement transaction failed, rolling back")
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", orderID).Msg("repository: failed to rollback settlement transaction")
			}
		} else {
			if commitErr := tx.Commit(ctx); commitErr != nil {
				log.Error().Err(commitErr).Stringer("order_id", orderID).Msg("repository: failed to commit settlement transaction")
				err = fmt.Errorf("repository: failed to commit settlement transaction: %w", commitErr)
				applied = false
			}
		}
	}()

	now := time.Now().UTC()

	orderQuery := `
		UPDATE billing.orders
		SET status = $1,
		    payment_id = COALESCE(NULLIF($2, ''), payment_id),
		    method = COALESCE(NULLIF($3, ''), method),
		    updated_at = $4
		WHERE id = $5 AND status <> $1
	`
	cmdTag, err := tx.Exec(ctx, orderQuery,
		string(OrderCompleted),
		settlement.PaymentID,
		settlement.Method,
		now,
		orderID,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to complete order %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Already completed by an earlier notification.
		return false, nil
	}

	companyQuery := `
		UPDATE billing.companies
		SET subscription_id = $1,
		    subscription_status = $2,
		    credits = $3,
		    ai_credits = $4,
		    updated_at = $5
		WHERE id = $6
	`
	cmdTag, err = tx.Exec(ctx, companyQuery,
		settlement.PlanID,
		string(SubscriptionActive),
		settlement.Credits,
		settlement.AICredits,
		now,
		settlement.CompanyID,
	)
	if err != nil {
		return false, fmt.Errorf("repository: failed to credit company %s for order %s: %w", settlement.CompanyID, orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, ErrCompanyNotFound
	}

	historyQuery := `
		INSERT INTO billing.company_orders (company_id, order_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	_, err = tx.Exec(ctx, historyQuery, settlement.CompanyID, orderID, now)
	if err != nil {
		return false, fmt.Errorf("repository: failed to record order %s in company history: %w", orderID, err)
	}

	return true, nil
}
