package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hirelanka/billing-service/internal/billing"
	"github.com/hirelanka/billing-service/internal/handler"
	"github.com/hirelanka/billing-service/internal/payhere"
)

func NewRouter(pool *pgxpool.Pool, gateway payhere.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	repo := billing.NewRepository(pool)
	svc := billing.NewService(repo, gateway)
	h := handler.NewBillingHandler(svc)

	r.Post("/api/payment/checkout", h.CreateCheckout)
	r.Post("/api/payment/notify", h.HandleNotification)
	r.Get("/api/orders/{id}", h.GetOrderByID)
	r.Get("/api/companies/{id}/orders", h.GetCompanyOrders)
	r.Get("/api/companies/{id}/settlements", h.GetCompanySettlements)

	return r
}
