package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wafulah/dukapesa-backend/api/controllers"
	webhookcontrollers "github.com/wafulah/dukapesa-backend/api/controllers/webhooks"
	"github.com/wafulah/dukapesa-backend/api/middleware"
	"github.com/wafulah/dukapesa-backend/internal/audit"
	"github.com/wafulah/dukapesa-backend/internal/inventory"
	"github.com/wafulah/dukapesa-backend/internal/orders"
	"github.com/wafulah/dukapesa-backend/internal/payments"
	"github.com/wafulah/dukapesa-backend/internal/reconcile"
	"github.com/wafulah/dukapesa-backend/pkg/config"
	"github.com/wafulah/dukapesa-backend/pkg/db"
	"github.com/wafulah/dukapesa-backend/pkg/logger"
	pkgredis "github.com/wafulah/dukapesa-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      *pkgredis.Client
	Registry   *prometheus.Registry
	Orders     *orders.Service
	Payments   *payments.Service
	Reconcile  *reconcile.Service
	Inventory  *inventory.Service
	AuditTrail audit.Repository
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.ClientMeta(),
		middleware.Logging(logg),
	)

	var cache interface {
		Ping(ctx context.Context) error
	}
	if deps.Redis != nil {
		cache = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, cache, logg))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	// The gateway cannot send credentials; the callback endpoint is public
	// and trusts only its own correlation ids.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/mpesa", webhookcontrollers.MpesaCallback(deps.Reconcile, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if deps.Redis != nil {
			r.Use(middleware.Idempotency(deps.Redis, logg))
		}

		r.Post("/orders", controllers.CreateOrder(deps.Orders, logg))
		r.Get("/orders/{orderID}", controllers.GetOrder(deps.Orders, logg))

		r.Post("/payments/initiate", controllers.InitiatePayment(deps.Payments, logg))
		r.Post("/orders/{orderID}/payments/retry", controllers.RetryPayment(deps.Payments, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(logg))

			r.Patch("/orders/{orderID}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
			r.Get("/orders/{orderID}/audit", controllers.AdminOrderAudit(deps.AuditTrail, logg))
			r.Post("/inventory/{productID}/adjustments", controllers.AdminAdjustStock(deps.Inventory, logg))
			r.Get("/inventory/{productID}/movements", controllers.AdminProductMovements(deps.Inventory, logg))
		})
	})

	return r
}
