package main

import (
	"context"
	"net/http"
	"time"

	"github.com/diamonddulceria/storefront/internal/admin"
	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/catalog"
	"github.com/diamonddulceria/storefront/internal/checkout"
	"github.com/diamonddulceria/storefront/internal/livefeed"
	"github.com/diamonddulceria/storefront/internal/payments"
	"github.com/diamonddulceria/storefront/internal/promo"
	"github.com/diamonddulceria/storefront/internal/reconcile"
	"github.com/diamonddulceria/storefront/internal/settings"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type handlers struct {
	db        pinger
	auth      *admin.Authenticator
	admin     *admin.Handler
	catalog   *catalog.Handler
	checkout  *checkout.Handler
	webhook   *checkout.WebhookHandler
	promo     *promo.Handler
	settings  *settings.Handler
	breaker   *payments.BreakerHandler
	reconcile *reconcile.Handler
	hub       *livefeed.Hub
	limiter   *api.RateLimiter
}

func newRouter(h handlers, allowedOrigin string, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(api.CORSMiddleware(allowedOrigin))
	router.Use(api.LoggingMiddleware(logger))

	// Preflights must match a route for the CORS middleware to answer them.
	router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	router.HandleFunc("/health", healthCheck(h.db)).Methods("GET")

	router.HandleFunc("/products", h.catalog.ListProducts).Methods("GET")
	router.HandleFunc("/products/{id}", h.catalog.GetProduct).Methods("GET")
	router.HandleFunc("/categories", h.catalog.ListCategories).Methods("GET")
	router.HandleFunc("/settings", h.settings.List).Methods("GET")
	router.HandleFunc("/promo/validate", h.promo.Validate).Methods("POST")

	checkoutRoutes := router.PathPrefix("/checkout").Subrouter()
	checkoutRoutes.Use(h.limiter.Middleware)
	checkoutRoutes.HandleFunc("/prepare-payment", h.checkout.PreparePayment).Methods("POST")
	checkoutRoutes.HandleFunc("/complete-order", h.checkout.CompleteOrder).Methods("POST")
	checkoutRoutes.HandleFunc("/submit-free-order", h.checkout.SubmitFreeOrder).Methods("POST")

	router.Handle("/orders/{id}/pay-quote", h.limiter.Middleware(http.HandlerFunc(h.checkout.PayQuote))).Methods("POST")
	router.HandleFunc("/orders/{id}/confirmation", h.checkout.Confirmation).Methods("GET")
	// Without payments there is no webhook secret, so nothing may be settled by webhook.
	if h.webhook != nil {
		router.Handle("/webhooks/stripe", h.webhook).Methods("POST")
	}

	router.HandleFunc("/admin/login", h.admin.Login).Methods("POST")

	adminRoutes := router.PathPrefix("/admin").Subrouter()
	adminRoutes.Use(h.auth.RequireAdmin)
	adminRoutes.HandleFunc("/orders", h.admin.ListOrders).Methods("GET")
	adminRoutes.HandleFunc("/orders/{id}", h.admin.GetOrder).Methods("GET")
	adminRoutes.HandleFunc("/orders/{id}", h.admin.DeleteOrder).Methods("DELETE")
	adminRoutes.HandleFunc("/orders/{id}/status", h.admin.UpdateStatus).Methods("PUT")
	adminRoutes.HandleFunc("/orders/{id}/notes", h.admin.UpdateNotes).Methods("PUT")
	adminRoutes.HandleFunc("/orders/{id}/quote", h.admin.UpdateQuote).Methods("PUT")
	adminRoutes.HandleFunc("/orders/{id}/contact", h.admin.ContactCustomer).Methods("POST")

	adminRoutes.HandleFunc("/products", h.catalog.AdminListProducts).Methods("GET")
	adminRoutes.HandleFunc("/products", h.catalog.CreateProduct).Methods("POST")
	adminRoutes.HandleFunc("/products/{id}", h.catalog.UpdateProduct).Methods("PUT")
	adminRoutes.HandleFunc("/products/{id}", h.catalog.DeleteProduct).Methods("DELETE")
	adminRoutes.HandleFunc("/categories", h.catalog.ListCategories).Methods("GET")
	adminRoutes.HandleFunc("/categories", h.catalog.CreateCategory).Methods("POST")
	adminRoutes.HandleFunc("/categories/{id}", h.catalog.UpdateCategory).Methods("PUT")
	adminRoutes.HandleFunc("/categories/{id}", h.catalog.DeleteCategory).Methods("DELETE")

	adminRoutes.HandleFunc("/promo-codes", h.promo.List).Methods("GET")
	adminRoutes.HandleFunc("/promo-codes", h.promo.Create).Methods("POST")
	adminRoutes.HandleFunc("/promo-codes/{code}", h.promo.Update).Methods("PUT")
	adminRoutes.HandleFunc("/promo-codes/{code}", h.promo.Delete).Methods("DELETE")

	adminRoutes.HandleFunc("/settings", h.settings.List).Methods("GET")
	adminRoutes.HandleFunc("/settings/{key}", h.settings.Put).Methods("PUT")
	adminRoutes.HandleFunc("/settings/{key}", h.settings.Delete).Methods("DELETE")

	adminRoutes.HandleFunc("/reconciliation", h.reconcile.Report).Methods("GET")
	adminRoutes.HandleFunc("/payments/breaker", h.breaker.Status).Methods("GET")
	adminRoutes.HandleFunc("/payments/breaker/reset", h.breaker.Reset).Methods("POST")
	adminRoutes.HandleFunc("/ws", h.hub.HandleWebSocket)

	return router
}

func healthCheck(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			api.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"service": "storefront",
				"error":   "database connection failed",
			})
			return
		}

		api.RespondWithJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": "storefront",
		})
	}
}
