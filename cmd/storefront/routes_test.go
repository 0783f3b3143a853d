package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diamonddulceria/storefront/internal/admin"
	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/diamonddulceria/storefront/internal/livefeed"
	"github.com/sirupsen/logrus"
)

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(ctx context.Context) error {
	return p.err
}

func testRouter(t *testing.T, db pinger) (http.Handler, *admin.Authenticator) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	auth := admin.NewAuthenticator(nil, "router-test-secret", time.Hour, logger)
	return newRouter(handlers{
		db:      db,
		auth:    auth,
		admin:   admin.NewHandler(auth, nil, api.NewValidator(), logger),
		hub:     livefeed.NewHub("*", logger),
		limiter: api.NewRateLimiter(1, 1),
	}, "*", logger), auth
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"healthy", nil, http.StatusOK, `"healthy"`},
		{"unhealthy", errors.New("connection refused"), http.StatusServiceUnavailable, `"unhealthy"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := testRouter(t, stubPinger{err: tt.err})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("Expected body to contain %s, got %s", tt.body, rec.Body.String())
			}
		})
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router, _ := testRouter(t, stubPinger{})

	for _, path := range []string{"/admin/orders", "/admin/products", "/admin/promo-codes", "/admin/reconciliation", "/admin/ws"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestAdminLoginIsPublic(t *testing.T) {
	router, _ := testRouter(t, stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/admin/login", strings.NewReader(`{}`)))

	// Reaches the handler, which rejects the empty body.
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 from login validation, got %d", rec.Code)
	}
}

func TestPreflightAnswered(t *testing.T) {
	router, _ := testRouter(t, stubPinger{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("OPTIONS", "/checkout/prepare-payment", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Missing CORS header: %v", rec.Header())
	}
}

func TestWebhookNotMountedWithoutPayments(t *testing.T) {
	router, _ := testRouter(t, stubPinger{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=forged")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected webhook route to be absent, got %d", rec.Code)
	}
}
