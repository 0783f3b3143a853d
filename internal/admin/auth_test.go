package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]*User{}}
}

func (m *memoryUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (m *memoryUsers) Create(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Email] = user
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	auth := NewAuthenticator(newMemoryUsers(), "test-secret", time.Hour, testLogger())
	if err := auth.Bootstrap(context.Background(), "Owner@Example.com", "s3cret-pass"); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return auth
}

func TestBootstrapIsIdempotent(t *testing.T) {
	users := newMemoryUsers()
	auth := NewAuthenticator(users, "test-secret", time.Hour, testLogger())

	if err := auth.Bootstrap(context.Background(), "owner@example.com", "first"); err != nil {
		t.Fatal(err)
	}
	hash := users.users["owner@example.com"].PasswordHash

	if err := auth.Bootstrap(context.Background(), "owner@example.com", "second"); err != nil {
		t.Fatal(err)
	}
	if users.users["owner@example.com"].PasswordHash != hash {
		t.Error("Bootstrap must not overwrite an existing admin")
	}
	if hash == "first" {
		t.Error("Password must be stored hashed")
	}

	if err := auth.Bootstrap(context.Background(), "", ""); err != nil {
		t.Errorf("Empty bootstrap config should be a no-op, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	auth := newTestAuth(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "owner@example.com", "s3cret-pass", nil},
		{"email_case_insensitive", "OWNER@example.com", "s3cret-pass", nil},
		{"wrong_password", "owner@example.com", "nope", ErrInvalidCredentials},
		{"unknown_user", "someone@example.com", "s3cret-pass", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, expiresAt, err := auth.Login(context.Background(), tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if token == "" || expiresAt.Before(time.Now()) {
				t.Errorf("Unexpected token %q expiring %v", token, expiresAt)
			}
			subject, err := auth.ParseToken(token)
			if err != nil || subject != "owner@example.com" {
				t.Errorf("ParseToken = %q, %v", subject, err)
			}
		})
	}
}

func TestParseTokenRejects(t *testing.T) {
	auth := newTestAuth(t)

	expired := NewAuthenticator(newMemoryUsers(), "test-secret", time.Hour, testLogger())
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expiredToken, _, _ := expired.IssueToken("owner@example.com")

	otherSecret := NewAuthenticator(newMemoryUsers(), "other-secret", time.Hour, testLogger())
	forgedToken, _, _ := otherSecret.IssueToken("owner@example.com")

	noneToken, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "owner@example.com",
		Issuer:  tokenIssuer,
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":      expiredToken,
		"wrong_secret": forgedToken,
		"alg_none":     noneToken,
		"garbage":      "not-a-jwt",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := auth.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	auth := newTestAuth(t)
	token, _, err := auth.IssueToken("owner@example.com")
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	protected := auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = AdminEmail(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    int
	}{
		{"no_token", func(r *http.Request) {}, http.StatusUnauthorized},
		{"bad_token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }, http.StatusUnauthorized},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"query_token_without_upgrade", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", token)
			r.URL.RawQuery = q.Encode()
		}, http.StatusUnauthorized},
		{"query_token_on_upgrade", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", token)
			r.URL.RawQuery = q.Encode()
			r.Header.Set("Connection", "Upgrade")
			r.Header.Set("Upgrade", "websocket")
		}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest("GET", "/admin/orders", nil)
			tt.prepare(req)
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.want)
			}
			if tt.want == http.StatusOK && seen != "owner@example.com" {
				t.Errorf("Expected admin in context, got %q", seen)
			}
		})
	}
}
