package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/diamonddulceria/storefront/internal/api"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "diamond-dulceria"

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("admin user not found")
	ErrInvalidToken       = errors.New("invalid admin token")
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}

type PostgresUsers struct {
	db *sql.DB
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func (s *PostgresUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM admin_users WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin user: %w", err)
	}
	return u, nil
}

func (s *PostgresUsers) Create(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}

// Authenticator verifies admin passwords and issues HS256 bearer tokens.
type Authenticator struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewAuthenticator(users UserStore, secret string, ttl time.Duration, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Bootstrap creates the admin account on first start. An existing account is left untouched.
func (a *Authenticator) Bootstrap(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, err := a.users.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	if err := a.users.Create(ctx, &User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		CreatedAt:    a.now().UTC(),
	}); err != nil {
		return err
	}

	a.logger.WithField("email", email).Info("Bootstrap admin user created")
	return nil
}

func (a *Authenticator) Login(ctx context.Context, email, password string) (string, time.Time, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", time.Time{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.IssueToken(user.Email)
}

func (a *Authenticator) IssueToken(subject string) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken returns the admin email carried by a valid, unexpired token.
func (a *Authenticator) ParseToken(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

type contextKey struct{}

// RequireAdmin rejects requests without a valid bearer token. Browsers cannot
// set headers on websocket upgrades, so those may pass the token as ?token=.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" && websocket.IsWebSocketUpgrade(r) {
			tokenStr = r.URL.Query().Get("token")
		}
		if tokenStr == "" {
			api.RespondWithCode(w, http.StatusUnauthorized, "unauthorized", "Missing authorization", nil)
			return
		}

		email, err := a.ParseToken(tokenStr)
		if err != nil {
			a.logger.WithError(err).WithField("path", r.URL.Path).Warn("Rejected admin token")
			api.RespondWithCode(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminEmail returns the authenticated admin for a request that passed RequireAdmin.
func AdminEmail(ctx context.Context) string {
	email, _ := ctx.Value(contextKey{}).(string)
	return email
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
