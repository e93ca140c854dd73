package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/port"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
)

// AuthService owns accounts and sessions. Sessions are signed JWTs whose ID
// must still exist in the session store, so signing out revokes a token
// before it expires.
type AuthService struct {
	accounts port.AccountRepository
	sessions port.CacheRepository
	secret   []byte
	ttl      time.Duration
	logger   *zap.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	watchers map[int]func(domain.SessionEvent)
	nextID   int
}

func NewAuthService(accounts port.AccountRepository, sessions port.CacheRepository, secret []byte, ttl time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		secret:   secret,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		watchers: make(map[int]func(domain.SessionEvent)),
	}
}

func (s *AuthService) CreateAccount(ctx context.Context, reg domain.Registration) (string, error) {
	role, err := reg.Validate()
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	account := domain.Account{
		ID:           s.newID(),
		Name:         strings.TrimSpace(reg.Name),
		Email:        normalizeEmail(reg.Email),
		RoleName:     role.Name(),
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	switch role.(type) {
	case domain.Farmer:
		account.Farm = strings.TrimSpace(reg.Farm)
	case domain.Carrier:
		account.PricePerKm = reg.PricePerKm
		account.MaxCapacity = reg.MaxCapacity
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return "", ErrEmailTaken
		}
		s.logger.Error("create account failed", zap.String("email", account.Email), zap.Error(err))
		return "", fmt.Errorf("create account: %w", err)
	}

	return account.ID, nil
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (domain.Session, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, port.ErrNotFound) {
		return domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return domain.Session{}, ErrInvalidCredentials
	}

	now := s.now()
	session := domain.Session{
		ID:        s.newID(),
		AccountID: account.ID,
		ExpiresAt: now.Add(s.ttl).UTC(),
	}
	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   account.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.Session{}, fmt.Errorf("sign token: %w", err)
	}
	session.Token = token

	if err := s.sessions.SaveSession(ctx, session, s.ttl); err != nil {
		s.logger.Error("save session failed", zap.String("account_id", account.ID), zap.Error(err))
		return domain.Session{}, fmt.Errorf("save session: %w", err)
	}

	s.notify(domain.SessionEvent{Kind: domain.SessionSignedIn, AccountID: account.ID, SessionID: session.ID, At: now.UTC()})
	return session, nil
}

func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, claims.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	s.notify(domain.SessionEvent{Kind: domain.SessionSignedOut, AccountID: claims.Subject, SessionID: claims.ID, At: s.now().UTC()})
	return nil
}

// CurrentSession resolves token to its account, or ErrNoSession.
func (s *AuthService) CurrentSession(ctx context.Context, token string) (domain.Account, error) {
	claims, err := s.parse(token)
	if err != nil {
		return domain.Account{}, err
	}

	session, err := s.sessions.GetSession(ctx, claims.ID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Account{}, ErrNoSession
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load session: %w", err)
	}
	if session.AccountID != claims.Subject {
		return domain.Account{}, ErrNoSession
	}

	account, err := s.accounts.GetAccount(ctx, session.AccountID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Account{}, ErrNoSession
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account: %w", err)
	}
	return account, nil
}

// Watch registers fn for session changes and returns a func that removes it.
func (s *AuthService) Watch(fn func(domain.SessionEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
	}
}

func (s *AuthService) notify(ev domain.SessionEvent) {
	s.mu.Lock()
	fns := make([]func(domain.SessionEvent), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *AuthService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || claims.ID == "" {
		return nil, ErrNoSession
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
