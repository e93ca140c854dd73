package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/adapter/storage/memory"
	"github.com/rl1809/farm-market/internal/core/domain"
)

func newAuth(t *testing.T) *AuthService {
	t.Helper()
	store := memory.NewStore()
	return NewAuthService(store, store, []byte("test-secret"), time.Hour, zap.NewNop())
}

func register(t *testing.T, s *AuthService, reg domain.Registration) string {
	t.Helper()
	if reg.Password == "" {
		reg.Password = "secret1"
	}
	id, err := s.CreateAccount(context.Background(), reg)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return id
}

func signIn(t *testing.T, s *AuthService, email string) domain.Session {
	t.Helper()
	session, err := s.SignIn(context.Background(), email, "secret1")
	if err != nil {
		t.Fatalf("sign in %s: %v", email, err)
	}
	return session
}

func TestAuth_SignInResolvesAccount(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	id := register(t, s, domain.Registration{Name: " Ana ", Email: "Ana@Example.com", Role: "agricultor", Farm: "Acres"})

	session := signIn(t, s, "  ana@example.COM")
	if session.AccountID != id || session.Token == "" {
		t.Errorf("unexpected session %+v", session)
	}

	account, err := s.CurrentSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if account.Name != "Ana" || account.Email != "ana@example.com" || account.Farm != "Acres" {
		t.Errorf("unexpected account %+v", account)
	}
	if account.RoleName != domain.RoleFarmer {
		t.Errorf("expected farmer, got %s", account.RoleName)
	}
	if bytes.Equal(account.PasswordHash, []byte("secret1")) {
		t.Error("password must be stored hashed")
	}
}

func TestAuth_RoleSpecificFields(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	register(t, s, domain.Registration{Name: "Cal", Email: "cal@example.com", Role: "logistics",
		Farm: "ignored", PricePerKm: decimal.NewFromInt(12), MaxCapacity: decimal.NewFromInt(30)})
	register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer", Farm: "ignored"})

	carrier, err := s.CurrentSession(ctx, signIn(t, s, "cal@example.com").Token)
	if err != nil {
		t.Fatalf("carrier session: %v", err)
	}
	if carrier.RoleName != domain.RoleCarrier || carrier.Farm != "" || !carrier.PricePerKm.Equal(decimal.NewFromInt(12)) {
		t.Errorf("unexpected carrier %+v", carrier)
	}

	buyer, err := s.CurrentSession(ctx, signIn(t, s, "bea@example.com").Token)
	if err != nil {
		t.Fatalf("buyer session: %v", err)
	}
	if buyer.Farm != "" || !buyer.PricePerKm.IsZero() {
		t.Errorf("buyer keeps no farm or carrier fields, got %+v", buyer)
	}
}

func TestAuth_CreateAccountErrors(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer"})

	tests := []struct {
		name string
		reg  domain.Registration
		want error
	}{
		{"email taken", domain.Registration{Name: "Bea2", Email: "BEA@example.com", Password: "secret1", Role: "buyer"}, ErrEmailTaken},
		{"weak password", domain.Registration{Email: "x@example.com", Password: "123", Role: "buyer"}, domain.ErrWeakPassword},
		{"unknown role", domain.Registration{Email: "x@example.com", Password: "secret1", Role: "admin"}, domain.ErrUnknownRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.CreateAccount(ctx, tt.reg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuth_InvalidCredentials(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer"})

	if _, err := s.SignIn(ctx, "bea@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuth_SignOutRevokesToken(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer"})

	first := signIn(t, s, "bea@example.com")
	second := signIn(t, s, "bea@example.com")

	if err := s.SignOut(ctx, first.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := s.CurrentSession(ctx, first.Token); !errors.Is(err, ErrNoSession) {
		t.Errorf("expected ErrNoSession after sign out, got %v", err)
	}
	if _, err := s.CurrentSession(ctx, second.Token); err != nil {
		t.Errorf("other sessions stay valid, got %v", err)
	}
}

func TestAuth_RejectsBadTokens(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer"})
	session := signIn(t, s, "bea@example.com")

	other := NewAuthService(memory.NewStore(), memory.NewStore(), []byte("other-secret"), time.Hour, zap.NewNop())
	tests := []struct {
		name  string
		auth  *AuthService
		token string
	}{
		{"empty", s, ""},
		{"tampered", s, session.Token + "x"},
		{"foreign secret", other, session.Token},
	}
	for _, tt := range tests {
		if _, err := tt.auth.CurrentSession(ctx, tt.token); !errors.Is(err, ErrNoSession) {
			t.Errorf("%s: expected ErrNoSession, got %v", tt.name, err)
		}
	}

	// Past expiry the signature check fails before the store is consulted.
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.CurrentSession(ctx, session.Token); !errors.Is(err, ErrNoSession) {
		t.Errorf("expired: expected ErrNoSession, got %v", err)
	}
}

func TestAuth_Watch(t *testing.T) {
	s := newAuth(t)
	ctx := context.Background()
	id := register(t, s, domain.Registration{Name: "Bea", Email: "bea@example.com", Role: "buyer"})

	var mu sync.Mutex
	var seen []domain.SessionEvent
	unwatch := s.Watch(func(ev domain.SessionEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev)
	})

	session := signIn(t, s, "bea@example.com")
	if err := s.SignOut(ctx, session.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	unwatch()
	signIn(t, s, "bea@example.com")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 events, got %d", len(seen))
	}
	if seen[0].Kind != domain.SessionSignedIn || seen[1].Kind != domain.SessionSignedOut {
		t.Errorf("unexpected event kinds %s, %s", seen[0].Kind, seen[1].Kind)
	}
	if seen[1].AccountID != id || seen[1].SessionID != session.ID {
		t.Errorf("unexpected sign-out event %+v", seen[1])
	}
}
