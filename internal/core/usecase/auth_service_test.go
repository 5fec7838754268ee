package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
)

type stubAPIKeyRepo struct {
	findFn   func(ctx context.Context, tokenHash string) (domain.APIKey, error)
	upserted []domain.APIKey
}

func (s *stubAPIKeyRepo) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	if s.findFn != nil {
		return s.findFn(ctx, tokenHash)
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (s *stubAPIKeyRepo) Upsert(_ context.Context, key domain.APIKey) error {
	s.upserted = append(s.upserted, key)
	return nil
}

func TestAuthServiceAuthenticateSuccess(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(_ context.Context, tokenHash string) (domain.APIKey, error) {
		if tokenHash != HashToken("token-1") {
			t.Fatalf("unexpected token hash: %s", tokenHash)
		}
		return domain.APIKey{TenantID: "tenant-a", Role: domain.RoleViewer, Active: true, CreatedAt: time.Now()}, nil
	}}

	svc := NewAuthService(repo)
	key, err := svc.Authenticate(context.Background(), " token-1 ")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if key.TenantID != "tenant-a" {
		t.Fatalf("expected tenant-a, got %s", key.TenantID)
	}
	if key.CanWrite() {
		t.Fatal("viewer key must not write")
	}
}

func TestAuthServiceAuthenticateUnauthorized(t *testing.T) {
	svc := NewAuthService(&stubAPIKeyRepo{})
	_, err := svc.Authenticate(context.Background(), "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = svc.Authenticate(context.Background(), "unknown")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}
}

func TestAuthServiceAuthenticateInactiveKey(t *testing.T) {
	repo := &stubAPIKeyRepo{findFn: func(context.Context, string) (domain.APIKey, error) {
		return domain.APIKey{TenantID: "tenant-a", Role: domain.RoleAdmin, Active: false}, nil
	}}
	_, err := NewAuthService(repo).Authenticate(context.Background(), "token-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for inactive key, got %v", err)
	}
}

func TestAuthServiceBootstrap(t *testing.T) {
	repo := &stubAPIKeyRepo{}
	svc := NewAuthService(repo)

	key, err := svc.Bootstrap(context.Background(), "secret", "tenant-a", "bootstrap", "")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if key.Role != domain.RoleAdmin || !key.Active {
		t.Fatalf("expected active admin key, got %+v", key)
	}
	if len(repo.upserted) != 1 || repo.upserted[0].TokenHash != HashToken("secret") {
		t.Fatalf("expected hashed token stored, got %+v", repo.upserted)
	}

	if _, err := svc.Bootstrap(context.Background(), "secret", "tenant-a", "x", "owner"); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, err := svc.Bootstrap(context.Background(), "secret", "bad tenant", "x", domain.RoleViewer); !errors.Is(err, domain.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
}
