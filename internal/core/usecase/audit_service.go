package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/adminsettings/internal/core/domain"
	"github.com/atvirokodosprendimai/adminsettings/internal/core/ports"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type AuditService struct {
	repo ports.AuditTrailRepository
}

func NewAuditService(repo ports.AuditTrailRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEvent, error) {
	if err := domain.ValidateKey(filter.TenantID); err != nil {
		return nil, err
	}
	if filter.Section != "" && filter.Section != domain.AggregateAll {
		if _, err := domain.ParseSection(filter.Section); err != nil {
			return nil, err
		}
	}
	if filter.Action != "" && filter.Action != domain.EventSettingsUpdated && filter.Action != domain.EventSettingsReset {
		return nil, domain.ErrInvalidKey
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	return s.repo.List(ctx, filter)
}
