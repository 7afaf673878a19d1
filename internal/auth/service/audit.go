package service

import (
	"context"
	"time"

	"github.com/authcorehq/authcore/internal/auth/domain"
	"github.com/authcorehq/authcore/internal/auth/store"
	"github.com/authcorehq/authcore/pkg/idx"
)

type AuditService struct {
	Store store.Store
}

// Record appends an audit entry, filling in the id and timestamp.
func (s *AuditService) Record(ctx context.Context, e domain.AuditLogEntry) error {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.Store.AuditLogs().CreateAuditLog(ctx, e)
}

// CountFailedLogins reports how many login_failed entries an IP produced
// inside the sliding window ending now.
func (s *AuditService) CountFailedLogins(ctx context.Context, ipAddress string, window time.Duration) (int, error) {
	since := time.Now().UTC().Add(-window)
	return s.Store.AuditLogs().CountFailedLogins(ctx, ipAddress, since)
}

// ListRecent returns the newest entries for the activity surface.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]domain.AuditLogEntry, error) {
	return s.Store.AuditLogs().ListRecent(ctx, limit)
}
