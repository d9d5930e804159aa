// Package inapp stores the notifications agents read inside the product.
package inapp

import (
	"context"
	"strings"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxTitleRunes   = 200
)

type Service struct {
	repo Store
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

type SendParams struct {
	TenantID   uuid.UUID
	UserID     uuid.UUID
	Title      string
	Body       string
	Priority   string
	ResourceID *uuid.UUID
}

// Send persists a notification for one user.
func (s *Service) Send(ctx context.Context, p SendParams) (Notification, error) {
	if s == nil || s.repo == nil {
		return Notification{}, apperr.Internal("in-app notification service not configured")
	}
	if p.TenantID == uuid.Nil || p.UserID == uuid.Nil {
		return Notification{}, apperr.Validation("tenantId and userId are required").WithOp(opCreate)
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Notification{}, apperr.Validation("title is required").WithOp(opCreate)
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}
	if p.Priority == "" {
		p.Priority = "normal"
	}

	n, err := s.repo.Create(ctx, CreateParams{
		TenantID:   p.TenantID,
		UserID:     p.UserID,
		Title:      title,
		Body:       strings.TrimSpace(p.Body),
		Priority:   p.Priority,
		ResourceID: p.ResourceID,
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		}
		return Notification{}, err
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, tenantID, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, tenantID, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, tenantID, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, tenantID, userID)
}

// MarkRead returns a not-found error when the notification does not belong to the user.
func (s *Service) MarkRead(ctx context.Context, tenantID, userID, id uuid.UUID) error {
	found, err := s.repo.MarkRead(ctx, tenantID, userID, id)
	if err != nil {
		return err
	}
	if !found {
		return apperr.NotFound("notification not found").WithOp(opMarkRead)
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, tenantID, userID)
}
