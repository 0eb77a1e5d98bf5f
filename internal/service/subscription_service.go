package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/repository"
)

// SubscriptionService answers feature gating queries and applies
// activations pushed in by the billing side.
type SubscriptionService struct {
	subs   repository.SubscriptionRepository
	users  repository.UserRepository
	node   *snowflake.Node
	logger *zap.Logger
	tracer trace.Tracer
}

// NewSubscriptionService wires dependencies.
func NewSubscriptionService(subs repository.SubscriptionRepository, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{
		subs:   subs,
		users:  users,
		node:   node,
		logger: logger,
		tracer: otel.Tracer("github.com/heishia/ppop-auth/internal/service"),
	}
}

// Status reports whether the user currently holds an active
// subscription for the service. No subscription reads as inactive.
func (s *SubscriptionService) Status(ctx context.Context, userID int64, serviceCode string) (*SubscriptionStatus, error) {
	ctx, span := s.startSpan(ctx, "SubscriptionService.Status")
	defer span.End()

	if serviceCode == "" {
		return nil, newOAuthError("invalid_request", "service is required.", 400)
	}

	sub, err := s.subs.GetByUserAndService(ctx, userID, serviceCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &SubscriptionStatus{Active: false}, nil
		}
		span.RecordError(err)
		return nil, err
	}

	if !sub.IsActive(time.Now()) {
		return &SubscriptionStatus{Active: false}, nil
	}
	return &SubscriptionStatus{Active: true, Plan: sub.Plan, ExpiresAt: sub.ExpiresAt}, nil
}

// Activate upserts an active subscription for the user identified by
// email. It is called by the billing backend, not by end users.
func (s *SubscriptionService) Activate(ctx context.Context, email, serviceCode, plan string, expiresAt *time.Time) (domain.Subscription, error) {
	ctx, span := s.startSpan(ctx, "SubscriptionService.Activate")
	defer span.End()

	if serviceCode == "" {
		return domain.Subscription{}, newOAuthError("invalid_request", "service is required.", 400)
	}
	if plan != domain.PlanBasic && plan != domain.PlanPro {
		return domain.Subscription{}, newOAuthError("invalid_request", "Unknown plan.", 400)
	}

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, newOAuthError("not_found", "User not found.", 404)
		}
		span.RecordError(err)
		return domain.Subscription{}, err
	}

	sub, err := s.subs.Upsert(ctx, domain.Subscription{
		ID:          s.node.Generate().Int64(),
		UserID:      user.ID,
		ServiceCode: serviceCode,
		Plan:        plan,
		Status:      domain.SubscriptionActive,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		span.RecordError(err)
		return domain.Subscription{}, err
	}

	s.audit("subscription.activated", "user_id", user.ID, "service", serviceCode, "plan", plan)
	return sub, nil
}

func (s *SubscriptionService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *SubscriptionService) audit(event string, attrs ...any) {
	auditLog(s.log(), event, attrs...)
}

func (s *SubscriptionService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
