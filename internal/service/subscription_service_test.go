package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heishia/ppop-auth/internal/domain"
	"github.com/heishia/ppop-auth/internal/service"
)

func newSubscriptionFixture(t *testing.T) (*service.SubscriptionService, *memorySubscriptionRepo, *memoryUserRepo) {
	t.Helper()
	subs := newMemorySubscriptionRepo()
	users := newMemoryUserRepo(domain.User{ID: 1, Email: "user@example.com", Status: domain.UserStatusActive})
	svc := service.NewSubscriptionService(subs, users, newTestNode(t), zap.NewNop())
	return svc, subs, users
}

func TestStatusWithoutSubscription(t *testing.T) {
	svc, _, _ := newSubscriptionFixture(t)

	status, err := svc.Status(context.Background(), 1, "ppoplink")
	require.NoError(t, err)
	require.False(t, status.Active)
	require.Empty(t, status.Plan)
}

func TestActivateThenStatus(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSubscriptionFixture(t)

	expires := time.Now().Add(30 * 24 * time.Hour)
	sub, err := svc.Activate(ctx, "User@Example.com", "ppoplink", domain.PlanPro, &expires)
	require.NoError(t, err)
	require.Equal(t, domain.SubscriptionActive, sub.Status)

	status, err := svc.Status(ctx, 1, "ppoplink")
	require.NoError(t, err)
	require.True(t, status.Active)
	require.Equal(t, domain.PlanPro, status.Plan)
	require.NotNil(t, status.ExpiresAt)
}

func TestStatusExpiredSubscription(t *testing.T) {
	ctx := context.Background()
	svc, subs, _ := newSubscriptionFixture(t)

	past := time.Now().Add(-time.Hour)
	_, err := subs.Upsert(ctx, domain.Subscription{
		ID: 10, UserID: 1, ServiceCode: "ppoplink",
		Plan: domain.PlanBasic, Status: domain.SubscriptionActive, ExpiresAt: &past,
	})
	require.NoError(t, err)

	status, err := svc.Status(ctx, 1, "ppoplink")
	require.NoError(t, err)
	require.False(t, status.Active)
}

func TestActivateReplacesPlan(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newSubscriptionFixture(t)

	_, err := svc.Activate(ctx, "user@example.com", "ppoplink", domain.PlanBasic, nil)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, "user@example.com", "ppoplink", domain.PlanPro, nil)
	require.NoError(t, err)

	status, err := svc.Status(ctx, 1, "ppoplink")
	require.NoError(t, err)
	require.Equal(t, domain.PlanPro, status.Plan)
}

func TestActivateUnknownUser(t *testing.T) {
	svc, _, _ := newSubscriptionFixture(t)

	_, err := svc.Activate(context.Background(), "ghost@example.com", "ppoplink", domain.PlanBasic, nil)
	requireOAuthError(t, err, "not_found", 404)
}

func TestActivateRejectsUnknownPlan(t *testing.T) {
	svc, _, _ := newSubscriptionFixture(t)

	_, err := svc.Activate(context.Background(), "user@example.com", "ppoplink", "ULTRA", nil)
	requireOAuthError(t, err, "invalid_request", 400)

	_, err = svc.Status(context.Background(), 1, "")
	requireOAuthError(t, err, "invalid_request", 400)
}
