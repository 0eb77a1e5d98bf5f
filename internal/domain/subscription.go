package domain

import "time"

// Subscription plans and statuses.
const (
	PlanBasic = "BASIC"
	PlanPro   = "PRO"

	SubscriptionActive   = "ACTIVE"
	SubscriptionInactive = "INACTIVE"
)

// Subscription records the billing state that gates feature access for
// one user on one service. Bookkeeping happens outside this server; only
// the minimal activation fields live here.
type Subscription struct {
	ID          int64
	UserID      int64
	ServiceCode string
	Plan        string
	Status      string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive reports whether the subscription currently grants access.
func (s Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(now) {
		return false
	}
	return true
}
