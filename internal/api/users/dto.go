package users

import (
	"time"

	"chainbill-backend/internal/domain/subscriptions"
)

type UserDTO struct {
	ID                  string  `json:"id"`
	Email               string  `json:"email"`
	SmartAccountAddress *string `json:"smart_account_address,omitempty"`
}

type SubscriptionDTO struct {
	ID                      string     `json:"id"`
	ProjectID               string     `json:"project_id"`
	ContractPlanID          uint       `json:"contract_plan_id"`
	Status                  string     `json:"status"`
	StartDate               time.Time  `json:"start_date"`
	LastPaymentDate         time.Time  `json:"last_payment_date"`
	NextPaymentDate         time.Time  `json:"next_payment_date"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CancellationEffectiveAt *time.Time `json:"cancellation_effective_at,omitempty"`
	Amount                  float64    `json:"amount"`
	TokenSymbol             string     `json:"token_symbol"`
}

type MeResponse struct {
	User          UserDTO           `json:"user"`
	Subscriptions []SubscriptionDTO `json:"subscriptions"`
}

// buildSubscriptionDTO reports the derived status, never the stored column.
func buildSubscriptionDTO(now time.Time, sub subscriptions.Subscription) SubscriptionDTO {
	return SubscriptionDTO{
		ID:                      sub.ID,
		ProjectID:               sub.Plan.ProjectID,
		ContractPlanID:          sub.Plan.ContractPlanID,
		Status:                  sub.DerivedStatus(now),
		StartDate:               sub.StartDate,
		LastPaymentDate:         sub.LastPaymentDate,
		NextPaymentDate:         sub.NextPaymentDate,
		CancelledAt:             sub.CancelledAt,
		CancellationEffectiveAt: sub.CancellationEffectiveAt,
		Amount:                  sub.Plan.Amount,
		TokenSymbol:             sub.Plan.TokenSymbol,
	}
}
