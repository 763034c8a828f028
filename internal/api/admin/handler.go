package admin

import (
	"net/http"
	"time"

	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/app/http/middleware"
	"chainbill-backend/internal/domain/subscriptions"

	"github.com/gin-gonic/gin"
)

type SubscriberRow struct {
	SubscriptionID  string     `json:"subscription_id"`
	UserEmail       string     `json:"user_email"`
	ContractPlanID  uint       `json:"contract_plan_id"`
	Status          string     `json:"status"`
	StartDate       time.Time  `json:"start_date"`
	NextPaymentDate time.Time  `json:"next_payment_date"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

type PaymentRow struct {
	ID          string    `json:"id"`
	UserEmail   string    `json:"user_email"`
	Amount      float64   `json:"amount"`
	TokenSymbol string    `json:"token_symbol"`
	TxHash      string    `json:"tx_hash"`
	PaymentDate time.Time `json:"payment_date"`
}

type ProjectStats struct {
	TotalSubscriptions  int                `json:"total_subscriptions"`
	ActiveSubscriptions int                `json:"active_subscriptions"`
	RevenueByToken      map[string]float64 `json:"revenue_by_token"`
}

// projectID resolves the caller's project. These endpoints are API-key only:
// a bearer user has no project scope to report on.
func projectID(c *gin.Context) (string, error) {
	if c.GetString("auth_method") != middleware.AuthMethodAPIKey {
		return "", apperr.Forbiddenf("API key required")
	}
	return c.GetString("project_id"), nil
}

// ListProjectSubscribers reports every subscription ever taken out against the
// caller's project, each with its status derived at read time. An optional
// ?status= filter matches the derived value, so "active" excludes lapsed rows
// the stored column still calls active.
func ListProjectSubscribers(c *gin.Context) {
	project, err := projectID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var subs []subscriptions.Subscription
	err = database.DB.Preload("User").Preload("Plan").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("plans.project_id = ?", project).
		Order("subscriptions.created_at DESC").
		Find(&subs).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "subscription lookup failed", err))
		return
	}

	now := time.Now()
	wantStatus := c.Query("status")
	rows := make([]SubscriberRow, 0, len(subs))
	for _, sub := range subs {
		status := sub.DerivedStatus(now)
		if wantStatus != "" && status != wantStatus {
			continue
		}
		rows = append(rows, SubscriberRow{
			SubscriptionID:  sub.ID,
			UserEmail:       sub.User.Email,
			ContractPlanID:  sub.Plan.ContractPlanID,
			Status:          status,
			StartDate:       sub.StartDate,
			NextPaymentDate: sub.NextPaymentDate,
			CancelledAt:     sub.CancelledAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "subscriptions": rows})
}

// ListProjectPayments returns the settled on-chain payments for the caller's
// project, newest first.
func ListProjectPayments(c *gin.Context) {
	project, err := projectID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var payments []struct {
		subscriptions.PaymentRecord
		Email string
	}
	err = database.DB.Model(&subscriptions.PaymentRecord{}).
		Select("payment_records.*, users.email").
		Joins("JOIN subscriptions ON subscriptions.id = payment_records.subscription_id").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Joins("JOIN users ON users.id = payment_records.user_id").
		Where("plans.project_id = ?", project).
		Order("payment_records.created_at DESC").
		Scan(&payments).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "payment lookup failed", err))
		return
	}

	rows := make([]PaymentRow, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, PaymentRow{
			ID:          p.ID,
			UserEmail:   p.Email,
			Amount:      p.Amount,
			TokenSymbol: p.TokenSymbol,
			TxHash:      p.TxHash,
			PaymentDate: p.PaymentDate,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "payments": rows})
}

// GetProjectStats aggregates subscription counts and per-token revenue for
// the caller's project. The active count uses derived status, so the figure
// never includes lapsed-but-unswept rows.
func GetProjectStats(c *gin.Context) {
	project, err := projectID(c)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	var subs []subscriptions.Subscription
	err = database.DB.
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("plans.project_id = ?", project).
		Find(&subs).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "subscription lookup failed", err))
		return
	}

	now := time.Now()
	stats := ProjectStats{TotalSubscriptions: len(subs)}
	for _, sub := range subs {
		if sub.IsCurrentlyActive(now) {
			stats.ActiveSubscriptions++
		}
	}

	type tokenSum struct {
		TokenSymbol string
		Total       float64
	}
	var sums []tokenSum
	err = database.DB.Model(&subscriptions.PaymentRecord{}).
		Select("payment_records.token_symbol, COALESCE(SUM(payment_records.amount), 0) as total").
		Joins("JOIN subscriptions ON subscriptions.id = payment_records.subscription_id").
		Joins("JOIN plans ON plans.id = subscriptions.plan_id").
		Where("plans.project_id = ?", project).
		Group("payment_records.token_symbol").
		Scan(&sums).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "revenue aggregation failed", err))
		return
	}

	stats.RevenueByToken = map[string]float64{}
	for _, s := range sums {
		stats.RevenueByToken[s.TokenSymbol] = s.Total
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}
