package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/domain/delegations"
	"chainbill-backend/internal/domain/plans"
	"chainbill-backend/internal/domain/projects"
	"chainbill-backend/internal/domain/subscriptions"
	"chainbill-backend/internal/domain/users"
	"chainbill-backend/internal/infra/logging"

	"gorm.io/gorm"
)

// PaymentVerifier is the on-chain proof check the reconciler consults before
// trusting a transaction hash.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txHash, expectedContract string) error
}

var verifier PaymentVerifier

// Init wires the chain verifier; call once at startup.
func Init(v PaymentVerifier) { verifier = v }

type ReconcileInput struct {
	UserEmail      string
	ProjectID      string
	ContractPlanID uint

	// Optional on-chain proof; when set, reconciliation is idempotent on it.
	TxHash string

	// Optional cross-checks against the project/plan configuration.
	TokenAddress               string
	TokenSymbol                string
	SubscriptionManagerAddress string

	// Optional delegation material for the secondary upsert.
	SmartAccount      string
	DelegationPayload string
}

type ReconcileResult struct {
	SubscriptionID string
	PaymentID      string
}

// Reconcile turns a verified payment into durable subscription and payment
// records exactly once. The transaction hash is the idempotency key: a repeat
// submission returns the prior ids without writing anything.
//
// The subscription insert is the primary guarantee; the delegation upsert and
// the payment insert are best-effort secondary writes whose failures are
// logged but never roll back the subscription.
func Reconcile(ctx context.Context, in ReconcileInput) (ReconcileResult, error) {
	db := database.DB
	now := time.Now()

	// 1. Resolve user identity.
	var user users.User
	if err := db.Where("email = ?", in.UserEmail).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileResult{}, apperr.NotFoundf("No user for email %s", in.UserEmail)
		}
		return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "user lookup failed", err)
	}

	// 2. Idempotency short-circuit on the transaction hash.
	if in.TxHash != "" {
		var prior subscriptions.PaymentRecord
		err := db.Where("tx_hash = ?", in.TxHash).First(&prior).Error
		if err == nil {
			return ReconcileResult{SubscriptionID: prior.SubscriptionID, PaymentID: prior.ID}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "payment lookup failed", err)
		}
	}

	// 3. Resolve plan and validate against project configuration.
	var project projects.Project
	if err := db.Where("id = ?", in.ProjectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileResult{}, apperr.NotFoundf("Unknown project")
		}
		return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "project lookup failed", err)
	}

	var plan plans.Plan
	err := db.Where("contract_plan_id = ? AND project_id = ?", in.ContractPlanID, project.ID).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReconcileResult{}, apperr.NotFoundf("Unknown plan %d for project", in.ContractPlanID)
		}
		return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "plan lookup failed", err)
	}

	if in.TokenAddress != "" && !strings.EqualFold(in.TokenAddress, plan.TokenAddress) {
		return ReconcileResult{}, apperr.Validationf("Token address does not match plan configuration")
	}
	if in.TokenSymbol != "" && !strings.EqualFold(in.TokenSymbol, plan.TokenSymbol) {
		return ReconcileResult{}, apperr.Validationf("Token symbol does not match plan configuration")
	}
	if in.SubscriptionManagerAddress != "" &&
		!strings.EqualFold(in.SubscriptionManagerAddress, project.SubscriptionManagerAddress) {
		return ReconcileResult{}, apperr.Validationf("Contract address does not match project configuration")
	}

	manager := strings.ToLower(project.SubscriptionManagerAddress)

	// 4. On-chain proof, when supplied. Fails closed; the caller decides
	// whether to retry the whole request.
	if in.TxHash != "" {
		if err := verifier.VerifyPayment(ctx, in.TxHash, project.SubscriptionManagerAddress); err != nil {
			return ReconcileResult{}, apperr.Wrap(apperr.KindVerification,
				fmt.Sprintf("On-chain verification failed for %s", in.TxHash), err)
		}
	}

	// 5. Conflict check: one active subscription per (user, plan, manager).
	// Derived-status aware, so a row stored "active" whose period lapsed does
	// not block a fresh signup.
	var existing []subscriptions.Subscription
	err = db.Where("user_id = ? AND plan_id = ? AND subscription_manager_address = ?",
		user.ID, plan.ID, manager).Find(&existing).Error
	if err != nil {
		return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "subscription lookup failed", err)
	}
	for i := range existing {
		if existing[i].IsCurrentlyActive(now) {
			return ReconcileResult{}, apperr.Conflictf("User already has an active subscription to this plan")
		}
	}

	// 6. Primary write.
	sub := subscriptions.Subscription{
		UserID:                     user.ID,
		PlanID:                     plan.ID,
		DeveloperID:                project.DeveloperID,
		Status:                     subscriptions.StatusActive,
		StartDate:                  now,
		LastPaymentDate:            now,
		NextPaymentDate:            now.Add(plan.Period()),
		SubscriptionManagerAddress: manager,
	}
	if err := db.Create(&sub).Error; err != nil {
		return ReconcileResult{}, apperr.Wrap(apperr.KindUpstream, "subscription insert failed", err)
	}

	// 7. Best-effort parallel secondary writes.
	result := ReconcileResult{SubscriptionID: sub.ID}

	account := in.SmartAccount
	if account == "" && user.SmartAccountAddress != nil {
		account = *user.SmartAccountAddress
	}

	var wg sync.WaitGroup
	var paymentID string

	if in.DelegationPayload != "" && account != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := delegations.Upsert(db, account, manager, in.DelegationPayload); err != nil {
				logging.Logger.WithError(err).WithField("subscription_id", sub.ID).
					Error("delegation upsert failed")
			}
		}()
	}

	if in.TxHash != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := subscriptions.PaymentRecord{
				SubscriptionID: sub.ID,
				UserID:         user.ID,
				Amount:         plan.Amount,
				TokenAddress:   plan.TokenAddress,
				TokenSymbol:    plan.TokenSymbol,
				TxHash:         in.TxHash,
				PaymentDate:    now,
			}
			if err := db.Create(&record).Error; err != nil {
				logging.Logger.WithError(err).WithField("subscription_id", sub.ID).
					Error("payment insert failed")
				return
			}
			paymentID = record.ID
		}()
	}

	wg.Wait()
	result.PaymentID = paymentID
	return result, nil
}

type CancelInput struct {
	UserEmail      string
	ProjectID      string
	ContractPlanID uint
}

type CancelResult struct {
	SubscriptionID          string
	CancellationEffectiveAt time.Time
}

// Cancel marks the caller's subscription cancelled effective at the end of
// the billing period already paid for, and deactivates the delegation that
// authorized future charges. Reads before the effective date keep reporting
// the subscription active.
func Cancel(ctx context.Context, in CancelInput) (CancelResult, error) {
	db := database.DB
	now := time.Now()

	var user users.User
	if err := db.Where("email = ?", in.UserEmail).First(&user).Error; err != nil {
		return CancelResult{}, apperr.NotFoundf("No user for email %s", in.UserEmail)
	}

	var plan plans.Plan
	err := db.Where("contract_plan_id = ? AND project_id = ?", in.ContractPlanID, in.ProjectID).
		First(&plan).Error
	if err != nil {
		return CancelResult{}, apperr.NotFoundf("Unknown plan %d for project", in.ContractPlanID)
	}

	var candidates []subscriptions.Subscription
	err = db.Where("user_id = ? AND plan_id = ?", user.ID, plan.ID).
		Order("created_at DESC").Find(&candidates).Error
	if err != nil {
		return CancelResult{}, apperr.Wrap(apperr.KindUpstream, "subscription lookup failed", err)
	}
	if len(candidates) == 0 {
		return CancelResult{}, apperr.NotFoundf("No subscription to cancel")
	}

	// Prefer the live subscription; fall back to the newest matching record
	// so a row whose stored status drifted can still be cancelled.
	target := &candidates[0]
	for i := range candidates {
		if candidates[i].IsCurrentlyActive(now) {
			target = &candidates[i]
			break
		}
	}

	effective := target.NextPaymentDate
	updates := map[string]interface{}{
		"status":                    subscriptions.StatusCancelled,
		"cancelled_at":              now,
		"cancellation_effective_at": effective,
	}
	if err := db.Model(&subscriptions.Subscription{}).
		Where("id = ?", target.ID).Updates(updates).Error; err != nil {
		return CancelResult{}, apperr.Wrap(apperr.KindUpstream, "subscription update failed", err)
	}

	if user.SmartAccountAddress != nil {
		if err := delegations.Deactivate(db, *user.SmartAccountAddress, target.SubscriptionManagerAddress); err != nil {
			// Secondary write: the cancellation itself stands.
			logging.Logger.WithError(err).WithField("subscription_id", target.ID).
				Error("delegation deactivate failed")
		}
	}

	return CancelResult{SubscriptionID: target.ID, CancellationEffectiveAt: effective}, nil
}
