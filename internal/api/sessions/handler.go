package sessions

import (
	"errors"
	"net/http"
	"time"

	"chainbill-backend/config"
	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	subscriptionsapi "chainbill-backend/internal/api/subscriptions"
	"chainbill-backend/internal/app/http/middleware"
	"chainbill-backend/internal/domain/plans"
	"chainbill-backend/internal/domain/projects"
	"chainbill-backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var store *session.Store

// Init wires the session store; call once at startup.
func Init(s *session.Store) { store = s }

// CreateSession opens a checkout session for one purchase attempt. The
// session's expiry is fixed now; an abandoned checkout simply lets it lapse.
func CreateSession(c *gin.Context) {
	if c.GetString("auth_method") != middleware.AuthMethodBearer {
		apperr.Respond(c, apperr.Authf("Bearer token required"))
		return
	}
	email := c.GetString("email")

	var body struct {
		ProjectID      string                 `json:"project_id"`
		ContractPlanID uint                   `json:"contract_plan_id"`
		Metadata       map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ProjectID == "" || body.ContractPlanID == 0 {
		apperr.Respond(c, apperr.Validationf("Missing or invalid project_id/contract_plan_id"))
		return
	}

	var project projects.Project
	if err := database.DB.Where("id = ?", body.ProjectID).First(&project).Error; err != nil {
		apperr.Respond(c, apperr.NotFoundf("Unknown project"))
		return
	}
	var plan plans.Plan
	err := database.DB.
		Where("contract_plan_id = ? AND project_id = ? AND active = ?", body.ContractPlanID, project.ID, true).
		First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperr.Respond(c, apperr.NotFoundf("Unknown plan %d for project", body.ContractPlanID))
			return
		}
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "plan lookup failed", err))
		return
	}

	now := time.Now()
	created, err := store.Create(session.Session{
		PaymentID:      uuid.NewString(),
		UserEmail:      email,
		ProjectID:      project.ID,
		PlanID:         plan.ID,
		ContractPlanID: plan.ContractPlanID,
		Amount:         plan.Amount,
		TokenAddress:   plan.TokenAddress,
		TokenSymbol:    plan.TokenSymbol,
		Metadata:       body.Metadata,
		ExpiresAt:      now.Add(config.SESSION_WINDOW),
	})
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "session create failed", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "session": toResponse(created)})
}

// GetSession is the polling endpoint the checkout UI drives. The read itself
// transitions a lapsed session to expired, so no caller ever sees a stale
// pending state.
func GetSession(c *gin.Context) {
	var body struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PaymentID == "" {
		apperr.Respond(c, apperr.Validationf("Missing payment_id"))
		return
	}

	sess, err := store.Get(body.PaymentID)
	if err != nil {
		apperr.Respond(c, apperr.NotFoundf("Unknown payment session"))
		return
	}
	if err := authorizeAccess(c, sess); err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "session": toResponse(sess)})
}

// UpdateSession applies a status or metadata patch. Marking paid with a
// transaction hash runs the full settlement path: receipt verification and
// reconciliation execute inside the session key's serialized stream, then the
// session becomes immutable.
func UpdateSession(c *gin.Context) {
	var body struct {
		PaymentID string                 `json:"payment_id"`
		Status    string                 `json:"status"`
		TxHash    string                 `json:"tx_hash"`
		Metadata  map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PaymentID == "" {
		apperr.Respond(c, apperr.Validationf("Missing payment_id"))
		return
	}
	if body.Status != "" && !session.ValidStatus(body.Status) {
		apperr.Respond(c, apperr.Validationf("Unknown status %q", body.Status))
		return
	}

	sess, err := store.Get(body.PaymentID)
	if err != nil {
		apperr.Respond(c, apperr.NotFoundf("Unknown payment session"))
		return
	}
	if err := authorizeAccess(c, sess); err != nil {
		apperr.Respond(c, err)
		return
	}

	if body.Status == session.StatusPaid {
		settlePaid(c, body.PaymentID, body.TxHash, body.Metadata)
		return
	}

	params := session.UpdateParams{Metadata: body.Metadata}
	if body.Status != "" {
		params.Status = &body.Status
	}
	if body.TxHash != "" {
		params.TxHash = &body.TxHash
	}
	updated, _, err := store.Update(body.PaymentID, params)
	if err != nil {
		apperr.Respond(c, apperr.Validationf("Session update rejected: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": toResponse(updated)})
}

// settlePaid drives the exactly-once paid transition. The settle callback —
// verification plus reconciliation — runs under the session key's lock, so
// concurrent duplicate submissions collapse to one settlement; the losers
// observe the paid session and fetch the same ids via the reconciler's
// transaction-hash short-circuit.
func settlePaid(c *gin.Context, paymentID, txHash string, metadata map[string]interface{}) {
	if txHash == "" {
		apperr.Respond(c, apperr.Validationf("Marking paid requires tx_hash"))
		return
	}

	var result subscriptionsapi.ReconcileResult
	settle := func(s session.Session) error {
		in := subscriptionsapi.ReconcileInput{
			UserEmail:      s.UserEmail,
			ProjectID:      s.ProjectID,
			ContractPlanID: s.ContractPlanID,
			TxHash:         txHash,
			TokenAddress:   s.TokenAddress,
			TokenSymbol:    s.TokenSymbol,
		}
		if payload, ok := s.Metadata["delegation"].(string); ok {
			in.DelegationPayload = payload
		}
		if account, ok := s.Metadata["smart_account"].(string); ok {
			in.SmartAccount = account
		}
		var err error
		result, err = subscriptionsapi.Reconcile(c.Request.Context(), in)
		return err
	}

	if len(metadata) > 0 {
		// Stash the patch first so the settle callback sees it.
		if _, _, err := store.Update(paymentID, session.UpdateParams{Metadata: metadata}); err != nil {
			apperr.Respond(c, apperr.Validationf("Session update rejected: %v", err))
			return
		}
	}

	sess, applied, err := store.MarkPaid(paymentID, txHash, settle)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !applied && sess.TxHash != "" {
		// Lost the race or a duplicate retry: the session was already paid.
		// The reconciler short-circuits on the hash and returns the prior ids.
		prior, err := subscriptionsapi.Reconcile(c.Request.Context(), subscriptionsapi.ReconcileInput{
			UserEmail:      sess.UserEmail,
			ProjectID:      sess.ProjectID,
			ContractPlanID: sess.ContractPlanID,
			TxHash:         sess.TxHash,
		})
		if err == nil {
			result = prior
		}
	}

	resp := gin.H{"success": true, "session": toResponse(sess)}
	if result.SubscriptionID != "" {
		resp["subscription_id"] = result.SubscriptionID
	}
	if result.PaymentID != "" {
		resp["payment_id"] = result.PaymentID
	}
	c.JSON(http.StatusOK, resp)
}

// authorizeAccess enforces session ownership: bearer callers must be the
// user who opened the session, API-key callers must own its project.
func authorizeAccess(c *gin.Context, sess session.Session) error {
	switch c.GetString("auth_method") {
	case middleware.AuthMethodBearer:
		if c.GetString("email") == sess.UserEmail {
			return nil
		}
	case middleware.AuthMethodAPIKey:
		if c.GetString("project_id") == sess.ProjectID {
			return nil
		}
	}
	return apperr.Forbiddenf("Not your payment session")
}
