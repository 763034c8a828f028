package subscriptions

import (
	"net/http"

	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/app/http/middleware"

	"github.com/gin-gonic/gin"
)

// CreateSubscription is the API-key direct path for SDK-style integrations
// that manage checkout themselves and only need settlement reconciled.
func CreateSubscription(c *gin.Context) {
	if c.GetString("auth_method") != middleware.AuthMethodAPIKey {
		apperr.Respond(c, apperr.Authf("API key required"))
		return
	}

	var body struct {
		UserEmail      string                 `json:"user_email"`
		ContractPlanID uint                   `json:"contract_plan_id"`
		TxHash         string                 `json:"tx_hash"`
		TokenAddress   string                 `json:"token_address"`
		TokenSymbol    string                 `json:"token_symbol"`
		ManagerAddress string                 `json:"subscription_manager_address"`
		SmartAccount   string                 `json:"smart_account"`
		Delegation     string                 `json:"delegation"`
		Metadata       map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserEmail == "" || body.ContractPlanID == 0 {
		apperr.Respond(c, apperr.Validationf("Missing or invalid user_email/contract_plan_id"))
		return
	}

	res, err := Reconcile(c.Request.Context(), ReconcileInput{
		UserEmail:                  body.UserEmail,
		ProjectID:                  c.GetString("project_id"),
		ContractPlanID:             body.ContractPlanID,
		TxHash:                     body.TxHash,
		TokenAddress:               body.TokenAddress,
		TokenSymbol:                body.TokenSymbol,
		SubscriptionManagerAddress: body.ManagerAddress,
		SmartAccount:               body.SmartAccount,
		DelegationPayload:          body.Delegation,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	resp := gin.H{"success": true, "subscription_id": res.SubscriptionID}
	if res.PaymentID != "" {
		resp["payment_id"] = res.PaymentID
	}
	c.JSON(http.StatusOK, resp)
}

// CancelSubscription serves both trust paths: API-key callers name the user,
// bearer callers cancel their own subscription.
func CancelSubscription(c *gin.Context) {
	var body struct {
		UserEmail      string `json:"user_email"`
		ProjectID      string `json:"project_id"`
		ContractPlanID uint   `json:"contract_plan_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.ContractPlanID == 0 {
		apperr.Respond(c, apperr.Validationf("Missing or invalid contract_plan_id"))
		return
	}

	email := body.UserEmail
	projectID := body.ProjectID
	switch c.GetString("auth_method") {
	case middleware.AuthMethodAPIKey:
		projectID = c.GetString("project_id")
		if email == "" {
			apperr.Respond(c, apperr.Validationf("Missing user_email"))
			return
		}
	case middleware.AuthMethodBearer:
		email = c.GetString("email")
		if projectID == "" {
			apperr.Respond(c, apperr.Validationf("Missing project_id"))
			return
		}
	default:
		apperr.Respond(c, apperr.Authf("Caller not authenticated"))
		return
	}

	res, err := Cancel(c.Request.Context(), CancelInput{
		UserEmail:      email,
		ProjectID:      projectID,
		ContractPlanID: body.ContractPlanID,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":                   true,
		"subscription_id":           res.SubscriptionID,
		"cancellation_effective_at": res.CancellationEffectiveAt,
	})
}
