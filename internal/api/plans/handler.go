package plans

import (
	"net/http"

	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/domain/plans"

	"github.com/gin-gonic/gin"
)

type planResponse struct {
	ContractPlanID uint    `json:"contract_plan_id"`
	Name           string  `json:"name"`
	Amount         float64 `json:"amount"`
	TokenAddress   string  `json:"token_address"`
	TokenSymbol    string  `json:"token_symbol"`
	PeriodDays     int     `json:"period_days"`
}

// ListPlans returns the active plans of one project, keyed the way checkout
// payloads reference them. Internal row ids stay internal.
func ListPlans(c *gin.Context) {
	projectID := c.Query("project_id")
	if projectID == "" {
		apperr.Respond(c, apperr.Validationf("Missing project_id"))
		return
	}

	var rows []plans.Plan
	err := database.DB.Where("project_id = ? AND active = ?", projectID, true).
		Order("contract_plan_id ASC").Find(&rows).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "plan listing failed", err))
		return
	}

	out := make([]planResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, planResponse{
			ContractPlanID: p.ContractPlanID,
			Name:           p.Name,
			Amount:         p.Amount,
			TokenAddress:   p.TokenAddress,
			TokenSymbol:    p.TokenSymbol,
			PeriodDays:     p.PeriodDays,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "plans": out})
}
