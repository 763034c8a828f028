package users

import (
	"net/http"
	"time"

	"chainbill-backend/database"
	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/domain/subscriptions"
	"chainbill-backend/internal/domain/users"

	"github.com/gin-gonic/gin"
)

// GetCurrentUser returns the caller's profile and every subscription they
// hold, with each status recomputed at read time.
func GetCurrentUser(c *gin.Context) {
	email := c.GetString("email")
	if email == "" {
		apperr.Respond(c, apperr.Authf("Bearer token required"))
		return
	}

	var user users.User
	if err := database.DB.Where("email = ?", email).First(&user).Error; err != nil {
		apperr.Respond(c, apperr.NotFoundf("User not found"))
		return
	}

	var subs []subscriptions.Subscription
	err := database.DB.Preload("Plan").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		apperr.Respond(c, apperr.Wrap(apperr.KindUpstream, "subscription lookup failed", err))
		return
	}

	now := time.Now()
	dtos := make([]SubscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		dtos = append(dtos, buildSubscriptionDTO(now, sub))
	}

	c.JSON(http.StatusOK, MeResponse{
		User: UserDTO{
			ID:                  user.ID,
			Email:               user.Email,
			SmartAccountAddress: user.SmartAccountAddress,
		},
		Subscriptions: dtos,
	})
}
