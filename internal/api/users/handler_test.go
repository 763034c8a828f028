package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"chainbill-backend/internal/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testutils.InitTestMain()
	os.Exit(m.Run())
}

func meRouter(email string) *gin.Engine {
	r := testutils.SetupTestRouter()
	r.Use(func(c *gin.Context) {
		if email != "" {
			c.Set("email", email)
		}
		c.Next()
	})
	r.GET("/me", GetCurrentUser)
	return r
}

func TestGetCurrentUser_DerivesStatuses(t *testing.T) {
	_, mock, cleanup := testutils.SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	cancelled := now.AddDate(0, 0, -40)
	effective := now.AddDate(0, 0, -10)

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = \$1`).
		WithArgs("alice@example.com", 1).
		WillReturnRows(mock.NewRows([]string{"id", "email", "smart_account_address"}).
			AddRow("user-uuid", "alice@example.com", "0x9999999999999999999999999999999999999999"))
	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1`).
		WithArgs("user-uuid").
		WillReturnRows(mock.NewRows([]string{
			"id", "user_id", "plan_id", "status", "next_payment_date", "cancelled_at", "cancellation_effective_at",
		}).
			// Stored active, period lapsed: must read as expired.
			AddRow("sub-lapsed", "user-uuid", "plan-uuid", "active", now.AddDate(0, -2, 0), nil, nil).
			// Cancelled with the effective date behind us: reads as cancelled.
			AddRow("sub-gone", "user-uuid", "plan-uuid", "cancelled", effective, cancelled, effective).
			// Still inside the paid-for period: reads as active.
			AddRow("sub-live", "user-uuid", "plan-uuid", "active", now.AddDate(0, 0, 20), nil, nil))
	mock.ExpectQuery(`SELECT \* FROM "plans" WHERE "plans"."id" = \$1`).
		WithArgs("plan-uuid").
		WillReturnRows(mock.NewRows([]string{"id", "project_id", "contract_plan_id", "amount", "token_symbol"}).
			AddRow("plan-uuid", "project-uuid", 7, 10.0, "USDC"))

	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	resp := httptest.NewRecorder()
	meRouter("alice@example.com").ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body MeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Subscriptions, 3)

	byID := map[string]string{}
	for _, s := range body.Subscriptions {
		byID[s.ID] = s.Status
	}
	assert.Equal(t, "expired", byID["sub-lapsed"])
	assert.Equal(t, "cancelled", byID["sub-gone"])
	assert.Equal(t, "active", byID["sub-live"])
}

func TestGetCurrentUser_RequiresIdentity(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	resp := httptest.NewRecorder()
	meRouter("").ServeHTTP(resp, req)

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
