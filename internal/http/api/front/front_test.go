package front

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/GymDesk/internal/db"
	"github.com/router-for-me/GymDesk/internal/models"
	"github.com/router-for-me/GymDesk/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicPlansListsEnabledOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn, errOpen := db.Open("file:" + filepath.Join(t.TempDir(), "front.db"))
	require.NoError(t, errOpen)
	require.NoError(t, db.Migrate(conn))
	st := store.New(conn)

	ctx := context.Background()
	for _, plan := range []models.Plan{
		{Name: "Monthly", DurationDays: 30, BasePrice: decimal.NewFromInt(1000), AdmissionFee: decimal.NewFromInt(200), IsEnabled: true},
		{Name: "Legacy", DurationDays: 30, BasePrice: decimal.NewFromInt(700), IsEnabled: true},
	} {
		plan := plan
		require.NoError(t, st.CreatePlan(ctx, &plan))
		if plan.Name == "Legacy" {
			require.NoError(t, st.SetPlanEnabled(ctx, plan.ID, false))
		}
	}

	r := gin.New()
	RegisterFrontRoutes(r, st)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/front/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Plans []struct {
			Name      string `json:"name"`
			AmountDue string `json:"amount_due"`
		} `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Plans, 1)
	assert.Equal(t, "Monthly", out.Plans[0].Name)
	assert.Equal(t, "1200", out.Plans[0].AmountDue)
}
