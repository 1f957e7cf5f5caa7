package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/activity/repository"
	"github.com/jgirmay/slack-activity/internal/activity/services"
	"github.com/jgirmay/slack-activity/internal/common/database/dbtest"
	apperrors "github.com/jgirmay/slack-activity/internal/common/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T, webRoot string) (*gin.Engine, *repository.Registry) {
	reg := repository.NewRegistry(dbtest.Open(t))
	h := NewActivityHandler(services.NewQueryService(reg.Stats(), reg.Users()), webRoot)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, reg
}

func get(r *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func row(userID, date string, fill int) models.DailyActivityRow {
	out := models.DailyActivityRow{UserID: userID, Date: date}
	for i := range out.Activity {
		out.Activity[i] = fill
	}
	return out
}

func TestGetUserActivityEndpoint(t *testing.T) {
	r, reg := setupRouter(t, "")
	ctx := context.Background()
	_, err := reg.Users().InsertIfAbsent(ctx, models.UserProfile{UserID: "U1", UserName: "ann", UserRealName: "Ann"})
	require.NoError(t, err)
	_, err = reg.Stats().Insert(ctx, row("U1", "2024-03-01", 1))
	require.NoError(t, err)
	_, err = reg.Stats().Insert(ctx, row("U1", "2024-03-02", 0))
	require.NoError(t, err)

	w := get(r, "/user/U1/2024-03-01/2024-03-31/")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.UserActivityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "U1", resp.UserID)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2024-03-02", resp.Data[0].Date)
	assert.Equal(t, "sat", resp.Data[0].WeekDay)
	assert.Equal(t, "ann", resp.Data[1].UserName)
	assert.Len(t, resp.Data[1].Activity, 288)
}

func TestGetUserActivityEmptyIsArray(t *testing.T) {
	r, _ := setupRouter(t, "")

	w := get(r, "/user/U1/2024-03-01/2024-03-31/")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"userId":"U1","data":[]}`, w.Body.String())
}

func TestGetUsersActivityEndpoint(t *testing.T) {
	r, reg := setupRouter(t, "")
	ctx := context.Background()
	_, err := reg.Stats().Insert(ctx, row("U1", "2024-03-01", 1))
	require.NoError(t, err)
	_, err = reg.Stats().Insert(ctx, row("U2", "2024-03-01", -1))
	require.NoError(t, err)

	w := get(r, "/activity/2024-03-01/2024-03-01")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.UsersActivityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "U1", resp.Data[0].UserID)
	assert.Equal(t, int64(288), resp.Data[0].UserSum)
	assert.Equal(t, 1, resp.Data[0].UserDays)
	assert.Equal(t, -1.0, resp.Data[1].Activity[0])
}

func TestInvalidDatesAreBadRequest(t *testing.T) {
	r, _ := setupRouter(t, "")

	for _, target := range []string{
		"/activity/2024-13-01/2024-12-31",
		"/activity/2024-03-02/2024-03-01",
		"/user/U1/yesterday/2024-03-01/",
	} {
		w := get(r, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)

		var body struct {
			OK    bool               `json:"ok"`
			Error apperrors.AppError `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.OK)
		assert.Equal(t, apperrors.CodeInvalidInput, body.Error.Code)
	}
}

func TestFallbackServesWebRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>stats</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js"), []byte("console.log(1)"), 0o644))
	r, _ := setupRouter(t, root)

	w := get(r, "/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "console.log(1)", w.Body.String())

	w = get(r, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "stats")

	w = get(r, "/missing.css")
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = get(r, "/../../etc/passwd")
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}

func TestFallbackWithoutWebRoot(t *testing.T) {
	r, _ := setupRouter(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/anything", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
}
