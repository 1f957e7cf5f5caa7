// Package handlers exposes the stats query layer over HTTP.
package handlers

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/jgirmay/slack-activity/internal/activity/models"
	"github.com/jgirmay/slack-activity/internal/common/middleware"
)

// ActivityQuerier is the read side used by the handlers.
type ActivityQuerier interface {
	GetUserActivity(ctx context.Context, userID, from, to string) ([]models.UserDay, error)
	GetUsersActivity(ctx context.Context, from, to string) ([]models.UserSummary, error)
}

type ActivityHandler struct {
	query   ActivityQuerier
	webRoot string
}

// NewActivityHandler creates the handler. Static files are served from
// webRoot when it is not empty.
func NewActivityHandler(query ActivityQuerier, webRoot string) *ActivityHandler {
	return &ActivityHandler{query: query, webRoot: webRoot}
}

// RegisterRoutes mounts the query endpoints and the static fallback on r.
func (h *ActivityHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/user/:userId/:from/:to/", h.GetUserActivity)
	r.GET("/activity/:from/:to", h.GetUsersActivity)
	r.NoRoute(h.Fallback)
}

// GetUserActivity handles GET /user/:userId/:from/:to/
func (h *ActivityHandler) GetUserActivity(c *gin.Context) {
	userID := c.Param("userId")

	days, err := h.query.GetUserActivity(c.Request.Context(), userID, c.Param("from"), c.Param("to"))
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, models.UserActivityResponse{OK: true, UserID: userID, Data: days})
}

// GetUsersActivity handles GET /activity/:from/:to
func (h *ActivityHandler) GetUsersActivity(c *gin.Context) {
	summaries, err := h.query.GetUsersActivity(c.Request.Context(), c.Param("from"), c.Param("to"))
	if err != nil {
		middleware.JSONErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, models.UsersActivityResponse{OK: true, Data: summaries})
}

// Fallback serves the front-end for GET requests that name a file under the
// web root and answers {"ok":true} to everything else.
func (h *ActivityHandler) Fallback(c *gin.Context) {
	if c.Request.Method == http.MethodGet && h.webRoot != "" {
		if file, ok := h.staticFile(c.Request.URL.Path); ok {
			c.File(file)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *ActivityHandler) staticFile(urlPath string) (string, bool) {
	name := filepath.Join(h.webRoot, filepath.FromSlash(path.Clean("/"+urlPath)))

	info, err := os.Stat(name)
	if err != nil {
		return "", false
	}
	if info.IsDir() {
		name = filepath.Join(name, "index.html")
		if info, err = os.Stat(name); err != nil || info.IsDir() {
			return "", false
		}
	}
	return name, true
}
