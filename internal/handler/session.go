package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"
)

type SessionHandler struct {
	Gateway *gateway.Gateway
}

type createSessionBody struct {
	Phone string `json:"phone"`
}

// Create answers 202: pairing continues in the background and the artifact
// shows up on the session and on the update feed.
func (h *SessionHandler) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.InvalidArgument("Invalid request"))
		return
	}

	sess, err := h.Gateway.CreateSession(c.Request.Context(), caller, body.Phone)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": sessionView(sess)})
}

func (h *SessionHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	sessions, err := h.Gateway.ListSessions(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessionViews(sessions)})
}

func (h *SessionHandler) ListAll(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	sessions, err := h.Gateway.ListAllSessions(c.Request.Context(), caller, c.Query("ownerId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessionViews(sessions)})
}

func (h *SessionHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	sess, err := h.Gateway.GetSession(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(sess)})
}

func (h *SessionHandler) Deactivate(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	sess, err := h.Gateway.DeactivateSession(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(sess)})
}

func (h *SessionHandler) Reactivate(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	sess, err := h.Gateway.ReactivateSession(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": sessionView(sess)})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	if err := h.Gateway.DeleteSession(c.Request.Context(), caller, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
