package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/middleware"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/model"
)

// writeError answers with the kind and reason so clients can route the user
// to the right corrective action.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindUpstreamUnavailable {
		_ = c.Error(err)
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": kind, "message": apperr.Message(err)})
}

func callerFrom(c *gin.Context) (gateway.Caller, bool) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		writeError(c, apperr.New(apperr.KindUnauthorized, "Invalid authentication token"))
		return gateway.Caller{}, false
	}
	return gateway.Caller{OwnerID: userID, Admin: middleware.IsAdmin(c)}, true
}

func sessionView(sess model.Session) gin.H {
	view := gin.H{
		"id":              sess.ID,
		"ownerId":         sess.OwnerID,
		"phone":           sess.Phone,
		"state":           sess.State,
		"pairingArtifact": nil,
		"createdAt":       sess.CreatedAt,
		"updatedAt":       sess.UpdatedAt,
	}
	if sess.State == model.SessionPending && sess.PairingArtifact != nil {
		view["pairingArtifact"] = *sess.PairingArtifact
	}
	if sess.Deleted {
		view["deleted"] = true
	}
	return view
}

func sessionViews(sessions []model.Session) []gin.H {
	resp := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionView(sess))
	}
	return resp
}

func promptView(p model.Prompt) gin.H {
	return gin.H{
		"id":        p.ID,
		"ownerId":   p.OwnerID,
		"phone":     p.Phone,
		"text":      p.Text,
		"status":    p.Status,
		"originId":  p.OriginID,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}

func promptViews(prompts []model.Prompt) []gin.H {
	resp := make([]gin.H, 0, len(prompts))
	for _, p := range prompts {
		resp = append(resp, promptView(p))
	}
	return resp
}

func customerView(cust model.Customer) gin.H {
	return gin.H{
		"id":               cust.ID,
		"hasPaymentMethod": cust.HasPaymentMethod(),
		"tokensRemaining":  cust.TokensRemaining,
		"lastChargeAt":     cust.LastChargeAt,
	}
}
