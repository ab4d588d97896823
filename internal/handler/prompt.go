package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/apperr"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/gateway"
	"github.com/marcelmariani/AI-whatssapp-agent/internal/prompt"
)

type PromptHandler struct {
	Gateway *gateway.Gateway
}

type createPromptBody struct {
	Phone string `json:"phone"`
	Text  string `json:"text"`
}

type updatePromptBody struct {
	Phone *string `json:"phone"`
	Text  *string `json:"text"`
}

func (h *PromptHandler) Create(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body createPromptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.InvalidArgument("Invalid request"))
		return
	}

	p, err := h.Gateway.CreatePrompt(c.Request.Context(), caller, body.Phone, body.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) List(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	prompts, err := h.Gateway.ListPrompts(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompts": promptViews(prompts)})
}

func (h *PromptHandler) ListAll(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	prompts, err := h.Gateway.ListAllPrompts(c.Request.Context(), caller, c.Query("ownerId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompts": promptViews(prompts)})
}

func (h *PromptHandler) Get(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	p, err := h.Gateway.GetPrompt(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) Update(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	var body updatePromptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, apperr.InvalidArgument("Invalid request"))
		return
	}

	p, err := h.Gateway.UpdatePrompt(c.Request.Context(), caller, c.Param("id"), prompt.Patch{Text: body.Text, Phone: body.Phone})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) Copy(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	p, err := h.Gateway.CopyPrompt(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) Activate(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	p, err := h.Gateway.ActivatePrompt(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) Deactivate(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	p, err := h.Gateway.DeactivatePrompt(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prompt": promptView(p)})
}

func (h *PromptHandler) Delete(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}

	if err := h.Gateway.DeletePrompt(c.Request.Context(), caller, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
