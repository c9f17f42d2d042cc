package handler

import (
	"net/http"
	"strconv"

	interactionDto "anoa.com/threadline/internal/modules/interaction/dto"
	interaction "anoa.com/threadline/internal/modules/interaction/service"
	"anoa.com/threadline/pkg/response"
	"anoa.com/threadline/pkg/validator"
	"github.com/gin-gonic/gin"
)

type InteractionHandler struct {
	service interaction.InteractionService
}

func NewInteractionHandler(service interaction.InteractionService) *InteractionHandler {
	return &InteractionHandler{service: service}
}

func (h *InteractionHandler) Toggle(c *gin.Context) {
	var req interactionDto.ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.Toggle(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InteractionHandler) SetReaction(c *gin.Context) {
	var req interactionDto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp, err := h.service.SetReaction(c.Request.Context(), userID, req)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func targetID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("target_id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target_id"})
		return 0, false
	}
	return uint(id), true
}

// GetSnapshot returns counters, plus the viewer's state when authenticated.
func (h *InteractionHandler) GetSnapshot(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetSnapshot(c.Request.Context(), response.OptionalUserID(c), c.Param("target_type"), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *InteractionHandler) GetState(c *gin.Context) {
	id, ok := targetID(c)
	if !ok {
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	state, err := h.service.GetState(c.Request.Context(), userID, c.Param("target_type"), id)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state})
}
