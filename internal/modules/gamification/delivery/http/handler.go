package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	gamificationDto "github.com/tandemhq/tandem-api/internal/modules/gamification/dto"
	gamification "github.com/tandemhq/tandem-api/internal/modules/gamification/service"
	"github.com/tandemhq/tandem-api/pkg/response"
	"github.com/tandemhq/tandem-api/pkg/validator"
)

type GamificationHandler struct {
	service gamification.GamificationService
}

func NewGamificationHandler(service gamification.GamificationService) *GamificationHandler {
	return &GamificationHandler{service: service}
}

func (h *GamificationHandler) RecordActivity(c *gin.Context) {
	var req gamificationDto.ActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	result, err := h.service.RecordActivity(c.Request.Context(), userID, gamification.Activity{
		Kind:         req.ActivityKind,
		Points:       req.Points,
		QuizCategory: req.QuizCategory,
		PerfectScore: req.PerfectScore,
	})
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *GamificationHandler) GetStats(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	record, err := h.service.GetStats(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

func (h *GamificationHandler) GetBadges(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	badges, err := h.service.GetBadges(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": badges})
}
