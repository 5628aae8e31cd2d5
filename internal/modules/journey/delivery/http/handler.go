package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	journeyDto "github.com/tandemhq/tandem-api/internal/modules/journey/dto"
	journey "github.com/tandemhq/tandem-api/internal/modules/journey/service"
	"github.com/tandemhq/tandem-api/pkg/response"
	"github.com/tandemhq/tandem-api/pkg/validator"
)

type JourneyHandler struct {
	service journey.JourneyService
}

func NewJourneyHandler(service journey.JourneyService) *JourneyHandler {
	return &JourneyHandler{service: service}
}

func journeyID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("journey_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid journey id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *JourneyHandler) StartJourney(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	jID, ok := journeyID(c)
	if !ok {
		return
	}

	progress, err := h.service.Start(c.Request.Context(), userID, jID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (h *JourneyHandler) GetProgress(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	jID, ok := journeyID(c)
	if !ok {
		return
	}

	progress, err := h.service.Get(c.Request.Context(), userID, jID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (h *JourneyHandler) AdvanceDay(c *gin.Context) {
	var req journeyDto.AdvanceDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	jID, ok := journeyID(c)
	if !ok {
		return
	}

	progress, err := h.service.AdvanceDay(c.Request.Context(), userID, jID, req.Day, req.Reflection)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (h *JourneyHandler) AcknowledgeSync(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	jID, ok := journeyID(c)
	if !ok {
		return
	}

	progress, err := h.service.AcknowledgeSync(c.Request.Context(), userID, jID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}
