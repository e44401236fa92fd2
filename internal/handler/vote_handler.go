package handler

import (
	"net/http"

	"pollpulse/internal/engine"
	"pollpulse/internal/services"
	"pollpulse/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type VoteHandler struct {
	service *services.VoteService
	tallies *engine.TallyAggregator
}

func NewVoteHandler(service *services.VoteService, tallies *engine.TallyAggregator) *VoteHandler {
	return &VoteHandler{service: service, tallies: tallies}
}

func (h *VoteHandler) Submit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}
	voter, ok := services.VoterFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("voter identity required", "UNAUTHORIZED"))
		return
	}

	var req httpdto.SubmitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_ERROR"))
		return
	}

	v, err := h.service.Submit(c.Request.Context(), id, voter, req.SelectedOptions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromVote(v)))
}

// Tally serves a point-in-time tally snapshot; live updates go over the
// websocket stream.
func (h *VoteHandler) Tally(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}

	tally, err := h.tallies.Snapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromTally(tally)))
}

func (h *VoteHandler) HasVoted(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}
	voter, ok := services.VoterFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("voter identity required", "UNAUTHORIZED"))
		return
	}

	voted, err := h.service.HasVoted(c.Request.Context(), id, voter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"has_voted": voted}))
}
