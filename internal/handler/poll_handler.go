package handler

import (
	"net/http"
	"strconv"

	"pollpulse/internal/domain/poll"
	"pollpulse/internal/engine"
	"pollpulse/internal/export"
	"pollpulse/internal/repository"
	"pollpulse/internal/services"
	"pollpulse/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type PollHandler struct {
	service *services.PollService
	tallies *engine.TallyAggregator
}

func NewPollHandler(service *services.PollService, tallies *engine.TallyAggregator) *PollHandler {
	return &PollHandler{service: service, tallies: tallies}
}

func (h *PollHandler) Create(c *gin.Context) {
	var req httpdto.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_ERROR"))
		return
	}

	in := services.CreatePollInput{
		Question: req.Question,
		Options:  req.Options,
		Settings: poll.Settings{
			AllowMultiple:         req.Settings.AllowMultiple,
			ShowResultsBeforeVote: req.Settings.ShowResultsBeforeVote,
			AllowVoteChange:       req.Settings.AllowVoteChange,
		},
		EndsAt: req.EndsAt,
	}
	// Creator identity is optional; anonymous creation is permitted.
	if voter, ok := services.VoterFromContext(c.Request.Context()); ok && voter.Authenticated {
		in.CreatedBy = &voter.ID
	}

	created, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.FromPoll(created)))
}

func (h *PollHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	q := repository.FeedQuery{
		Filter:   c.DefaultQuery("filter", repository.FilterAll),
		Sort:     c.DefaultQuery("sort", repository.SortNewest),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: limit,
	}
	if voter, ok := services.VoterFromContext(c.Request.Context()); ok {
		q.CreatedBy = voter.ID
	}

	polls, total, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ListPollsResponse{
		Polls: httpdto.FromPollSlice(polls),
		Total: total,
		Page:  q.Page,
	}))
}

func (h *PollHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromPoll(p)))
}

func (h *PollHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}
	voter, ok := services.VoterFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, voter.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}

// ExportResults serves the tally as Option,Votes,Percent CSV.
func (h *PollHandler) ExportResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	tally, err := h.tallies.Snapshot(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := export.Results(p, tally)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="results.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportDefinition serves the poll definition as Question,Options CSV.
func (h *PollHandler) ExportDefinition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid poll id", "VALIDATION_ERROR"))
		return
	}

	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := export.Definition(p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="poll.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}
