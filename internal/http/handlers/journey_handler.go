// Journey HTTP handlers.
//
//   - POST   /journeys
//   - GET    /journeys
//   - GET    /journeys/{id}
//   - DELETE /journeys/{id}   (cascades to requests, chats and messages)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-layover-backend/internal/services"
)

// CreateJourneyRequest lists the legs of an itinerary in any order; they are
// sequenced by departure time.
type CreateJourneyRequest struct {
	Legs []services.LegInput `json:"legs" binding:"required,min=1,dive"`
}

// CreateJourney godoc
// @ID          createJourney
// @Summary     Add a journey
// @Description Stores an itinerary. Legs are ordered by departure, numbered from 1, and the ground time after each connecting leg is derived.
// @Tags        Journeys
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.CreateJourneyRequest  true  "Legs"
// @Success     201   {object}  domain.Journey
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid journey"
// @Router      /journeys [post]
func (h *Handlers) CreateJourney(c *gin.Context) {
	var req CreateJourneyRequest
	if !bindJSON(c, &req) {
		return
	}
	j, err := h.journeys.Create(c.Request.Context(), userID(c), req.Legs)
	if err != nil {
		failService(c, err)
		return
	}
	c.Header("Location", c.FullPath()+"/"+j.ID)
	ok(c, http.StatusCreated, j)
}

// ListJourneys godoc
// @ID          listJourneys
// @Summary     List my journeys
// @Tags        Journeys
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.Journey
// @Router      /journeys [get]
func (h *Handlers) ListJourneys(c *gin.Context) {
	items, err := h.journeys.List(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// GetJourney godoc
// @ID          getJourney
// @Summary     Get one of my journeys
// @Tags        Journeys
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Journey ID"  format(uuid)
// @Success     200  {object}  domain.Journey
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /journeys/{id} [get]
func (h *Handlers) GetJourney(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	j, err := h.journeys.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, j)
}

// DeleteJourney godoc
// @ID          deleteJourney
// @Summary     Delete one of my journeys
// @Description Removes the journey with its legs, match requests, chats and messages.
// @Tags        Journeys
// @Security    BearerAuth
// @Param       id   path      string  true  "Journey ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /journeys/{id} [delete]
func (h *Handlers) DeleteJourney(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	if err := h.journeys.Delete(c.Request.Context(), userID(c), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
