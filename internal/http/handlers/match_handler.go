// Match HTTP handlers.
//
//   - GET  /matches/journey/{journeyId}   discovery
//   - POST /matches/request
//   - POST /matches/dismiss
//   - GET  /matches/pending/{journeyId}   incoming requests grouped by sender
//   - GET  /matches/{id}                  one request, for either participant
//   - POST /matches/{id}/accept
//   - POST /matches/{id}/reject
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MatchTargetRequest names one of my journeys and another traveler's
// journey. It is the body of both send and dismiss.
type MatchTargetRequest struct {
	SenderJourneyID   string `json:"senderJourneyId"   binding:"required,uuid" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	ReceiverID        string `json:"receiverId"        binding:"required,uuid" example:"7f1c8e0a-3a51-4d1e-9d7b-2b0c8fd5f0a1"`
	ReceiverJourneyID string `json:"receiverJourneyId" binding:"required,uuid" example:"0b6e6c9e-86b4-4d1f-a1b8-8d3f1e0f2c77"`
}

// DiscoverMatches godoc
// @ID          discoverMatches
// @Summary     Discover travelers to meet
// @Description Same-flight and layover matches for one of my journeys, excluding dismissed travelers and those with an active request.
// @Tags        Matches
// @Produce     json
// @Security    BearerAuth
// @Param       journeyId  path      string  true  "Journey ID"  format(uuid)
// @Success     200        {object}  services.Discovery
// @Failure     404        {object}  handlers.ErrorResponse  "Journey not found"
// @Router      /matches/journey/{journeyId} [get]
func (h *Handlers) DiscoverMatches(c *gin.Context) {
	jid, valid := uuidParam(c, "journeyId")
	if !valid {
		return
	}
	d, err := h.matches.Discover(c.Request.Context(), userID(c), jid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// SendMatchRequest godoc
// @ID          sendMatchRequest
// @Summary     Ask another traveler to connect
// @Tags        Matches
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.MatchTargetRequest  true  "Journey pair"
// @Success     201   {object}  domain.MatchRequest
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid target"
// @Failure     404   {object}  handlers.ErrorResponse  "Journey not found"
// @Failure     409   {object}  handlers.ErrorResponse  "An active request already exists"
// @Router      /matches/request [post]
func (h *Handlers) SendMatchRequest(c *gin.Context) {
	var req MatchTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	mr, err := h.matches.SendRequest(c.Request.Context(), userID(c), req.SenderJourneyID, req.ReceiverID, req.ReceiverJourneyID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, mr)
}

// DismissMatch godoc
// @ID          dismissMatch
// @Summary     Hide a potential match
// @Description Records a dismissal so discovery for this journey never shows the pair again. No request is created.
// @Tags        Matches
// @Accept      json
// @Security    BearerAuth
// @Param       body  body      handlers.MatchTargetRequest  true  "Journey pair"
// @Success     204   {string}  string  "No Content"
// @Failure     404   {object}  handlers.ErrorResponse  "Journey not found"
// @Router      /matches/dismiss [post]
func (h *Handlers) DismissMatch(c *gin.Context) {
	var req MatchTargetRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.matches.Dismiss(c.Request.Context(), userID(c), req.SenderJourneyID, req.ReceiverID, req.ReceiverJourneyID); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// PendingRequests godoc
// @ID          pendingRequests
// @Summary     Incoming requests for a journey
// @Description PENDING requests addressed to one of my journeys, grouped by sender with the reason they matched.
// @Tags        Matches
// @Produce     json
// @Security    BearerAuth
// @Param       journeyId  path     string  true  "Journey ID"  format(uuid)
// @Success     200        {array}  services.PendingGroup
// @Failure     404        {object} handlers.ErrorResponse  "Journey not found"
// @Router      /matches/pending/{journeyId} [get]
func (h *Handlers) PendingRequests(c *gin.Context) {
	jid, valid := uuidParam(c, "journeyId")
	if !valid {
		return
	}
	groups, err := h.matches.Pending(c.Request.Context(), userID(c), jid)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, groups)
}

// GetMatch godoc
// @ID          getMatch
// @Summary     One match request
// @Description The request with the counterpart and the reason the journeys matched, re-derived from the current itineraries. Only the sender and the receiver can see it.
// @Tags        Matches
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Request ID"  format(uuid)
// @Success     200  {object}  services.MatchContext
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Router      /matches/{id} [get]
func (h *Handlers) GetMatch(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	m, err := h.matches.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// AcceptMatch godoc
// @ID          acceptMatch
// @Summary     Accept a request group
// @Description Accepts the request and every other PENDING request from the same sender to the same journey. Each accepted request gets exactly one chat.
// @Tags        Matches
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Representative request ID"  format(uuid)
// @Success     200  {object}  services.Decision
// @Failure     403  {object}  handlers.ErrorResponse  "Not the receiver"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Failure     409  {object}  handlers.ErrorResponse  "Request is no longer pending"
// @Router      /matches/{id}/accept [post]
func (h *Handlers) AcceptMatch(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	d, err := h.matches.Accept(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// RejectMatch godoc
// @ID          rejectMatch
// @Summary     Reject a request group
// @Tags        Matches
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Representative request ID"  format(uuid)
// @Success     200  {object}  services.Decision
// @Failure     403  {object}  handlers.ErrorResponse  "Not the receiver"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown request"
// @Failure     409  {object}  handlers.ErrorResponse  "Request is no longer pending"
// @Router      /matches/{id}/reject [post]
func (h *Handlers) RejectMatch(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	d, err := h.matches.Reject(c.Request.Context(), userID(c), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}
