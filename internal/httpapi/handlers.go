package httpapi

import (
	"errors"
	"net/http"
	"time"

	"reservation-caller/internal/auth"
	"reservation-caller/internal/calls"
	"reservation-caller/internal/orchestrator"
	"reservation-caller/internal/rbac"
	"reservation-caller/internal/telephony"
	"reservation-caller/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
// Logging goes through the request-scoped logger the middleware put in context.

type Handlers struct {
	Auth    *auth.Manager
	Service *orchestrator.Service
	Repo    calls.Repository
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=operator admin"`
}

// Login issues a JWT access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tok, err := h.Auth.Issue(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// --- Calls ---

type startCallRequest struct {
	RequestID string `json:"request_id"`

	BusinessName  string `json:"business_name" binding:"required"`
	BusinessPhone string `json:"business_phone" binding:"required,e164"`

	Date          string `json:"date" binding:"required,date"`
	TimePreferred string `json:"time_preferred" binding:"required,clock"`
	PartySize     int    `json:"party_size" binding:"required,min=1,max=50"`

	NameForBooking string `json:"name_for_booking" binding:"required"`

	AllowAutoConfirm bool           `json:"allow_auto_confirm"`
	Script           *scriptPayload `json:"script,omitempty"`
}

type scriptPayload struct {
	Mode      string `json:"mode,omitempty" binding:"omitempty,oneof=reservation personal"`
	Intro     string `json:"intro,omitempty"`
	Question  string `json:"question,omitempty"`
	Voicemail string `json:"voicemail,omitempty"`
}

func (r startCallRequest) toReservation() calls.Reservation {
	res := calls.Reservation{
		RequestID:      r.RequestID,
		BusinessName:   r.BusinessName,
		BusinessPhone:  r.BusinessPhone,
		Date:           r.Date,
		TimePreferred:  r.TimePreferred,
		PartySize:      r.PartySize,
		NameForBooking: r.NameForBooking,
		Policy:         calls.Policy{AllowAutoConfirm: r.AllowAutoConfirm},
	}
	if r.Script != nil {
		res.Script = &calls.Script{
			Mode:      calls.ScriptMode(r.Script.Mode),
			Intro:     r.Script.Intro,
			Question:  r.Script.Question,
			Voicemail: r.Script.Voicemail,
		}
	}
	return res
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Service.StartCall(c.Request.Context(), req.toReservation())
	if err != nil {
		if errors.Is(err, telephony.ErrPlacementFailed) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call placement failed"})
			return
		}
		logger.From(c.Request.Context()).Error("start call failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "start failed"})
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"call": res.Call, "simulated": res.Simulated})
}

func (h Handlers) ListCalls(c *gin.Context) {
	// Opportunistic sweep keeps stale calls from lingering in listings.
	if _, err := h.Service.Sweep(c.Request.Context()); err != nil {
		logger.From(c.Request.Context()).Warn("opportunistic sweep failed", "error", err)
	}

	all, err := h.Repo.List(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": all})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, call)
}

type decisionRequest struct {
	Action string `json:"action" binding:"required,oneof=approve cancel revise"`
	Notes  string `json:"notes,omitempty"`
}

func (h Handlers) ApplyDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	call, err := h.Service.ApplyDecision(c.Request.Context(), c.Param("id"), orchestrator.DecisionAction(req.Action), req.Notes)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, call)
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, orchestrator.ErrInvalidDecision):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrPlacementFailed):
		// The approval is recorded; only the callback dial failed.
		c.JSON(http.StatusBadGateway, gin.H{"call": call, "error": "callback placement failed"})
	default:
		logger.From(c.Request.Context()).Error("decision failed", "call_id", c.Param("id"), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "decision failed"})
	}
}

type recallRequest struct {
	Date          *string `json:"date,omitempty" binding:"omitempty,date"`
	TimePreferred *string `json:"time_preferred,omitempty" binding:"omitempty,clock"`
	PartySize     *int    `json:"party_size,omitempty" binding:"omitempty,min=1,max=50"`
	Notes         string  `json:"notes,omitempty"`
}

func (h Handlers) Recall(c *gin.Context) {
	var req recallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := calls.ReservationPatch{
		Date:          req.Date,
		TimePreferred: req.TimePreferred,
		PartySize:     req.PartySize,
	}
	res, err := h.Service.RunRecall(c.Request.Context(), c.Param("id"), patch, req.Notes)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"call": res.Call, "simulated": res.Simulated})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, telephony.ErrPlacementFailed):
		c.JSON(http.StatusBadGateway, gin.H{"call": res.Call, "error": "recall placement failed"})
	default:
		logger.From(c.Request.Context()).Error("recall failed", "call_id", c.Param("id"), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "recall failed"})
	}
}

// AdminSweep triggers a stale sweep on demand.
// RBAC: admin only.
func (h Handlers) AdminSweep(c *gin.Context) {
	res, err := h.Service.Sweep(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": len(res.Failed), "call_ids": res.Failed})
}

func (h Handlers) Healthz(c *gin.Context) {
	if h.Service != nil {
		if _, err := h.Service.Sweep(c.Request.Context()); err != nil {
			logger.From(c.Request.Context()).Warn("opportunistic sweep failed", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Me echoes the authenticated identity, useful for token debugging.
func (h Handlers) Me(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role, "admin": rbac.IsAdmin(role)})
}
