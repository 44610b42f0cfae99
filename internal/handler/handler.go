package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"wagercourt/internal/models"
	"wagercourt/internal/service"
)

// Handler wires the HTTP surface to the services. One instance serves the
// whole v1 API.
type Handler struct {
	Disputes       *service.DisputeService
	Evidence       *service.EvidenceService
	Investigations *service.InvestigationService
	Leaderboard    *service.LeaderboardService
	Users          *service.UserService
	Stream         http.Handler
	Ready          func(ctx context.Context) error
	Logger         *zap.Logger
}

func (h *Handler) Register(r *gin.Engine, verifier TokenVerifier, authDisabled bool) {
	r.GET("/healthz", h.healthz)
	r.GET("/readyz", h.readyz)

	v1 := r.Group("/api/v1")
	v1.Use(CORS())

	if h.Stream != nil {
		v1.GET("/stream", gin.WrapH(h.Stream))
	}

	authed := v1.Group("")
	authed.Use(Identity(verifier, authDisabled, h.Logger))

	authed.POST("/disputes", h.createDispute)
	authed.GET("/disputes", h.listDisputes)
	authed.GET("/disputes/:id", h.getDispute)
	authed.POST("/disputes/:id/respond", h.respondDispute)
	authed.POST("/disputes/:id/refund", h.refundDispute)
	authed.POST("/disputes/:id/evidence", h.submitEvidence)
	authed.POST("/disputes/:id/vote", h.voteDispute)
	authed.POST("/disputes/:id/claim", h.claimDispute)

	authed.GET("/investigations", h.listInvestigations)
	authed.GET("/investigations/:id", h.getInvestigation)
	authed.GET("/investigations/:id/evidence", h.investigationEvidence)
	authed.POST("/investigations/:id/vote", h.voteInvestigation)

	authed.GET("/jurors/top", h.topJurors)

	authed.GET("/users/me", h.me)
	authed.PUT("/users/me", h.updateMe)
}

func (h *Handler) healthz(c *gin.Context) {
	ok(c, gin.H{"status": "up"})
}

func (h *Handler) readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, response{
				Code:    http.StatusServiceUnavailable,
				Message: err.Error(),
			})
			return
		}
	}
	ok(c, gin.H{"status": "ready"})
}

// --- Disputes ---------------------------------------------------------------

type createDisputeRequest struct {
	Opponent    string          `json:"opponent" binding:"required"`
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	ImageRef    string          `json:"image_ref"`
	Currency    string          `json:"currency"`
	Stake       decimal.Decimal `json:"stake"`
}

func (h *Handler) createDispute(c *gin.Context) {
	var req createDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Disputes.Create(c.Request.Context(), username(c), service.CreateDisputeInput{
		Opponent:    req.Opponent,
		Title:       req.Title,
		Description: req.Description,
		ImageRef:    req.ImageRef,
		Currency:    req.Currency,
		Stake:       req.Stake,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

func (h *Handler) listDisputes(c *gin.Context) {
	var status *models.DisputeStatus
	if raw := c.Query("status"); raw != "" {
		s := models.DisputeStatus(raw)
		status = &s
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	items, total, err := h.Disputes.List(c.Request.Context(), username(c), status, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	okMeta(c, items, pageMeta{Total: total, Limit: limit, Offset: offset})
}

func (h *Handler) getDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Disputes.Get(c.Request.Context(), id, username(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

type respondRequest struct {
	Decision string `json:"decision" binding:"required,oneof=accept reject"`
}

func (h *Handler) respondDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Disputes.Respond(c.Request.Context(), id, username(c), req.Decision == "accept")
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

func (h *Handler) refundDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Disputes.Refund(c.Request.Context(), id, username(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

type submitEvidenceRequest struct {
	Description string `json:"description" binding:"required"`
	ImageRef    string `json:"image_ref"`
	SelfVote    *bool  `json:"self_vote" binding:"required"`
}

func (h *Handler) submitEvidence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req submitEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Evidence.Submit(c.Request.Context(), id, username(c), service.SubmitEvidenceInput{
		Description: req.Description,
		ImageRef:    req.ImageRef,
		SelfVote:    *req.SelfVote,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

type selfVoteRequest struct {
	SelfVote *bool `json:"self_vote" binding:"required"`
}

func (h *Handler) voteDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req selfVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Evidence.Vote(c.Request.Context(), id, username(c), *req.SelfVote)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

func (h *Handler) claimDispute(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.Disputes.Claim(c.Request.Context(), id, username(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, d)
}

// --- Investigations ---------------------------------------------------------

func (h *Handler) listInvestigations(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	items, err := h.Investigations.List(c.Request.Context(), username(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	okMeta(c, items, pageMeta{Total: int64(len(items)), Limit: limit, Offset: offset})
}

func (h *Handler) getInvestigation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	inv, err := h.Investigations.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}

func (h *Handler) investigationEvidence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	items, err := h.Investigations.Evidence(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, items)
}

type jurorVoteRequest struct {
	Choice string `json:"choice" binding:"required,oneof=party1 party2 draw"`
}

func (h *Handler) voteInvestigation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, err)
		return
	}
	var req jurorVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	inv, err := h.Investigations.CastVote(c.Request.Context(), id, username(c), req.Choice)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, inv)
}

// --- Jurors -----------------------------------------------------------------

func (h *Handler) topJurors(c *gin.Context) {
	limit := intQuery(c, "limit", 0)
	items, err := h.Leaderboard.Top(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, items)
}

// --- Users ------------------------------------------------------------------

func (h *Handler) me(c *gin.Context) {
	user, err := h.Users.Me(c.Request.Context(), username(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

type updateSettingsRequest struct {
	DisputeReadiness     *bool            `json:"dispute_readiness"`
	MinStake             *decimal.Decimal `json:"min_stake"`
	NotificationsEnabled *bool            `json:"notifications_enabled"`
	ChatID               *int64           `json:"chat_id"`
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.Users.UpdateSettings(c.Request.Context(), username(c), service.UpdateSettingsInput{
		DisputeReadiness:     req.DisputeReadiness,
		MinStake:             req.MinStake,
		NotificationsEnabled: req.NotificationsEnabled,
		ChatID:               req.ChatID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, user)
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
