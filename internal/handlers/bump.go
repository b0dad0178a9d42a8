package handlers

import (
	"net/http"
	"strconv"

	"bumpcontrol/internal/bump"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type DepositRequest struct {
	Owner          string          `json:"owner" binding:"required"`
	TxRef          string          `json:"tx_ref" binding:"required"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
}

type FundRequest struct {
	Owner   string            `json:"owner" binding:"required"`
	TxRef   string            `json:"tx_ref" binding:"required"`
	Amounts []decimal.Decimal `json:"amounts" binding:"required"`
}

type StartSessionRequest struct {
	Owner           string          `json:"owner" binding:"required"`
	TargetAsset     string          `json:"target_asset" binding:"required"`
	NotionalUSD     decimal.Decimal `json:"notional_usd"`
	IntervalSeconds int             `json:"interval_seconds"`
}

type StopSessionRequest struct {
	Owner string `json:"owner" binding:"required"`
}

// BumpHandler serves the bump engine over HTTP
type BumpHandler struct {
	svc *bump.Service
}

func NewBumpHandler(svc *bump.Service) *BumpHandler {
	return &BumpHandler{svc: svc}
}

// EnsureWallets creates the owner's worker wallets if missing
func (h *BumpHandler) EnsureWallets(c *gin.Context) {
	wallets, err := h.svc.EnsureWallets(c.Request.Context(), c.Param("owner"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallets)
}

func (h *BumpHandler) Deposit(c *gin.Context) {
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Deposit(c.Request.Context(), req.Owner, req.TxRef, req.ExpectedAmount)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *BumpHandler) Fund(c *gin.Context) {
	var req FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.svc.Fund(c.Request.Context(), req.Owner, req.TxRef, req.Amounts)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *BumpHandler) GetCredit(c *gin.Context) {
	view, err := h.svc.Credit(c.Request.Context(), c.Param("owner"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *BumpHandler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.svc.StartSession(c.Request.Context(), bump.StartRequest{
		Owner:           req.Owner,
		TargetAsset:     req.TargetAsset,
		NotionalUSD:     req.NotionalUSD,
		IntervalSeconds: req.IntervalSeconds,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *BumpHandler) StopSession(c *gin.Context) {
	var req StopSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := h.svc.StopSession(c.Request.Context(), req.Owner)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *BumpHandler) GetSession(c *gin.Context) {
	sess, err := h.svc.GetSession(c.Request.Context(), c.Param("owner"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListActivity returns the owner's feed newest first, paginated
func (h *BumpHandler) ListActivity(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	logs, total, err := h.svc.Activity(c.Request.Context(), c.Param("owner"), page, pageSize)
	if err != nil {
		abortWithError(c, err)
		return
	}
	totalPages := (total + int64(pageSize) - 1) / int64(pageSize)
	c.JSON(http.StatusOK, gin.H{
		"data":        logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}
